package http

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"fleet-monitor/realtime/internal/domain"
)

const maxClockSkew = 5 * time.Minute

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type metricRange struct {
	key      string
	min, max float64
	unit     string
}

var metricRanges = []metricRange{
	{domain.MetricSpeed, 0, 120, "km/h"},
	{domain.MetricBatteryVoltage, 40, 85, "V"},
	{domain.MetricBatteryCurrent, -200, 200, "A"},
	{domain.MetricSoC, 0, 100, "%"},
	{domain.MetricMotorTemp, 0, 150, "°C"},
	{domain.MetricBatteryTemp, 0, 150, "°C"},
}

// telemetryRequest is decoded loosely so type errors can be reported per field.
type telemetryRequest struct {
	VehicleID any `json:"vehicle_id"`
	Timestamp any `json:"timestamp"`
	Data      any `json:"data"`
}

func validateTelemetry(req telemetryRequest, now time.Time) (*domain.TelemetryPacket, []FieldError) {
	var errs []FieldError

	vehicleID, _ := req.VehicleID.(string)
	if vehicleID == "" {
		errs = append(errs, FieldError{"vehicle_id", "vehicle_id is mandatory"})
	}
	ts, tsIsNumber := req.Timestamp.(float64)
	if req.Timestamp == nil || (tsIsNumber && ts == 0) {
		errs = append(errs, FieldError{"timestamp", "timestamp is mandatory"})
	}
	data, dataIsObject := req.Data.(map[string]any)
	if req.Data == nil {
		errs = append(errs, FieldError{"data", "data object is mandatory"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if !tsIsNumber {
		errs = append(errs, FieldError{"timestamp", "timestamp must be a number"})
	} else {
		nowMS := float64(now.UnixMilli())
		switch {
		case ts > nowMS:
			errs = append(errs, FieldError{"timestamp", "timestamp cannot be in the future"})
		case math.Abs(nowMS-ts) > float64(maxClockSkew.Milliseconds()):
			errs = append(errs, FieldError{"timestamp", "timestamp is too far from server time (max ±5 mins)"})
		}
	}
	if !dataIsObject {
		errs = append(errs, FieldError{"data", "data must be an object"})
		return nil, errs
	}

	metrics := make(domain.Metrics, len(data))
	for k, v := range data {
		if f, ok := v.(float64); ok {
			metrics[k] = f
		}
	}

	for _, r := range metricRanges {
		field := "data." + r.key
		raw, present := data[r.key]
		value, isNumber := raw.(float64)
		switch {
		case !present || raw == nil:
			errs = append(errs, FieldError{field, r.key + " is mandatory"})
		case !isNumber:
			errs = append(errs, FieldError{field, r.key + " must be a number"})
		case value < r.min || value > r.max:
			errs = append(errs, FieldError{field, fmt.Sprintf(
				"Value %s%s is outside allowed range (%s to %s%s)",
				formatNumber(value), r.unit, formatNumber(r.min), formatNumber(r.max), r.unit,
			)})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &domain.TelemetryPacket{
		VehicleID: vehicleID,
		Timestamp: int64(ts),
		Data:      metrics,
	}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
