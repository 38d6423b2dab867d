package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var req telemetryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Validation failed", []FieldError{{"body", "body must be a JSON object"}})
		return
	}

	packet, errs := validateTelemetry(req, time.Now())
	if len(errs) > 0 {
		fail(w, http.StatusBadRequest, "Validation failed", errs)
		return
	}

	if _, err := s.deps.Vehicles.GetVehicle(r.Context(), packet.VehicleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(w, http.StatusNotFound, fmt.Sprintf("Vehicle with ID %s not found", packet.VehicleID), nil)
			return
		}
		logger.Error("vehicle lookup failed", "vehicle_id", packet.VehicleID, "err", err)
		internalError(w)
		return
	}

	if err := s.deps.Ingester.Ingest(r.Context(), packet); err != nil {
		logger.Error("ingestion failed", "vehicle_id", packet.VehicleID, "err", err)
		internalError(w)
		return
	}

	success(w, http.StatusOK, "Telemetry data received", nil)
}

func (s *Server) currentTelemetry(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicle_id")
	logger := logging.FromContext(r.Context())

	if s.deps.LiveState != nil {
		rec, err := s.deps.LiveState.LatestState(r.Context(), vehicleID)
		if err == nil {
			success(w, http.StatusOK, "Current telemetry fetched", rec)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("live state lookup failed, falling back to database", "vehicle_id", vehicleID, "err", err)
		}
	}

	rec, err := s.deps.Telemetry.LatestTelemetry(r.Context(), vehicleID)
	if errors.Is(err, store.ErrNotFound) {
		fail(w, http.StatusNotFound, "No telemetry found for this vehicle", nil)
		return
	}
	if err != nil {
		logger.Error("latest telemetry failed", "vehicle_id", vehicleID, "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Current telemetry fetched", rec)
}

func (s *Server) telemetryHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vehicleID := q.Get("vehicle_id")
	from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
	to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
	if vehicleID == "" || errFrom != nil || errTo != nil {
		fail(w, http.StatusBadRequest, "vehicle_id, from, and to are required query parameters", nil)
		return
	}

	history, err := s.deps.Telemetry.TelemetryHistory(r.Context(), vehicleID, from, to)
	if err != nil {
		logging.FromContext(r.Context()).Error("telemetry history failed", "vehicle_id", vehicleID, "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Telemetry history fetched", history)
}

func (s *Server) telemetryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Telemetry.TelemetryStats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("telemetry stats failed", "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Telemetry statistics fetched", stats)
}

type statusResponse struct {
	Online   int                    `json:"online"`
	Offline  int                    `json:"offline"`
	Vehicles []domain.VehicleStatus `json:"vehicles"`
}

func (s *Server) vehicleStatus(w http.ResponseWriter, _ *http.Request) {
	online, offline := s.deps.Presence.Counts()
	success(w, http.StatusOK, "Vehicle status fetched", statusResponse{
		Online:   online,
		Offline:  offline,
		Vehicles: s.deps.Presence.Snapshot(),
	})
}
