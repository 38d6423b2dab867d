package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/store"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Alerts.ListActive(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list alerts failed", "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Active alerts fetched successfully", alerts)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := alertID(w, r)
	if !ok {
		return
	}

	a, err := s.deps.Alerts.GetAlert(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(w, http.StatusNotFound, "Alert not found", nil)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("get alert failed", "alert_id", id, "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Alert fetched successfully", a)
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := alertID(w, r)
	if !ok {
		return
	}

	a, err := s.deps.Alerts.AcknowledgeAlert(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(w, http.StatusNotFound, "Alert not found", nil)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("acknowledge alert failed", "alert_id", id, "err", err)
		internalError(w)
		return
	}

	logging.FromContext(r.Context()).Info("alert acknowledged", "alert_id", id)
	success(w, http.StatusOK, "Alert acknowledged successfully", a)
}

func (s *Server) alertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Alerts.AlertStats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("alert stats failed", "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Alert statistics fetched successfully", stats)
}

func alertID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		fail(w, http.StatusBadRequest, "alert id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}
