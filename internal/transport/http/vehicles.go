package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/store"
)

type createVehicleRequest struct {
	VehicleID          string `json:"vehicle_id"`
	Model              string `json:"model"`
	RegistrationNumber string `json:"registration_number"`
}

func (s *Server) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req createVehicleRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if req.VehicleID == "" || req.Model == "" || req.RegistrationNumber == "" {
		fail(w, http.StatusBadRequest, "vehicle_id, model, and registration_number are mandatory", nil)
		return
	}

	v, err := s.deps.Vehicles.CreateVehicle(r.Context(), domain.Vehicle{
		VehicleID:          req.VehicleID,
		Model:              req.Model,
		RegistrationNumber: req.RegistrationNumber,
	})
	if errors.Is(err, store.ErrConflict) {
		fail(w, http.StatusConflict, "Vehicle already exists", nil)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("vehicle registration failed", "vehicle_id", req.VehicleID, "err", err)
		internalError(w)
		return
	}

	logging.FromContext(r.Context()).Info("vehicle registered", "vehicle_id", v.VehicleID)
	success(w, http.StatusCreated, "Vehicle registered successfully", v)
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.deps.Vehicles.ListVehicles(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list vehicles failed", "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Vehicles fetched successfully", vehicles)
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := s.deps.Vehicles.GetVehicle(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(w, http.StatusNotFound, "Vehicle not found", nil)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("get vehicle failed", "vehicle_id", id, "err", err)
		internalError(w)
		return
	}
	success(w, http.StatusOK, "Vehicle fetched successfully", v)
}

func (s *Server) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := s.deps.Vehicles.DeleteVehicle(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fail(w, http.StatusNotFound, "Vehicle not found", nil)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("delete vehicle failed", "vehicle_id", id, "err", err)
		internalError(w)
		return
	}

	logging.FromContext(r.Context()).Info("vehicle decommissioned", "vehicle_id", id)
	success(w, http.StatusOK, "Vehicle decommissioned successfully", v)
}
