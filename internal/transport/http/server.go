// Package http exposes the REST API, the metrics endpoint and the WebSocket
// upgrade route.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"fleet-monitor/realtime/internal/auth"
	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

type VehicleStore interface {
	CreateVehicle(ctx context.Context, v domain.Vehicle) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context) ([]domain.Vehicle, error)
	GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	DeleteVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
}

type TelemetryReader interface {
	LatestTelemetry(ctx context.Context, vehicleID string) (*domain.TelemetryRecord, error)
	TelemetryHistory(ctx context.Context, vehicleID string, from, to int64) ([]domain.TelemetryRecord, error)
	TelemetryStats(ctx context.Context) ([]domain.TelemetryStats, error)
}

// LiveState serves the latest packet from the cache.
type LiveState interface {
	LatestState(ctx context.Context, vehicleID string) (*domain.TelemetryRecord, error)
}

type AlertReader interface {
	ListActive(ctx context.Context) ([]domain.Alert, error)
	GetAlert(ctx context.Context, id int64) (*domain.Alert, error)
	AcknowledgeAlert(ctx context.Context, id int64) (*domain.Alert, error)
	AlertStats(ctx context.Context) (*domain.AlertStats, error)
}

type Ingester interface {
	Ingest(ctx context.Context, p *domain.TelemetryPacket) error
}

type PresenceView interface {
	Snapshot() []domain.VehicleStatus
	Counts() (online, offline int)
}

// Pinger is a dependency reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handlers. LiveState, APIKeys and WebSocket are optional.
type Deps struct {
	Vehicles  VehicleStore
	Telemetry TelemetryReader
	LiveState LiveState
	Alerts    AlertReader
	Ingester  Ingester
	Presence  PresenceView
	Users     *auth.UserStore
	JWT       *auth.JWTService
	APIKeys   *auth.Authenticator
	WebSocket http.Handler
	Health    map[string]Pinger
	Logger    *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Router builds the chi router with every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)
		})

		r.Route("/telemetry", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.deps.APIKeys != nil {
					r.Use(NewAuthMiddleware(s.deps.APIKeys).Wrap)
				}
				r.Post("/", s.ingestTelemetry)
			})

			r.Group(func(r chi.Router) {
				r.Use(JWTAuth(s.deps.JWT))
				r.Get("/stats", s.telemetryStats)
				r.Get("/current/{vehicle_id}", s.currentTelemetry)
				r.Get("/history", s.telemetryHistory)
			})
		})

		r.Route("/vehicles", func(r chi.Router) {
			r.Use(JWTAuth(s.deps.JWT))
			r.Get("/", s.listVehicles)
			r.Get("/status", s.vehicleStatus)
			r.Get("/{id}", s.getVehicle)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAdmin))
				r.Post("/", s.createVehicle)
				r.Delete("/{id}", s.deleteVehicle)
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Use(JWTAuth(s.deps.JWT))
			r.Get("/", s.listAlerts)
			r.Get("/stats/monitoring", s.alertStats)
			r.Get("/{id}", s.getAlert)

			r.With(RequireRole(auth.RoleAdmin)).Post("/{id}/acknowledge", s.acknowledgeAlert)
		})
	})

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())
	if s.deps.WebSocket != nil {
		r.Handle("/ws", s.deps.WebSocket)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusNotFound, "Endpoint not found", nil)
	})
	return r
}
