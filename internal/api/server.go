package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/engine/manager"
	"NetSentinel/internal/query"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported by the monitor.
const ServiceName = "netsentinel.Monitor"

// StatusProvider exposes the monitor's status.
type StatusProvider interface {
	Status() manager.Status
}

// Server serves the HTTP status API and the gRPC health service.
type Server struct {
	cfg     config.APIConfig
	status  StatusProvider
	querier query.Querier
	logger  *zap.Logger

	router  *mux.Router
	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server
}

// NewServer wires the routes. querier may be nil when no alert store is configured.
func NewServer(cfg config.APIConfig, status StatusProvider, querier query.Querier, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		status:  status,
		querier: querier,
		logger:  logger,
		router:  mux.NewRouter(),
		health:  health.NewServer(),
	}

	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.statusHandler).Methods("GET")
	s.router.HandleFunc("/api/v1/alerts", s.alertsHandler).Methods("GET")

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the gRPC health server.
func (s *Server) Health() *health.Server {
	return s.health
}

// SetPhase maps the monitor phase to the gRPC serving status: only a live
// monitor is SERVING.
func (s *Server) SetPhase(p manager.Phase) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if p == manager.PhaseLive {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

// Start opens the configured listeners and serves in the background.
func (s *Server) Start() error {
	if s.cfg.ListenAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", s.cfg.ListenAddr, err)
		}
		s.httpSrv = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.logger.Info("API server starting", zap.String("addr", lis.Addr().String()))
			if err := s.httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("API server failed", zap.Error(err))
			}
		}()
	}

	if s.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", s.cfg.GRPCAddr, err)
		}
		s.grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcSrv, s.health)
		go func() {
			s.logger.Info("gRPC health server starting", zap.String("addr", lis.Addr().String()))
			if err := s.grpcSrv.Serve(lis); err != nil {
				s.logger.Error("gRPC health server failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	if s.grpcSrv != nil {
		s.grpcSrv.GracefulStop()
	}
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("API server forced to shutdown: %w", err)
		}
	}
	return nil
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

// alertsHandler serves stored alerts. Query parameters: rule, severity,
// since (RFC 3339) and limit.
func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		writeError(w, http.StatusNotFound, "no alert store configured")
		return
	}

	q := r.URL.Query()
	f := query.AlertFilter{Rule: q.Get("rule"), Severity: q.Get("severity")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q: %v", v, err))
			return
		}
		f.Since = ts
	}

	alerts, err := s.querier.RecentAlerts(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query alerts: %v", err))
		return
	}

	records := make([]map[string]any, 0, len(alerts))
	for _, ev := range alerts {
		records = append(records, ev.Record())
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": records})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
