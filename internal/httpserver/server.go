// Package httpserver exposes the messaging engine over HTTP: health and
// metrics probes, the inbound provider webhook, and the send, schedule,
// campaign and consent trigger endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// MessagingAPI is the service surface the HTTP layer fronts.
type MessagingAPI interface {
	SendTransactional(ctx context.Context, req model.SendRequest) (*model.SendResult, error)
	ScheduleReminders(ctx context.Context, event model.ReminderEvent) ([]model.ScheduleResult, error)
	SendBulk(ctx context.Context, req model.BulkRequest) (*model.BulkResult, error)
	HandleWebhook(ctx context.Context, payload []byte) (*model.WebhookResult, error)
	RecordOptIn(ctx context.Context, req model.OptInRequest) (*model.OptIn, error)
	RecordOptOut(ctx context.Context, req model.OptInRequest) (*model.OptIn, error)
	Stats(ctx context.Context, days int) (*model.StatsResult, error)
}

// Pinger reports storage reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SweepTrigger runs one schedule sweep on demand.
type SweepTrigger interface {
	RunOnce(ctx context.Context) model.SweepResult
}

// HealthResponse is the body of the health and readiness probes.
type HealthResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse is the body of any non-2xx API answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

const maxBodyBytes = 1 << 20

// Server hosts the messaging API.
type Server struct {
	httpServer      *http.Server
	mux             *http.ServeMux
	service         MessagingAPI
	pinger          Pinger
	sweeper         SweepTrigger
	defaultTenantID string
	logger          *zap.Logger
}

// NewServer wires the API routes. sweeper may be nil, in which case the
// manual sweep endpoint answers 503.
func NewServer(port string, service MessagingAPI, pinger Pinger, sweeper SweepTrigger, defaultTenantID string, log *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mux:             mux,
		service:         service,
		pinger:          pinger,
		sweeper:         sweeper,
		defaultTenantID: defaultTenantID,
		logger:          log,
	}

	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("GET /ready", server.handleReady)
	mux.HandleFunc("POST /v1/webhook/{tenant}", server.withRequestID(server.handleWebhook))
	mux.HandleFunc("POST /v1/messages", server.withTenant(server.handleSendMessage))
	mux.HandleFunc("POST /v1/schedules", server.withTenant(server.handleScheduleReminders))
	mux.HandleFunc("POST /v1/schedules/sweep", server.withTenant(server.handleSweep))
	mux.HandleFunc("POST /v1/campaigns", server.withTenant(server.handleSendBulk))
	mux.HandleFunc("POST /v1/optins", server.withTenant(server.handleOptIn))
	mux.HandleFunc("POST /v1/optouts", server.withTenant(server.handleOptOut))
	mux.HandleFunc("GET /v1/stats", server.withTenant(server.handleStats))

	return server
}

// RegisterMetricsHandler adds the /metrics endpoint. Call only when metrics
// are enabled.
func (s *Server) RegisterMetricsHandler() {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	utils.SafeGo(func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}, nil)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// withRequestID stamps each request with a request ID for log correlation.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := tenant.WithRequestID(r.Context(), requestID)
		next(w, r.WithContext(ctx))
	}
}

// withTenant resolves the tenant from the X-Tenant-ID header, falling back
// to the configured default, and stamps a request ID.
func (s *Server) withTenant(next http.HandlerFunc) http.HandlerFunc {
	return s.withRequestID(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			tenantID = s.defaultTenantID
		}
		if tenantID == "" {
			utils.WriteJSONResponse(w, http.StatusUnauthorized, ErrorResponse{Error: "missing tenant"})
			return
		}
		ctx := tenant.WithTenantID(r.Context(), tenantID)
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{Status: "UP"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("Readiness check failed", zap.Error(err))
			utils.WriteJSONResponse(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "NOT_READY",
				Details: map[string]string{"database": err.Error()},
			})
			return
		}
	}
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{
		Status:  "READY",
		Details: map[string]string{"timestamp": utils.FormatISO8601(utils.Now())},
	})
}

// handleWebhook receives provider status callbacks. Providers retry on
// non-2xx, so every processable request is answered 200 even when the
// event is stale or refers to an unknown message.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	if tenantID == "" {
		utils.WriteJSONResponse(w, http.StatusNotFound, ErrorResponse{Error: "missing tenant"})
		return
	}
	ctx := tenant.WithTenantID(r.Context(), tenantID)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.FromContext(ctx).Warn("Webhook body read failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusOK, model.WebhookResult{Processed: false, Reason: "unreadable body"})
		return
	}

	result, err := s.service.HandleWebhook(ctx, payload)
	if err != nil {
		logger.FromContext(ctx).Warn("Webhook processing failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusOK, model.WebhookResult{Processed: false, Reason: "unprocessable payload"})
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.service.SendTransactional(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

func (s *Server) handleScheduleReminders(w http.ResponseWriter, r *http.Request) {
	var event model.ReminderEvent
	if !s.decodeBody(w, r, &event) {
		return
	}
	results, err := s.service.ScheduleReminders(r.Context(), event)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{"schedules": results})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, ErrorResponse{Error: "scheduler not running"})
		return
	}
	result := s.sweeper.RunOnce(r.Context())
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req model.BulkRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.service.SendBulk(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

func (s *Server) handleOptIn(w http.ResponseWriter, r *http.Request) {
	var req model.OptInRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	optIn, err := s.service.RecordOptIn(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, optIn)
}

func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	var req model.OptInRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	optIn, err := s.service.RecordOptOut(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, optIn)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.WriteJSONResponse(w, http.StatusBadRequest, ErrorResponse{Error: "days must be a non-negative integer"})
			return
		}
		days = parsed
	}
	result, err := s.service.Stats(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps application errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidationError(err), apperrors.IsBadRequestError(err):
		status = http.StatusBadRequest
	case apperrors.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
	case apperrors.IsNotFoundError(err):
		status = http.StatusNotFound
	case apperrors.IsTemplateNotApprovedError(err):
		status = http.StatusUnprocessableEntity
	case apperrors.IsDuplicateError(err), apperrors.IsConflictError(err):
		status = http.StatusConflict
	case apperrors.IsTimeoutError(err):
		status = http.StatusGatewayTimeout
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		log.Warn("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	utils.WriteJSONResponse(w, status, ErrorResponse{Error: err.Error()})
}
