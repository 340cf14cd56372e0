// Package httpapi implements the HTTP surface (spec §6): one ServeMux
// exposing the Workflow Manager's operations, a MongoDB-aware health
// endpoint, and a Prometheus /metrics endpoint, wrapped in the teacher's
// correlation/request-logging middleware chain.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bvbrc/workflow-conductor/internal/log"
	"github.com/bvbrc/workflow-conductor/internal/manager"
	"github.com/bvbrc/workflow-conductor/internal/tracing"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// HealthProvider reports a subsystem's connectivity for the health
// endpoint; internal/store.Store satisfies this via its Ping method.
type HealthProvider interface {
	Ping(ctx context.Context) error
}

// MetricsHandler serves the Prometheus /metrics endpoint.
type MetricsHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Router wraps an http.ServeMux with the Workflow Manager's endpoints and
// the middleware chain shared by every request.
type Router struct {
	mux            *http.ServeMux
	config         RouterConfig
	manager        *manager.Manager
	healthProvider HealthProvider
	metricsHandler MetricsHandler
	logger         *slog.Logger
}

// NewRouter builds a Router exposing every operation spec §6 names.
func NewRouter(cfg RouterConfig, mgr *manager.Manager, health HealthProvider, metricsHandler MetricsHandler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = log.New(log.FromEnv())
	}

	r := &Router{
		mux:            http.NewServeMux(),
		config:         cfg,
		manager:        mgr,
		healthProvider: health,
		metricsHandler: metricsHandler,
		logger:         logger,
	}

	r.mux.HandleFunc("GET /api/v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /api/v1/version", r.handleVersion)

	r.mux.HandleFunc("POST /api/v1/workflows/plan", r.handlePlan)
	r.mux.HandleFunc("POST /api/v1/workflows/register", r.handleRegister)
	r.mux.HandleFunc("POST /api/v1/workflows/validate", r.handleValidate)
	r.mux.HandleFunc("POST /api/v1/workflows/submit", r.handleSubmit)
	r.mux.HandleFunc("POST /api/v1/workflows/{id}/submit", r.handleSubmitPlanned)
	r.mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", r.handleCancel)
	r.mux.HandleFunc("GET /api/v1/workflows/{id}/status", r.handleStatus)
	r.mux.HandleFunc("GET /api/v1/workflows/{id}", r.handleGet)

	r.mux.HandleFunc("POST /api/v1/workflows/cwl/convert", r.handleConvertCWL)
	r.mux.HandleFunc("POST /api/v1/workflows/cwl/submit", r.handleSubmitCWL)

	if metricsHandler != nil {
		r.mux.HandleFunc("GET /metrics", metricsHandler.ServeHTTP)
	}

	return r
}

// ServeHTTP implements http.Handler, applying the correlation-id and
// request-logging middleware around every route.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.mux

	innerHandler := handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		correlationID := tracing.FromContextOrEmpty(req.Context())
		logger := log.WithCorrelationID(r.logger, correlationID.String())

		defer func() {
			logger.Info("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}()

		innerHandler.ServeHTTP(w, req)
	})

	handler = tracing.Middleware(handler)
	handler.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	mongoStatus := "ok"

	if r.healthProvider != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := r.healthProvider.Ping(ctx); err != nil {
			status = "degraded"
			mongoStatus = "unreachable"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"mongodb": map[string]string{
			"status": mongoStatus,
		},
	})
}

func (r *Router) handlePlan(w http.ResponseWriter, req *http.Request) {
	raw, authToken, err := decodeBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, err := r.manager.Plan(req.Context(), raw, authToken)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	raw, authToken, err := decodeBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, warnings, err := r.manager.Register(req.Context(), raw, authToken)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflow": wf,
		"warnings": warnings,
	})
}

func (r *Router) handleValidate(w http.ResponseWriter, req *http.Request) {
	raw, authToken, err := decodeBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := r.manager.Validate(req.Context(), raw, authToken)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflow":   result.Workflow,
		"warnings":   result.Warnings,
		"auto_fixes": result.AutoFixes,
	})
}

func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) {
	raw, authToken, err := decodeBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, err := r.manager.Submit(req.Context(), raw, authToken)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handleSubmitPlanned(w http.ResponseWriter, req *http.Request) {
	workflowID := req.PathValue("id")
	authToken := bearerToken(req)
	wf, err := r.manager.SubmitPlanned(req.Context(), workflowID, authToken)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) {
	workflowID := req.PathValue("id")
	if err := r.manager.Cancel(req.Context(), workflowID); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"workflow_id": workflowID, "status": "cancelled"})
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	workflowID := req.PathValue("id")
	wf, err := r.manager.Status(req.Context(), workflowID)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) {
	workflowID := req.PathValue("id")
	wf, err := r.manager.Get(req.Context(), workflowID)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handleConvertCWL(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	converted, err := r.manager.ConvertCWL(body)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, converted)
}

func (r *Router) handleSubmitCWL(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, err := r.manager.SubmitCWL(req.Context(), body, bearerToken(req))
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// decodeBody reads a workflow JSON document and the request's bearer token.
func decodeBody(req *http.Request) (map[string]interface{}, string, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
		return nil, "", err
	}
	return raw, bearerToken(req), nil
}

func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func bearerToken(req *http.Request) string {
	const prefix = "Bearer "
	h := req.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// writeManagerError maps a wferrors.Error to its documented HTTP status
// code (spec §7); any other error type is treated as an internal failure.
func writeManagerError(w http.ResponseWriter, err error) {
	var wfErr *wferrors.Error
	if wferrors.As(err, &wfErr) {
		writeError(w, wfErr.StatusCode(), wfErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
