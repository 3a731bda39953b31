package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/miradorstack/incident-metrics/internal/models"
)

const maxRequestBytes = 1 << 20

// MetricsBackend is what the HTTP API needs from the metrics service.
type MetricsBackend interface {
	Compute(ctx context.Context, req models.ComputeRequest) (models.Metrics, error)
	Refresh(ctx context.Context) (int, error)
	Status() models.ServiceStatus
}

// HTTPHandler serves the JSON API.
type HTTPHandler struct {
	backend MetricsBackend
	logger  *slog.Logger
}

// NewHTTPHandler builds the JSON API handler.
func NewHTTPHandler(backend MetricsBackend, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{backend: backend, logger: logger}
}

// Routes returns the chi router for the JSON API.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/metrics", h.computeMetrics)
		r.Post("/refresh", h.refresh)
	})
	return r
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	st := h.backend.Status()
	code := http.StatusOK
	if !st.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *HTTPHandler) computeMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	req, err := DecodeComputeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.backend.Compute(r.Context(), req)
	if err != nil {
		code := HTTPStatus(err)
		if code == http.StatusInternalServerError {
			h.logger.Error("compute metrics failed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("error", err),
			)
			writeError(w, code, "computation failed")
			return
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *HTTPHandler) refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.backend.Refresh(r.Context())
	if err != nil {
		h.logger.Error("snapshot refresh failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "snapshot refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": n, "snapshotVersion": h.backend.Status().SnapshotVersion})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
