package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/metrics"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
	"github.com/ArthurLewyin12/encore-backend/internal/web"
)

const (
	maxBodyBytes         = 1 << 20
	requestTimeout       = 30 * time.Second
	headerIdempotencyKey = "Idempotency-Key"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	service *Service
	logger  *logger.Logger
	checks  map[string]HealthCheck
}

func NewHandler(service *Service, log *logger.Logger, checks map[string]HealthCheck) *Handler {
	return &Handler{
		service: service,
		logger:  log,
		checks:  checks,
	}
}

// SetupRoutes builds the HTTP surface. stream serves the per-restaurant order
// event stream and may be nil.
func (h *Handler) SetupRoutes(stream http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.withLogging)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Post("/", h.CreateOrder)
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrder)
	r.Post("/orders/{id}/status", h.UpdateStatus)
	r.Get("/orders/{id}/items", h.ListOrderItems)
	r.Get("/orders/{id}/history", h.ListStatusHistory)
	r.Get("/order-items/{item_id}/options", h.ListOrderItemOptions)
	r.Post("/orders/{id}/review", h.SubmitReview)
	r.Get("/restaurant/{restaurant_id}/reviews", h.GetRestaurantReviews)

	if stream != nil {
		r.Method(http.MethodGet, "/restaurants/{restaurant_id}/orders/stream", stream)
	}

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		web.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	order, err := h.service.CreateOrder(ctx, &req, r.Header.Get(headerIdempotencyKey))
	if err != nil {
		web.WriteError(w, r, err)
		return
	}

	web.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		web.WriteError(w, r, err)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) ListOrderItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListOrderItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) ListOrderItemOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.ListOrderItemOptions(r.Context(), chi.URLParam(r, "item_id"))
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]interface{}{"options": options})
}

func (h *Handler) ListStatusHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.ListStatusHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		web.WriteError(w, r, err)
		return
	}

	review, err := h.service.SubmitReview(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, review)
}

func (h *Handler) GetRestaurantReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.GetRestaurantReviews(r.Context(), chi.URLParam(r, "restaurant_id"))
	if err != nil {
		web.WriteError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"checks":    checks,
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	web.WriteJSON(w, code, response)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return status.Error(codes.InvalidArgument, "request body is required")
		}
		return status.Error(codes.InvalidArgument, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// withLogging carries chi's request id into the logger context and logs
// every request with its outcome.
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
		w.Header().Set("X-Request-ID", requestID)

		h.logger.Debug("request_started", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.Header.Get("User-Agent"),
		})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		h.logger.Debug("request_completed", fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode), requestID, map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": rw.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// responseWriter captures the status code and keeps flushing available for
// streamed responses.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
