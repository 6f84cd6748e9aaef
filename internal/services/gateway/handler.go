package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
	"github.com/ArthurLewyin12/encore-backend/internal/web"
)

const writeTimeout = 10 * time.Second

// Handler serves GET /restaurants/{restaurant_id}/orders/stream as
// newline-delimited JSON. The stream is unauthenticated.
type Handler struct {
	gateway   *Gateway
	logger    *logger.Logger
	keepAlive time.Duration
}

func NewHandler(g *Gateway, log *logger.Logger, keepAlive time.Duration) *Handler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &Handler{
		gateway:   g,
		logger:    log,
		keepAlive: keepAlive,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := logger.RequestID(ctx)

	restaurantID := chi.URLParam(r, "restaurant_id")
	if !models.IsUUID(restaurantID) {
		web.WriteError(w, r, status.Error(codes.InvalidArgument, "restaurant_id must be a valid UUID"))
		return
	}

	stream, err := h.gateway.Subscribe(ctx, restaurantID)
	if err != nil {
		h.logger.Error("stream_subscribe_failed", "Failed to subscribe to order events", requestID, err, map[string]interface{}{
			"restaurant_id": restaurantID,
		})
		web.WriteError(w, r, status.Error(codes.Unavailable, "event stream unavailable"))
		return
	}
	defer stream.Close()

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("stream_flush_failed", "Response writer cannot stream", requestID, err, nil)
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Done():
			return
		case record := <-stream.Events():
			if err := h.write(rc, func() error { return enc.Encode(record) }); err != nil {
				h.logger.Debug("stream_write_failed", "Dropping order stream subscriber", requestID, map[string]interface{}{
					"restaurant_id": restaurantID,
					"error":         err.Error(),
				})
				return
			}
		case <-ticker.C:
			if err := h.write(rc, func() error {
				_, err := w.Write([]byte("\n"))
				return err
			}); err != nil {
				return
			}
		}
	}
}

// write bounds a single record write so a stalled client cannot hold the
// subscription open.
func (h *Handler) write(rc *http.ResponseController, fn func() error) error {
	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return rc.Flush()
}
