package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sarathsp06/framehook/internal/jobs"
	"github.com/sarathsp06/framehook/internal/logger"
	"github.com/sarathsp06/framehook/internal/observability"
	"github.com/sarathsp06/framehook/internal/queue"
	"github.com/sarathsp06/framehook/internal/webhooks"
)

// maxBodyBytes caps webhook request bodies
const maxBodyBytes = 1 << 20

// Enqueuer accepts background jobs without waiting for them
type Enqueuer interface {
	Insert(ctx context.Context, args jobs.JobArgs) (*queue.InsertResult, error)
}

// WebhookServer serves the webhook and health endpoints
type WebhookServer struct {
	queue   Enqueuer
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
	now     func() time.Time
}

// NewWebhookServer creates a new server instance. A nil log uses the process-wide logger.
func NewWebhookServer(q Enqueuer, log *slog.Logger, metrics *observability.Metrics) *WebhookServer {
	if log == nil {
		log = logger.NewLogger("webhook-server")
	}
	return &WebhookServer{
		queue:   q,
		logger:  log,
		tracer:  observability.GetTracer("framehook.server.webhook"),
		metrics: metrics,
		now:     time.Now,
	}
}

// HandleWebhook accepts a webhook event and, for video.ready, enqueues a video job
func (s *WebhookServer) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	evt, err := webhooks.DecodeEvent(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, webhooks.ErrorResponse{Detail: err.Error()})
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "webhook.receive",
		trace.WithAttributes(attribute.String("event_type", evt.EventType)),
	)
	defer span.End()

	log := s.logger.With("request_id", requestIDFromContext(ctx))
	log.InfoContext(ctx, fmt.Sprintf("Received webhook event: %s.", evt.EventType))
	s.metrics.RecordWebhook(ctx, evt.EventType)

	if evt.EventType != webhooks.EventVideoReady {
		log.InfoContext(ctx, "Webhook processed. No video processing task was initiated.")
		writeJSON(w, http.StatusOK, webhooks.StatusResponse{
			Status:  webhooks.StatusSuccess,
			Message: webhooks.MessageNoVideoTask,
		})
		return
	}

	args, err := jobs.NewVideoArgs(evt.Data)
	if err != nil {
		log.ErrorContext(ctx, fmt.Sprintf("Error validating webhook payload for video processing: %v", err))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid video payload")
		writeJSON(w, http.StatusBadRequest, webhooks.ErrorResponse{
			Detail: fmt.Sprintf("Invalid webhook payload for event type '%s'. Details: %v", webhooks.EventVideoReady, err),
		})
		return
	}

	res, err := s.queue.Insert(ctx, args)
	if err != nil {
		log.ErrorContext(ctx, fmt.Sprintf("Failed to enqueue video processing job for user '%s'", args.UserID), "error", err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "enqueue failed")
		writeJSON(w, http.StatusServiceUnavailable, webhooks.ErrorResponse{
			Detail: enqueueFailureDetail(err),
		})
		return
	}

	span.SetAttributes(attribute.String("job_id", res.ID))
	log.InfoContext(ctx, fmt.Sprintf("Video processing job for user '%s' has been enqueued.", args.UserID), "job_id", res.ID)
	writeJSON(w, http.StatusOK, webhooks.StatusResponse{
		Status:  webhooks.StatusSuccess,
		Message: webhooks.MessageVideoJobStarted,
	})
}

// HandleHealth reports liveness
func (s *WebhookServer) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, webhooks.HealthStatus{
		Status:    "OK",
		Message:   "The backend is running.",
		Timestamp: s.now().Format(logger.TimeLayout),
	})
}

func enqueueFailureDetail(err error) string {
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return "Video processing queue is full, retry later"
	case errors.Is(err, queue.ErrManagerStopped):
		return "Video processing is shutting down"
	}
	return "Video processing job could not be started"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
