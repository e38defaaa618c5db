package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds application-specific instruments. A nil *Metrics records nothing.
type Metrics struct {
	WebhooksReceived metric.Int64Counter
	JobsEnqueued     metric.Int64Counter
	JobsCompleted    metric.Int64Counter
	FramesProcessed  metric.Int64Counter
	JobDuration      metric.Float64Histogram
	QueueDepth       metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on the global meter provider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(GetMeter("framehook"))
}

// NewMetricsWithMeter creates the instruments on meter
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	webhooksReceived, err := meter.Int64Counter(
		"framehook_webhooks_received_total",
		metric.WithDescription("Total number of webhook events received"),
	)
	if err != nil {
		return nil, err
	}

	jobsEnqueued, err := meter.Int64Counter(
		"framehook_jobs_enqueued_total",
		metric.WithDescription("Total number of background jobs enqueued"),
	)
	if err != nil {
		return nil, err
	}

	jobsCompleted, err := meter.Int64Counter(
		"framehook_jobs_completed_total",
		metric.WithDescription("Total number of background jobs finished, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	framesProcessed, err := meter.Int64Counter(
		"framehook_frames_processed_total",
		metric.WithDescription("Total number of sampled frames across all video jobs"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"framehook_job_duration_seconds",
		metric.WithDescription("Duration of background jobs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"framehook_queue_depth",
		metric.WithDescription("Current number of jobs waiting for a worker"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		WebhooksReceived: webhooksReceived,
		JobsEnqueued:     jobsEnqueued,
		JobsCompleted:    jobsCompleted,
		FramesProcessed:  framesProcessed,
		JobDuration:      jobDuration,
		QueueDepth:       queueDepth,
	}, nil
}

func (m *Metrics) RecordWebhook(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *Metrics) RecordEnqueued(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.JobsEnqueued.Add(ctx, 1, attrs)
	m.QueueDepth.Add(ctx, 1, attrs)
}

// RecordDequeued is called when a worker picks a job off the queue
func (m *Metrics) RecordDequeued(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordCompleted(ctx context.Context, kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
	m.JobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordFrames(ctx context.Context, strategy string, frames int) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(ctx, int64(frames), metric.WithAttributes(attribute.String("strategy", strategy)))
}
