package workers

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sarathsp06/framehook/internal/jobs"
	"github.com/sarathsp06/framehook/internal/logger"
	"github.com/sarathsp06/framehook/internal/observability"
)

// FrameCount is the fixed length, in frames, of every simulated video
const FrameCount = 1000

// VideoProcessingWorker simulates processing a video by sampling its frames
type VideoProcessingWorker struct {
	log     *slog.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
}

// NewVideoProcessingWorker creates a new video processing worker. A nil log uses the
// process-wide logger.
func NewVideoProcessingWorker(log *slog.Logger, metrics *observability.Metrics) *VideoProcessingWorker {
	if log == nil {
		log = logger.NewLogger("video-worker")
	}
	return &VideoProcessingWorker{
		log:     log,
		tracer:  observability.GetTracer("framehook.workers.video"),
		metrics: metrics,
	}
}

// Work runs the simulation to completion. It never fails.
func (w *VideoProcessingWorker) Work(ctx context.Context, job *jobs.Job[jobs.VideoArgs]) error {
	args := job.Args

	opts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("job_id", job.ID),
			attribute.String("user_id", args.UserID),
			attribute.String("strategy", args.ProcessingStrategy),
		),
	}
	if job.SpanContext.IsValid() {
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: job.SpanContext}))
	}
	ctx, span := w.tracer.Start(ctx, "video.process", opts...)
	defer span.End()

	log := w.log.With("job_id", job.ID)

	log.InfoContext(ctx, fmt.Sprintf("Starting video processing for user: %s from URL: %s", args.UserID, args.VideoURL))

	strategy := args.Strategy()
	rate, known := strategy.SamplingRate()
	if known {
		log.InfoContext(ctx, fmt.Sprintf("Using '%s' strategy: %s", strategy, strategy.Description()))
	} else {
		log.WarnContext(ctx, fmt.Sprintf("Unknown strategy '%s'. Defaulting to 'balanced'.", strategy))
		strategy = jobs.StrategyBalanced
	}

	processed := SampleFrames(FrameCount, rate)

	log.InfoContext(ctx, fmt.Sprintf("Video processing complete for user %s.", args.UserID))
	log.InfoContext(ctx, fmt.Sprintf("Total frames: %d, Processed frames: %d", FrameCount, processed))

	span.SetAttributes(attribute.Int("processed_frames", processed))
	w.metrics.RecordFrames(ctx, string(strategy), processed)
	return nil
}

// SampleFrames counts the frames kept when every rate-th frame of frameCount is sampled.
// rate must be positive.
func SampleFrames(frameCount, rate int) int {
	processed := 0
	for i := 0; i < frameCount; i++ {
		if (i+1)%rate == 0 {
			processed++
		}
	}
	return processed
}
