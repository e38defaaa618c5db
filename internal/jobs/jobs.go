package jobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// JobArgs is implemented by every job payload. Kind selects the worker that runs it.
type JobArgs interface {
	Kind() string
}

// Job is a unit of background work as handed to a worker
type Job[T JobArgs] struct {
	ID         string
	Args       T
	EnqueuedAt time.Time
	// SpanContext of the request that enqueued the job, used as a span link by workers
	SpanContext trace.SpanContext
}

// Worker runs jobs of a single kind
type Worker[T JobArgs] interface {
	Work(ctx context.Context, job *Job[T]) error
}
