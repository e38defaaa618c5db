package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarathsp06/framehook/internal/jobs"
	"github.com/sarathsp06/framehook/internal/logger"
	"github.com/sarathsp06/framehook/internal/queue"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []jobs.JobArgs
	err   error
	panic bool
}

func (f *fakeEnqueuer) Insert(_ context.Context, args jobs.JobArgs) (*queue.InsertResult, error) {
	if f.panic {
		panic("enqueue exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, args)
	return &queue.InsertResult{ID: "job-123", Kind: args.Kind(), EnqueuedAt: time.Now()}, nil
}

func (f *fakeEnqueuer) Calls() []jobs.JobArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jobs.JobArgs(nil), f.calls...)
}

type harness struct {
	handler http.Handler
	logs    *bytes.Buffer
	server  *WebhookServer
}

func newHarness(q Enqueuer) *harness {
	var buf bytes.Buffer
	s := NewWebhookServer(q, slog.New(logger.NewLineHandler(&buf, nil)), nil)
	return &harness{handler: NewRouter(s), logs: &buf, server: s}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const validVideoReady = `{"event_type": "video.ready", "data": {"video_url": "https://example.com/v.mp4", "user_id": "u1", "processing_strategy": "low_cost"}}`

func TestHandleWebhookEnqueuesVideoJob(t *testing.T) {
	q := &fakeEnqueuer{}
	h := newHarness(q)

	rec := h.do(t, http.MethodPost, "/webhook", validVideoReady)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"status": "success", "message": "Video processing job started"}, decodeBody(t, rec))

	calls := q.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, jobs.VideoArgs{
		VideoURL:           "https://example.com/v.mp4",
		UserID:             "u1",
		ProcessingStrategy: "low_cost",
	}, calls[0])

	logs := h.logs.String()
	assert.Contains(t, logs, " - INFO - Received webhook event: video.ready.")
	assert.Contains(t, logs, " - INFO - Video processing job for user 'u1' has been enqueued. ")
	assert.Contains(t, logs, "job_id=job-123")
}

func TestHandleWebhookRespondsBeforeJobCompletes(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	done := make(chan struct{}, 1)

	m := queue.New(queue.Config{Workers: 1, QueueSize: 4}, slog.New(logger.NewLineHandler(&bytes.Buffer{}, nil)), nil)
	queue.AddWorker[jobs.VideoArgs](m, workerFunc(func(context.Context, *jobs.Job[jobs.VideoArgs]) error {
		started <- struct{}{}
		<-release
		done <- struct{}{}
		return nil
	}))
	require.NoError(t, m.Start(context.Background()))

	h := newHarness(m)
	rec := h.do(t, http.MethodPost, "/webhook", validVideoReady)
	require.Equal(t, http.StatusOK, rec.Code)

	<-started
	select {
	case <-done:
		t.Fatal("job finished before the response was observed")
	default:
	}

	close(release)
	require.NoError(t, m.Stop(context.Background()))
	<-done
}

type workerFunc func(context.Context, *jobs.Job[jobs.VideoArgs]) error

func (f workerFunc) Work(ctx context.Context, job *jobs.Job[jobs.VideoArgs]) error { return f(ctx, job) }

func TestHandleWebhookRejectsInvalidVideoPayload(t *testing.T) {
	q := &fakeEnqueuer{}
	h := newHarness(q)

	rec := h.do(t, http.MethodPost, "/webhook", `{"event_type": "video.ready", "data": {"user_id": "u1"}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeBody(t, rec)["detail"]
	assert.True(t, strings.HasPrefix(detail, "Invalid webhook payload for event type 'video.ready'. Details: "), detail)
	assert.Contains(t, detail, "video_url: field required")
	assert.Contains(t, detail, "processing_strategy: field required")
	assert.Empty(t, q.Calls())

	logs := h.logs.String()
	assert.Contains(t, logs, " - ERROR - Error validating webhook payload for video processing: ")
	assert.NotContains(t, logs, "has been enqueued")
}

func TestHandleWebhookRejectsMalformedURL(t *testing.T) {
	q := &fakeEnqueuer{}
	h := newHarness(q)

	rec := h.do(t, http.MethodPost, "/webhook",
		`{"event_type": "video.ready", "data": {"video_url": "not a url", "user_id": "u1", "processing_strategy": "balanced"}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "video_url: invalid URL")
	assert.Empty(t, q.Calls())
}

func TestHandleWebhookOtherEvent(t *testing.T) {
	q := &fakeEnqueuer{}
	h := newHarness(q)

	rec := h.do(t, http.MethodPost, "/webhook", `{"event_type": "user.signup", "data": {}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{
		"status":  "success",
		"message": "Webhook received and processed (no video task)",
	}, decodeBody(t, rec))
	assert.Empty(t, q.Calls())
	assert.Contains(t, h.logs.String(), " - INFO - Webhook processed. No video processing task was initiated.")
}

func TestHandleWebhookMalformedEnvelope(t *testing.T) {
	q := &fakeEnqueuer{}
	h := newHarness(q)

	for _, body := range []string{`{`, `{"data": {}}`, `{"event_type": "video.ready"}`, `{"event_type": 1, "data": {}}`} {
		rec := h.do(t, http.MethodPost, "/webhook", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.NotEmpty(t, decodeBody(t, rec)["detail"])
	}
	assert.Empty(t, q.Calls())
	assert.Empty(t, h.logs.String(), "handler logic must not run for rejected envelopes")
}

func TestHandleWebhookEnqueueFailure(t *testing.T) {
	q := &fakeEnqueuer{err: queue.ErrQueueFull}
	h := newHarness(q)

	rec := h.do(t, http.MethodPost, "/webhook", validVideoReady)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Video processing queue is full, retry later", decodeBody(t, rec)["detail"])
	assert.Contains(t, h.logs.String(), " - ERROR - Failed to enqueue video processing job for user 'u1'")
	assert.NotContains(t, h.logs.String(), "has been enqueued")
}

func TestHandleWebhookRepeatedPostsEnqueueIndependentJobs(t *testing.T) {
	m := queue.NewManager(queue.Config{Workers: 1, QueueSize: 8}, slog.New(logger.NewLineHandler(&bytes.Buffer{}, nil)), nil)
	h := newHarness(m)

	for i := 0; i < 5; i++ {
		rec := h.do(t, http.MethodPost, "/webhook", validVideoReady)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 5, m.Pending())
	assert.Equal(t, 5, strings.Count(h.logs.String(), "has been enqueued"))

	require.NoError(t, m.Stop(context.Background()))
}

func TestHandleHealth(t *testing.T) {
	h := newHarness(&fakeEnqueuer{})

	rec := h.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "The backend is running.", body["message"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, body["timestamp"])
}

func TestHandleHealthUsesLocalClock(t *testing.T) {
	h := newHarness(&fakeEnqueuer{})
	h.server.now = func() time.Time { return time.Date(2026, 10, 19, 8, 5, 9, 0, time.Local) }

	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, "2026-10-19 08:05:09", decodeBody(t, rec)["timestamp"])
}

func TestRouterFallbacks(t *testing.T) {
	h := newHarness(&fakeEnqueuer{})

	rec := h.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]string{"description": "Not found"}, decodeBody(t, rec))

	rec = h.do(t, http.MethodGet, "/webhook", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method Not Allowed", decodeBody(t, rec)["detail"])
}

func TestRequestIDPropagation(t *testing.T) {
	h := newHarness(&fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"event_type":"user.signup","data":{}}`))
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, h.logs.String(), "request_id=req-42")

	rec = h.do(t, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRecoverMiddleware(t *testing.T) {
	h := newHarness(&fakeEnqueuer{panic: true})

	rec := h.do(t, http.MethodPost, "/webhook", validVideoReady)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", decodeBody(t, rec)["detail"])
	assert.Contains(t, h.logs.String(), " - ERROR - Handler panicked")
}
