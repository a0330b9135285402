package push

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/logger"
)

// ─── Retry Queue ────────────────────────────────────────────────────────────
// Failed publishes are re-queued with exponential backoff on a min-heap
// ordered by the earliest time each request may be retried. Requests that
// exhaust MaxRetries, or arrive while MaxPending are already waiting, are
// dropped; the in-app notification already exists, only the device push
// is lost.

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // Republish attempts before giving up
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
	MaxPending int           // Queue bound
	Interval   time.Duration // How often Run flushes ready requests
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		MaxPending: 1000,
		Interval:   time.Second,
	}
}

type retryEntry struct {
	req       domain.PushRequest
	attempt   int
	nextRetry time.Time
	lastErr   string
	seq       uint64
}

// retryHeap orders entries by nextRetry, then by insertion order.
type retryHeap []*retryEntry

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	if h[i].nextRetry.Equal(h[j].nextRetry) {
		return h[i].seq < h[j].seq
	}
	return h[i].nextRetry.Before(h[j].nextRetry)
}
func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)   { *h = append(*h, x.(*retryEntry)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// RetryQueue wraps a Pusher and republishes failed requests in the background.
type RetryQueue struct {
	next   domain.Pusher
	config RetryConfig
	now    func() time.Time

	mu      sync.Mutex
	pending retryHeap
	seq     uint64

	// Stats
	totalRetries   int64
	totalExhausted int64
	totalDropped   int64
}

var _ domain.Pusher = (*RetryQueue)(nil)

// NewRetryQueue wraps next. Zero config fields take DefaultRetryConfig values.
func NewRetryQueue(next domain.Pusher, cfg RetryConfig) *RetryQueue {
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &RetryQueue{next: next, config: cfg, now: time.Now}
}

// Push publishes req. A failed publish is queued for retry and reports
// success; an error is returned only when the request could not be queued.
func (q *RetryQueue) Push(ctx context.Context, req domain.PushRequest) error {
	err := q.next.Push(ctx, req)
	if err == nil {
		return nil
	}
	if !q.schedule(&retryEntry{req: req, lastErr: err.Error()}) {
		return fmt.Errorf("push not queued for retry: %w", err)
	}
	logger.Warn("push request queued for retry", "component", "push", "user", req.UserID, "id", req.ID, "err", err)
	return nil
}

// schedule re-queues e with exponential backoff. Returns false when e has
// exceeded MaxRetries or the queue is full.
func (q *RetryQueue) schedule(e *retryEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.attempt++
	if e.attempt > q.config.MaxRetries {
		q.totalExhausted++
		metrics.PushRetries.WithLabelValues("exhausted").Inc()
		return false
	}
	if len(q.pending) >= q.config.MaxPending {
		q.totalDropped++
		metrics.PushRetries.WithLabelValues("dropped").Inc()
		return false
	}

	// baseDelay * 2^(attempt-1), capped
	delay := q.config.BaseDelay
	for i := 1; i < e.attempt; i++ {
		delay *= 2
		if delay >= q.config.MaxDelay {
			delay = q.config.MaxDelay
			break
		}
	}
	e.nextRetry = q.now().Add(delay)
	q.seq++
	e.seq = q.seq

	heap.Push(&q.pending, e)
	metrics.PushRetryPending.Set(float64(len(q.pending)))
	return true
}

// takeReady pops every entry whose retry time has passed.
func (q *RetryQueue) takeReady() []*retryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*retryEntry
	for len(q.pending) > 0 && !q.pending[0].nextRetry.After(now) {
		ready = append(ready, heap.Pop(&q.pending).(*retryEntry))
	}
	metrics.PushRetryPending.Set(float64(len(q.pending)))
	return ready
}

// Flush republishes every ready request and returns how many went through.
func (q *RetryQueue) Flush(ctx context.Context) int {
	delivered := 0
	for _, e := range q.takeReady() {
		if ctx.Err() != nil {
			q.requeue(e)
			continue
		}
		q.mu.Lock()
		q.totalRetries++
		q.mu.Unlock()

		err := q.next.Push(ctx, e.req)
		if err == nil {
			delivered++
			metrics.PushRetries.WithLabelValues("ok").Inc()
			continue
		}
		e.lastErr = err.Error()
		if q.schedule(e) {
			metrics.PushRetries.WithLabelValues("requeued").Inc()
			continue
		}
		logger.Error("push request abandoned", "component", "push", "user", e.req.UserID,
			"id", e.req.ID, "attempts", e.attempt-1, "err", e.lastErr)
	}
	return delivered
}

// requeue puts e back without counting an attempt.
func (q *RetryQueue) requeue(e *retryEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pending, e)
	metrics.PushRetryPending.Set(float64(len(q.pending)))
}

// Run flushes ready requests every Interval until ctx is cancelled.
func (q *RetryQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := q.Len(); n > 0 {
				logger.Warn("push retries pending at shutdown", "component", "push", "pending", n)
			}
			return
		case <-ticker.C:
			q.Flush(ctx)
		}
	}
}

// Len returns the number of requests waiting for a retry.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	Pending        int   `json:"pending"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"`
	TotalDropped   int64 `json:"total_dropped"`
}

// Stats returns current retry queue statistics.
func (q *RetryQueue) Stats() RetryStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return RetryStats{
		Pending:        len(q.pending),
		TotalRetries:   q.totalRetries,
		TotalExhausted: q.totalExhausted,
		TotalDropped:   q.totalDropped,
	}
}
