package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
)

// flakyPusher fails the first failures calls, then records deliveries.
type flakyPusher struct {
	mu        sync.Mutex
	failures  int
	calls     int
	delivered []string
}

func (f *flakyPusher) Push(_ context.Context, req domain.PushRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	f.delivered = append(f.delivered, req.ID)
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(next domain.Pusher, cfg RetryConfig) (*RetryQueue, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	q := NewRetryQueue(next, cfg)
	q.now = clock.now
	return q, clock
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.BaseDelay)
	}
	if cfg.MaxDelay != time.Minute {
		t.Errorf("MaxDelay = %v, want 1m", cfg.MaxDelay)
	}
}

func TestRetryQueue_PassThrough(t *testing.T) {
	next := &flakyPusher{}
	q, _ := newTestQueue(next, RetryConfig{})

	if err := q.Push(context.Background(), domain.PushRequest{ID: "p1"}); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	if len(next.delivered) != 1 {
		t.Errorf("delivered = %v", next.delivered)
	}
}

func TestRetryQueue_RetriesAfterBackoff(t *testing.T) {
	next := &flakyPusher{failures: 2}
	q, clock := newTestQueue(next, RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute})
	ctx := context.Background()

	if err := q.Push(ctx, domain.PushRequest{ID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("Push() should queue the failure, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	// Not ready before the first backoff elapses.
	if n := q.Flush(ctx); n != 0 {
		t.Errorf("Flush() before backoff delivered %d", n)
	}

	// Second attempt fails and backs off 2s.
	clock.advance(time.Second)
	if n := q.Flush(ctx); n != 0 {
		t.Errorf("Flush() delivered %d, want 0", n)
	}
	clock.advance(time.Second)
	if n := q.Flush(ctx); n != 0 {
		t.Errorf("Flush() at 1s into a 2s backoff delivered %d", n)
	}
	clock.advance(time.Second)
	if n := q.Flush(ctx); n != 1 {
		t.Errorf("Flush() delivered %d, want 1", n)
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	if len(next.delivered) != 1 || next.delivered[0] != "p1" {
		t.Errorf("delivered = %v", next.delivered)
	}
	if st := q.Stats(); st.TotalRetries != 2 {
		t.Errorf("TotalRetries = %d, want 2", st.TotalRetries)
	}
}

func TestRetryQueue_Exhausted(t *testing.T) {
	next := &flakyPusher{failures: 100}
	q, clock := newTestQueue(next, RetryConfig{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Second})
	ctx := context.Background()

	if err := q.Push(ctx, domain.PushRequest{ID: "p1"}); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	for i := 0; i < 3; i++ {
		clock.advance(time.Second)
		q.Flush(ctx)
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after exhaustion", q.Len())
	}
	st := q.Stats()
	if st.TotalExhausted != 1 {
		t.Errorf("TotalExhausted = %d, want 1", st.TotalExhausted)
	}
	// One initial publish plus MaxRetries republishes.
	if next.calls != 3 {
		t.Errorf("calls = %d, want 3", next.calls)
	}
}

func TestRetryQueue_FullQueueReturnsError(t *testing.T) {
	next := &flakyPusher{failures: 100}
	q, _ := newTestQueue(next, RetryConfig{MaxPending: 1})
	ctx := context.Background()

	if err := q.Push(ctx, domain.PushRequest{ID: "p1"}); err != nil {
		t.Fatalf("first Push() error: %v", err)
	}
	if err := q.Push(ctx, domain.PushRequest{ID: "p2"}); err == nil {
		t.Error("expected error when the retry queue is full")
	}
	if st := q.Stats(); st.TotalDropped != 1 || st.Pending != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRetryQueue_OrderByNextRetry(t *testing.T) {
	next := &flakyPusher{failures: 3}
	q, clock := newTestQueue(next, RetryConfig{BaseDelay: time.Second})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, domain.PushRequest{ID: id}); err != nil {
			t.Fatalf("Push(%s) error: %v", id, err)
		}
	}

	clock.advance(time.Second)
	if n := q.Flush(ctx); n != 3 {
		t.Fatalf("Flush() delivered %d, want 3", n)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if next.delivered[i] != id {
			t.Errorf("delivered = %v, want %v", next.delivered, want)
			break
		}
	}
}

func TestRetryQueue_CancelledFlushKeepsEntries(t *testing.T) {
	next := &flakyPusher{failures: 1}
	q, clock := newTestQueue(next, RetryConfig{})

	if err := q.Push(context.Background(), domain.PushRequest{ID: "p1"}); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	clock.advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := q.Flush(ctx); n != 0 {
		t.Errorf("Flush() on cancelled ctx delivered %d", n)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestRetryQueue_RunStopsOnCancel(t *testing.T) {
	q, _ := newTestQueue(&flakyPusher{}, RetryConfig{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
