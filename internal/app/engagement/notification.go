package engagement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/logger"
)

// Dispatcher turns unlock events into user-visible notifications.
//   - The notification record is written first; it is what the app shows.
//   - A push is requested afterwards, unless disabled or in quiet hours.
//   - If the record cannot be written, the event goes to the local outbox once.
//   - No failure here is ever returned to the unlock path.
type Dispatcher struct {
	store  domain.NotificationStore
	pusher domain.Pusher
	outbox *Outbox
	policy domain.NotificationPolicy
	format *Formatter
	loc    *time.Location
	now    func() time.Time
}

// NewDispatcher creates a dispatcher. pusher may be nil (no push transport).
func NewDispatcher(store domain.NotificationStore, pusher domain.Pusher, outbox *Outbox, policy domain.NotificationPolicy) *Dispatcher {
	if outbox == nil {
		outbox = NewOutbox(defaultOutboxSize)
	}
	return &Dispatcher{
		store:  store,
		pusher: pusher,
		outbox: outbox,
		policy: policy,
		format: DefaultFormatter(),
		loc:    time.UTC,
		now:    time.Now,
	}
}

// WithFormatter sets the formatter used for notification text.
func (d *Dispatcher) WithFormatter(f *Formatter) *Dispatcher {
	d.format = f
	return d
}

// WithLocation sets the calendar used for quiet hours.
func (d *Dispatcher) WithLocation(loc *time.Location) *Dispatcher {
	if loc != nil {
		d.loc = loc
	}
	return d
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(ctx context.Context, ev domain.UnlockEvent) {
	created := ev.UnlockedAt
	if created.IsZero() {
		created = d.now()
	}
	n := domain.Notification{
		ID:            uuid.NewString(),
		UserID:        ev.UserID,
		Type:          domain.NotifyAchievement,
		Title:         "Achievement unlocked: " + ev.Title,
		Body:          d.body(ev),
		AchievementID: ev.AchievementID,
		CreatedAt:     created,
	}

	if err := d.store.InsertNotification(ctx, n); err != nil {
		metrics.NotificationFailures.WithLabelValues("record").Inc()
		logger.Warn("notification record failed, using outbox", "component", "notify", "user", ev.UserID, "achievement", ev.AchievementID, "err", err)
		if !d.outbox.Add(n) {
			metrics.NotificationFailures.WithLabelValues("fallback").Inc()
			logger.Error("notification dropped", "component", "notify", "user", ev.UserID, "achievement", ev.AchievementID)
		}
	}

	d.push(ctx, n)
}

func (d *Dispatcher) push(ctx context.Context, n domain.Notification) {
	if d.pusher == nil || !d.policy.PushEnabled {
		metrics.PushesSuppressed.Inc()
		return
	}
	if d.isQuietHour(n.CreatedAt.In(d.loc)) {
		metrics.PushesSuppressed.Inc()
		logger.Debug("push held for quiet hours", "component", "notify", "user", n.UserID)
		return
	}
	err := d.pusher.Push(ctx, domain.PushRequest{
		ID:             uuid.NewString(),
		UserID:         n.UserID,
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		RequestedAt:    d.now(),
	})
	if err != nil {
		metrics.NotificationFailures.WithLabelValues("push").Inc()
		logger.Warn("push request failed", "component", "notify", "user", n.UserID, "err", err)
	}
}

func (d *Dispatcher) body(ev domain.UnlockEvent) string {
	if ev.Points <= 0 {
		return ev.Description
	}
	return fmt.Sprintf("%s +%s", ev.Description, d.format.Points(ev.Points))
}


// isQuietHour returns true if the given time falls within quiet hours.
func (d *Dispatcher) isQuietHour(t time.Time) bool {
	startHour, startMin := parseHHMM(d.policy.QuietStart)
	endHour, endMin := parseHHMM(d.policy.QuietEnd)

	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes == endMinutes {
		return false
	}
	if startMinutes > endMinutes {
		// Wraps midnight: e.g., 22:00 – 08:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}

// ─── Local Fallback ─────────────────────────────────────────────────────────

const defaultOutboxSize = 50

// Outbox holds notifications that could not be recorded in the store.
// It is bounded per user; when full, new entries are refused.
type Outbox struct {
	mu      sync.Mutex
	perUser int
	pending map[string][]domain.Notification
}

// NewOutbox creates an outbox holding at most perUser entries per user.
func NewOutbox(perUser int) *Outbox {
	if perUser <= 0 {
		perUser = defaultOutboxSize
	}
	return &Outbox{perUser: perUser, pending: make(map[string][]domain.Notification)}
}

// Add queues a notification. Returns false if the user's queue is full.
func (o *Outbox) Add(n domain.Notification) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending[n.UserID]) >= o.perUser {
		return false
	}
	o.pending[n.UserID] = append(o.pending[n.UserID], n)
	return true
}

// Drain removes and returns the user's queued notifications, oldest first.
func (o *Outbox) Drain(userID string) []domain.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending[userID]
	delete(o.pending, userID)
	return out
}

// Len returns how many notifications are queued for the user.
func (o *Outbox) Len(userID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending[userID])
}

// ─── Notification Service ───────────────────────────────────────────────────

// NotificationService serves a user's notification inbox.
type NotificationService struct {
	store  domain.NotificationStore
	outbox *Outbox
}

// NewNotificationService creates a notification service.
func NewNotificationService(store domain.NotificationStore, outbox *Outbox) *NotificationService {
	return &NotificationService{store: store, outbox: outbox}
}

// Pending returns unshown notifications. Outbox entries are handed over
// once, come first, and do not count against limit.
func (n *NotificationService) Pending(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.Notification
	if n.outbox != nil {
		out = append(out, n.outbox.Drain(userID)...)
	}
	stored, err := n.store.ListPendingNotifications(ctx, userID, limit)
	if err != nil {
		return out, err
	}
	return append(out, stored...), nil
}

// MarkShown marks a stored notification as shown.
func (n *NotificationService) MarkShown(ctx context.Context, userID, id string) error {
	return n.store.MarkNotificationShown(ctx, userID, id)
}
