package engagement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/logger"
)

// Notifier receives one event per successful unlock. It owns its own
// failure handling; nothing it does can undo the unlock.
type Notifier interface {
	Notify(ctx context.Context, ev domain.UnlockEvent)
}

// UnlockManager is the only writer of unlock records.
//
// State machine per (user, achievement): LOCKED -> UNLOCKED, never back.
// Exactly-once is guaranteed by the store's atomic check-and-create. The
// in-flight set only saves a store round trip for concurrent attempts in
// this process.
type UnlockManager struct {
	store    domain.AchievementStore
	notifier Notifier
	byID     map[string]domain.AchievementDef
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewUnlockManager creates an unlock manager for the full catalog.
// notifier may be nil.
func NewUnlockManager(store domain.AchievementStore, notifier Notifier) *UnlockManager {
	return &UnlockManager{
		store:    store,
		notifier: notifier,
		byID:     indexAchievements(AllAchievements()),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Unlock moves the achievement to UNLOCKED for the user.
//
// Unlocked is true only for the single call that created the record; that
// call, and no other, notifies. Losing the race to another writer is not
// an error and reports Deduped.
func (m *UnlockManager) Unlock(ctx context.Context, userID, achievementID string) (domain.UnlockResult, error) {
	def, ok := m.byID[achievementID]
	if !ok {
		return domain.UnlockResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownAchievement, achievementID)
	}

	key := userID + "/" + achievementID
	if !m.acquire(key) {
		metrics.UnlockDedups.WithLabelValues("inflight").Inc()
		return domain.UnlockResult{Deduped: true}, nil
	}
	defer m.release(key)

	at := m.now()
	// A submitted write completes even if the caller stops waiting.
	created, err := m.store.UnlockAchievement(context.WithoutCancel(ctx), domain.AchievementUnlock{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    at,
	}, def.Points)
	if err != nil {
		return domain.UnlockResult{}, fmt.Errorf("unlock %s: %w", achievementID, err)
	}
	if !created {
		metrics.UnlockDedups.WithLabelValues("store").Inc()
		return domain.UnlockResult{Deduped: true}, nil
	}

	metrics.Unlocks.WithLabelValues(string(def.Category)).Inc()
	logger.Info("achievement unlocked", "component", "unlock", "user", userID, "achievement", achievementID, "points", def.Points)

	if m.notifier != nil {
		m.notifier.Notify(ctx, domain.UnlockEvent{
			UserID:        userID,
			AchievementID: achievementID,
			Title:         def.Title,
			Description:   def.Description,
			Points:        def.Points,
			UnlockedAt:    at,
		})
	}
	return domain.UnlockResult{Unlocked: true}, nil
}

func (m *UnlockManager) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *UnlockManager) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}
