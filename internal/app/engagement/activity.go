package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
)

// ActivityStore holds the activity counters and challenge completions.
type ActivityStore interface {
	domain.ProfileStore
	domain.ChallengeStore
}

// ActivityService records the user actions that feed counter-based
// achievements.
type ActivityService struct {
	store ActivityStore
	now   func() time.Time
}

// NewActivityService creates an activity service.
func NewActivityService(store ActivityStore) *ActivityService {
	return &ActivityService{store: store, now: time.Now}
}

// RecordAIMessage counts one message sent to the coach.
func (a *ActivityService) RecordAIMessage(ctx context.Context, userID string) error {
	return a.increment(ctx, userID, domain.CounterAIMessages)
}

// RecordAudioSession counts one audio session played.
func (a *ActivityService) RecordAudioSession(ctx context.Context, userID string) error {
	return a.increment(ctx, userID, domain.CounterAudioSessions)
}

// CompleteChallenge records a completed challenge. Completing the same
// challenge again returns false and changes nothing.
func (a *ActivityService) CompleteChallenge(ctx context.Context, userID, challengeID string) (bool, error) {
	if challengeID == "" {
		return false, fmt.Errorf("complete challenge: empty challenge id")
	}
	ok, err := a.store.CompleteChallenge(ctx, userID, challengeID, a.now())
	if err != nil {
		return false, fmt.Errorf("complete challenge %s: %w", challengeID, err)
	}
	return ok, nil
}

func (a *ActivityService) increment(ctx context.Context, userID string, c domain.Counter) error {
	if err := a.store.IncrementCounter(ctx, userID, c, 1); err != nil {
		return fmt.Errorf("increment %s: %w", c, err)
	}
	return nil
}
