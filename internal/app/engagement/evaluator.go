package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/infra/metrics"
	"github.com/breathe-app/breathe/internal/logger"
)

// EvaluatorStore is the read surface of one evaluation pass.
type EvaluatorStore interface {
	SnapshotStore
	domain.AchievementStore
}

// Evaluator runs the condition table against one snapshot and unlocks
// every newly satisfied achievement.
type Evaluator struct {
	store      EvaluatorStore
	aggregator *Aggregator
	unlocks    *UnlockManager
	publisher  *LeaderboardPublisher
	catalog    []domain.AchievementDef
	now        func() time.Time
}

// NewEvaluator creates an evaluator. publisher may be nil.
func NewEvaluator(store EvaluatorStore, aggregator *Aggregator, unlocks *UnlockManager, publisher *LeaderboardPublisher) *Evaluator {
	return &Evaluator{
		store:      store,
		aggregator: aggregator,
		unlocks:    unlocks,
		publisher:  publisher,
		catalog:    AllAchievements(),
		now:        time.Now,
	}
}

// Evaluate runs one pass as of now. See EvaluateAt.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) ([]string, error) {
	return e.EvaluateAt(ctx, userID, e.now())
}

// EvaluateAt runs one evaluation pass and returns the IDs unlocked by it,
// in catalog order.
//
// The snapshot and the unlocked set are each read once. A permission
// failure at any step ends the pass with an empty result and no error:
// it means the user's session went away mid-pass. Any other error is
// returned together with the IDs already unlocked; retrying is safe.
func (e *Evaluator) EvaluateAt(ctx context.Context, userID string, now time.Time) ([]string, error) {
	start := time.Now()
	defer func() { metrics.EvaluationLatency.Observe(time.Since(start).Seconds()) }()

	newly, err := e.evaluate(ctx, userID, now)
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		metrics.Evaluations.WithLabelValues("aborted").Inc()
		logger.Debug("evaluation aborted", "component", "evaluator", "user", userID, "err", err)
		return []string{}, nil
	case err != nil:
		metrics.Evaluations.WithLabelValues("error").Inc()
		return newly, err
	}
	metrics.Evaluations.WithLabelValues("ok").Inc()
	return newly, nil
}

func (e *Evaluator) evaluate(ctx context.Context, userID string, now time.Time) ([]string, error) {
	snap, profile, err := e.aggregator.aggregate(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	unlocked, err := e.store.ListUnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked: %w", err)
	}
	have := make(map[string]bool, len(unlocked))
	for _, u := range unlocked {
		have[u.AchievementID] = true
	}

	newly := []string{}
	for _, def := range e.catalog {
		if have[def.ID] || def.Predicate == nil || !def.Predicate(snap) {
			continue
		}
		res, err := e.unlocks.Unlock(ctx, userID, def.ID)
		if err != nil {
			return newly, err
		}
		if res.Unlocked {
			newly = append(newly, def.ID)
			profile.TotalPoints += def.Points
		}
	}

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, profile, snap); err != nil {
			if errors.Is(err, domain.ErrPermissionDenied) {
				return newly, err
			}
			logger.Warn("leaderboard publish failed", "component", "evaluator", "user", userID, "err", err)
		}
	}

	if len(newly) > 0 {
		logger.Info("evaluation unlocked achievements", "component", "evaluator", "user", userID, "count", len(newly))
	}
	return newly, nil
}
