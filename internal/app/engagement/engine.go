package engagement

import (
	"context"
	"time"

	"golang.org/x/text/language"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/logger"
)

// Options configures an Engine.
type Options struct {
	Location   *time.Location // calendar for users without a profile timezone
	RankWindow int            // leaderboard rows read per metric
	Policy     domain.NotificationPolicy
	Currency   string        // ISO 4217 code for notification text
	Pusher     domain.Pusher // nil disables push
	OutboxSize int
}

// Engine wires every engagement service over one store.
type Engine struct {
	Logs          *LogService
	Profiles      *ProfileService
	Activity      *ActivityService
	Achievements  *AchievementService
	Aggregator    *Aggregator
	Ranker        *Ranker
	Evaluator     *Evaluator
	Dispatcher    *Dispatcher
	Notifications *NotificationService
	Format        *Formatter
}

// New builds an engine over store.
func New(store domain.Store, opts Options) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	format := NewFormatter(language.English, opts.Currency)
	outbox := NewOutbox(opts.OutboxSize)

	dispatcher := NewDispatcher(store, opts.Pusher, outbox, opts.Policy).
		WithFormatter(format).
		WithLocation(loc)
	ranker := NewRanker(store, opts.RankWindow)
	aggregator := NewAggregator(store, ranker, loc)
	unlocks := NewUnlockManager(store, dispatcher)
	logs := NewLogService(store, loc)

	return &Engine{
		Logs:          logs,
		Profiles:      NewProfileService(store, logs),
		Activity:      NewActivityService(store),
		Achievements:  NewAchievementService(store),
		Aggregator:    aggregator,
		Ranker:        ranker,
		Evaluator:     NewEvaluator(store, aggregator, unlocks, NewLeaderboardPublisher(store)),
		Dispatcher:    dispatcher,
		Notifications: NewNotificationService(store, outbox),
		Format:        format,
	}
}

// AfterAction runs the evaluation pass that follows every user action.
// Evaluation is best-effort: a failure is logged and reported as no unlocks.
func (e *Engine) AfterAction(ctx context.Context, userID, action string) []string {
	ids, err := e.Evaluator.Evaluate(ctx, userID)
	if err != nil {
		logger.Warn("evaluation failed", "component", "engine", "user", userID, "action", action, "err", err)
	}
	return ids
}
