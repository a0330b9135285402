// Package firestore provides the Cloud Firestore store.
//
// Layout:
//
//	users/{uid}                         profile and cached counters
//	users/{uid}/dailyLogs/{YYYY-MM-DD}  one entry per day
//	users/{uid}/achievements/{id}       unlock records
//	users/{uid}/challenges/{id}         completed challenges
//	users/{uid}/notifications/{id}      notification records
//	leaderboard/{uid}                   public leaderboard rows
//
// Dates are stored as ISO strings so range queries order correctly.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/breathe-app/breathe/internal/domain"
)

const (
	colUsers         = "users"
	colLogs          = "dailyLogs"
	colAchievements  = "achievements"
	colChallenges    = "challenges"
	colNotifications = "notifications"
	colLeaderboard   = "leaderboard"
)

// Store is a domain.Store backed by Cloud Firestore.
type Store struct {
	client *firestore.Client
}

var _ domain.Store = (*Store)(nil)

// Open creates a client for projectID. Credentials come from the
// environment unless opts say otherwise; FIRESTORE_EMULATOR_HOST is
// honored by the client library.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore: empty project id")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reads a sentinel document. A missing document is a healthy reply.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(colUsers).Doc("_ping").Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return mapErr(err)
}

func (s *Store) user(userID string) *firestore.DocumentRef {
	return s.client.Collection(colUsers).Doc(userID)
}

// mapErr translates rule and credential rejections into
// domain.ErrPermissionDenied.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, status.Convert(err).Message())
	}
	return err
}

// ─── Document Shapes ────────────────────────────────────────────────────────

type logDoc struct {
	Date             string    `firestore:"date"`
	CigarettesSmoked int       `firestore:"cigarettesSmoked"`
	SmokeFree        bool      `firestore:"smokeFree"`
	CravingsCount    int       `firestore:"cravingsCount"`
	MoodRating       int       `firestore:"moodRating"`
	StressLevel      int       `firestore:"stressLevel"`
	Notes            string    `firestore:"notes"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func toLogDoc(e domain.DailyLogEntry) logDoc {
	return logDoc{
		Date:             e.Date.String(),
		CigarettesSmoked: e.CigarettesSmoked,
		SmokeFree:        e.SmokeFree,
		CravingsCount:    e.CravingsCount,
		MoodRating:       e.MoodRating,
		StressLevel:      e.StressLevel,
		Notes:            e.Notes,
		UpdatedAt:        timeOrNow(e.UpdatedAt),
	}
}

func (d logDoc) entry(userID string) (domain.DailyLogEntry, error) {
	date, err := civil.ParseDate(d.Date)
	if err != nil {
		return domain.DailyLogEntry{}, fmt.Errorf("decode log date %q: %w", d.Date, err)
	}
	return domain.DailyLogEntry{
		UserID:           userID,
		Date:             date,
		CigarettesSmoked: d.CigarettesSmoked,
		SmokeFree:        d.SmokeFree,
		CravingsCount:    d.CravingsCount,
		MoodRating:       d.MoodRating,
		StressLevel:      d.StressLevel,
		Notes:            d.Notes,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

type profileDoc struct {
	DisplayName            string    `firestore:"displayName"`
	Avatar                 string    `firestore:"avatar"`
	Timezone               string    `firestore:"timezone"`
	QuitDate               *string   `firestore:"quitDate"`
	TargetQuitDate         *string   `firestore:"targetQuitDate"`
	DateMode               string    `firestore:"dateMode"`
	CigarettesPerDayBefore float64   `firestore:"cigarettesPerDayBefore"`
	CostPerPack            float64   `firestore:"costPerPack"`
	CigarettesPerPack      float64   `firestore:"cigarettesPerPack"`
	CurrentStreakDays      int       `firestore:"currentStreakDays"`
	StreakStartDate        *string   `firestore:"streakStartDate"`
	LastSlipDate           *string   `firestore:"lastSlipDate"`
	TotalPoints            int64     `firestore:"totalPoints"`
	AIMessagesCount        int       `firestore:"aiMessagesCount"`
	AudioSessionsCount     int       `firestore:"audioSessionsCount"`
	UpdatedAt              time.Time `firestore:"updatedAt"`
}

func (d profileDoc) profile(userID string) domain.UserProfile {
	mode := domain.DateMode(d.DateMode)
	if mode == "" {
		mode = domain.DateModeQuit
	}
	return domain.UserProfile{
		UserID:                 userID,
		DisplayName:            d.DisplayName,
		Avatar:                 d.Avatar,
		Timezone:               d.Timezone,
		QuitDate:               parseDate(d.QuitDate),
		TargetQuitDate:         parseDate(d.TargetQuitDate),
		DateMode:               mode,
		CigarettesPerDayBefore: max(0, d.CigarettesPerDayBefore),
		CostPerPack:            max(0, d.CostPerPack),
		CigarettesPerPack:      max(0, d.CigarettesPerPack),
		CurrentStreakDays:      d.CurrentStreakDays,
		StreakStartDate:        parseDate(d.StreakStartDate),
		LastSlipDate:           parseDate(d.LastSlipDate),
		TotalPoints:            d.TotalPoints,
		AIMessagesCount:        d.AIMessagesCount,
		AudioSessionsCount:     d.AudioSessionsCount,
	}
}

type unlockDoc struct {
	AchievementID string    `firestore:"achievementId"`
	UnlockedAt    time.Time `firestore:"unlockedAt"`
	Seen          bool      `firestore:"seen"`
}

type leaderboardDoc struct {
	Name        string    `firestore:"name"`
	Avatar      string    `firestore:"avatar"`
	Points      int64     `firestore:"points"`
	StreakDays  int       `firestore:"streakDays"`
	SavedAmount int64     `firestore:"savedAmount"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type notificationDoc struct {
	Type          string    `firestore:"type"`
	Title         string    `firestore:"title"`
	Body          string    `firestore:"body"`
	AchievementID string    `firestore:"achievementId"`
	CreatedAt     time.Time `firestore:"createdAt"`
	Shown         bool      `firestore:"shown"`
}

// dateValue returns the stored form of an optional date: an ISO string
// or nil.
func dateValue(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDate(s *string) *civil.Date {
	if s == nil || *s == "" {
		return nil
	}
	d, err := civil.ParseDate(*s)
	if err != nil {
		return nil
	}
	return &d
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// ─── Daily Logs ─────────────────────────────────────────────────────────────

// SaveEntry writes an entry and returns the one it replaced. Read and
// write share a transaction.
func (s *Store) SaveEntry(ctx context.Context, e domain.DailyLogEntry) (*domain.DailyLogEntry, error) {
	ref := s.user(e.UserID).Collection(colLogs).Doc(e.Date.String())
	var prev *domain.DailyLogEntry
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		prev = nil
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var d logDoc
			if err := snap.DataTo(&d); err != nil {
				return fmt.Errorf("decode log: %w", err)
			}
			old, err := d.entry(e.UserID)
			if err != nil {
				return err
			}
			prev = &old
		}
		return tx.Set(ref, toLogDoc(e))
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return prev, nil
}

// GetEntry returns one entry, or nil if the day was not logged.
func (s *Store) GetEntry(ctx context.Context, userID string, date civil.Date) (*domain.DailyLogEntry, error) {
	snap, err := s.user(userID).Collection(colLogs).Doc(date.String()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	var d logDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	e, err := d.entry(userID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns entries in [from, to], oldest first.
func (s *Store) ListEntries(ctx context.Context, userID string, from, to civil.Date) ([]domain.DailyLogEntry, error) {
	iter := s.user(userID).Collection(colLogs).
		Where("date", ">=", from.String()).
		Where("date", "<=", to.String()).
		OrderBy("date", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.DailyLogEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapErr(err)
		}
		var d logDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		e, err := d.entry(userID)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ListSlipDates returns slip dates in [from, to], newest first.
//
// Firestore cannot OR across two fields with a range on a third, so the
// two slip conditions run as separate queries and merge here. The
// cigarette query filters its date range client-side.
func (s *Store) ListSlipDates(ctx context.Context, userID string, from, to civil.Date) ([]civil.Date, error) {
	logs := s.user(userID).Collection(colLogs)
	seen := make(map[civil.Date]bool)

	collect := func(q firestore.Query) error {
		iter := q.Select("date").Documents(ctx)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return mapErr(err)
			}
			raw, err := snap.DataAt("date")
			if err != nil {
				return fmt.Errorf("decode slip date: %w", err)
			}
			str, _ := raw.(string)
			d, err := civil.ParseDate(str)
			if err != nil {
				return fmt.Errorf("decode slip date %q: %w", str, err)
			}
			if d.Before(from) || d.After(to) {
				continue
			}
			seen[d] = true
		}
	}

	if err := collect(logs.
		Where("smokeFree", "==", false).
		Where("date", ">=", from.String()).
		Where("date", "<=", to.String())); err != nil {
		return nil, err
	}
	if err := collect(logs.Where("cigarettesSmoked", ">", 0)); err != nil {
		return nil, err
	}

	out := make([]civil.Date, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

// CountEntries returns how many days the user has logged.
func (s *Store) CountEntries(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, s.user(userID).Collection(colLogs).Query)
}

func (s *Store) count(ctx context.Context, q firestore.Query) (int, error) {
	res, err := q.NewAggregationQuery().WithCount("n").Get(ctx)
	if err != nil {
		return 0, mapErr(err)
	}
	v, ok := res["n"]
	if !ok {
		return 0, errors.New("firestore: count missing from aggregation result")
	}
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case interface{ GetIntegerValue() int64 }:
		return int(n.GetIntegerValue()), nil
	}
	return 0, fmt.Errorf("firestore: unexpected count type %T", v)
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// GetProfile retrieves a profile. Returns nil if the user has none.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	snap, err := s.user(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p := d.profile(userID)
	return &p, nil
}

// SaveProfile merges the user-editable fields; derived fields are untouched.
func (s *Store) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	mode := p.DateMode
	if mode == "" {
		mode = domain.DateModeQuit
	}
	_, err := s.user(p.UserID).Set(ctx, map[string]any{
		"displayName":            p.DisplayName,
		"avatar":                 p.Avatar,
		"timezone":               p.Timezone,
		"quitDate":               dateValue(p.QuitDate),
		"targetQuitDate":         dateValue(p.TargetQuitDate),
		"dateMode":               string(mode),
		"cigarettesPerDayBefore": max(0, p.CigarettesPerDayBefore),
		"costPerPack":            max(0, p.CostPerPack),
		"cigarettesPerPack":      max(0, p.CigarettesPerPack),
		"updatedAt":              firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return mapErr(err)
}

// UpdateStreakCache writes the derived streak fields.
func (s *Store) UpdateStreakCache(ctx context.Context, userID string, st domain.StreakState) error {
	_, err := s.user(userID).Set(ctx, map[string]any{
		"currentStreakDays": st.CurrentDays,
		"streakStartDate":   dateValue(st.StartDate),
		"lastSlipDate":      dateValue(st.LastSlipDate),
		"updatedAt":         firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return mapErr(err)
}

// IncrementCounter atomically adds delta to one activity counter.
func (s *Store) IncrementCounter(ctx context.Context, userID string, c domain.Counter, delta int) error {
	var field string
	switch c {
	case domain.CounterAIMessages:
		field = "aiMessagesCount"
	case domain.CounterAudioSessions:
		field = "audioSessionsCount"
	default:
		return fmt.Errorf("unknown counter %q", c)
	}
	_, err := s.user(userID).Set(ctx, map[string]any{
		field:       firestore.Increment(delta),
		"updatedAt": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	return mapErr(err)
}

// ─── Achievements ───────────────────────────────────────────────────────────

// UnlockAchievement creates the unlock record and credits points in one
// transaction. A concurrent creator makes the transaction retry and see
// the record.
func (s *Store) UnlockAchievement(ctx context.Context, u domain.AchievementUnlock, points int64) (bool, error) {
	userRef := s.user(u.UserID)
	ref := userRef.Collection(colAchievements).Doc(u.AchievementID)

	var created bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		_, err := tx.Get(ref)
		if err == nil {
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Create(ref, unlockDoc{
			AchievementID: u.AchievementID,
			UnlockedAt:    timeOrNow(u.UnlockedAt),
		}); err != nil {
			return err
		}
		if points != 0 {
			if err := tx.Set(userRef, map[string]any{
				"totalPoints": firestore.Increment(points),
			}, firestore.MergeAll); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return created, nil
}

// IsAchievementUnlocked checks whether an achievement has been unlocked.
func (s *Store) IsAchievementUnlocked(ctx context.Context, userID, achievementID string) (bool, error) {
	_, err := s.user(userID).Collection(colAchievements).Doc(achievementID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

// ListUnlockedAchievements returns all of a user's unlocks, newest first.
func (s *Store) ListUnlockedAchievements(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	iter := s.user(userID).Collection(colAchievements).
		OrderBy("unlockedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.AchievementUnlock
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapErr(err)
		}
		var d unlockDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode unlock: %w", err)
		}
		out = append(out, domain.AchievementUnlock{
			UserID:        userID,
			AchievementID: snap.Ref.ID,
			UnlockedAt:    d.UnlockedAt,
			Seen:          d.Seen,
		})
	}
	return out, nil
}

// MarkAchievementSeen flags an unlock as seen. A missing unlock is a no-op.
func (s *Store) MarkAchievementSeen(ctx context.Context, userID, achievementID string) error {
	_, err := s.user(userID).Collection(colAchievements).Doc(achievementID).Update(ctx, []firestore.Update{
		{Path: "seen", Value: true},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return mapErr(err)
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// CompleteChallenge records a completed challenge. Returns false if it
// was already recorded.
func (s *Store) CompleteChallenge(ctx context.Context, userID, challengeID string, at time.Time) (bool, error) {
	_, err := s.user(userID).Collection(colChallenges).Doc(challengeID).Create(ctx, map[string]any{
		"challengeId": challengeID,
		"completedAt": timeOrNow(at),
	})
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

// CountCompletedChallenges returns how many challenges the user completed.
func (s *Store) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, s.user(userID).Collection(colChallenges).Query)
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// TopN returns the n highest rows for a metric, ties broken by user id.
func (s *Store) TopN(ctx context.Context, metric domain.LeaderboardMetric, n int) ([]domain.LeaderboardRow, error) {
	var field string
	switch metric {
	case domain.MetricPoints:
		field = "points"
	case domain.MetricStreak:
		field = "streakDays"
	case domain.MetricSaved:
		field = "savedAmount"
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMetric, metric)
	}
	iter := s.client.Collection(colLeaderboard).
		OrderBy(field, firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(n).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.LeaderboardRow
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapErr(err)
		}
		var d leaderboardDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode leaderboard row: %w", err)
		}
		out = append(out, domain.LeaderboardRow{
			UserID:      snap.Ref.ID,
			Name:        d.Name,
			Avatar:      d.Avatar,
			Points:      d.Points,
			StreakDays:  d.StreakDays,
			SavedAmount: d.SavedAmount,
			UpdatedAt:   d.UpdatedAt,
		})
	}
	return out, nil
}

// UpsertLeaderboardRow replaces a user's leaderboard row.
func (s *Store) UpsertLeaderboardRow(ctx context.Context, r domain.LeaderboardRow) error {
	_, err := s.client.Collection(colLeaderboard).Doc(r.UserID).Set(ctx, leaderboardDoc{
		Name:        r.Name,
		Avatar:      r.Avatar,
		Points:      r.Points,
		StreakDays:  r.StreakDays,
		SavedAmount: r.SavedAmount,
		UpdatedAt:   timeOrNow(r.UpdatedAt),
	})
	return mapErr(err)
}

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification creates a notification record.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.user(n.UserID).Collection(colNotifications).Doc(n.ID).Create(ctx, notificationDoc{
		Type:          string(n.Type),
		Title:         n.Title,
		Body:          n.Body,
		AchievementID: n.AchievementID,
		CreatedAt:     timeOrNow(n.CreatedAt),
		Shown:         n.Shown,
	})
	return mapErr(err)
}

// ListPendingNotifications returns a user's unshown notifications, newest first.
func (s *Store) ListPendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	iter := s.user(userID).Collection(colNotifications).
		Where("shown", "==", false).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.Notification
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapErr(err)
		}
		var d notificationDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, domain.Notification{
			ID:            snap.Ref.ID,
			UserID:        userID,
			Type:          domain.NotificationType(d.Type),
			Title:         d.Title,
			Body:          d.Body,
			AchievementID: d.AchievementID,
			CreatedAt:     d.CreatedAt,
			Shown:         d.Shown,
		})
	}
	return out, nil
}

// MarkNotificationShown marks a notification as shown. Records live under
// their owner, so another user's id is not found.
func (s *Store) MarkNotificationShown(ctx context.Context, userID, id string) error {
	_, err := s.user(userID).Collection(colNotifications).Doc(id).Update(ctx, []firestore.Update{
		{Path: "shown", Value: true},
	})
	if status.Code(err) == codes.NotFound {
		return domain.ErrNotificationNotFound
	}
	return mapErr(err)
}
