package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

var ctx = context.Background()

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Check file exists
	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := db.SaveEntry(ctx, domain.DailyLogEntry{UserID: "u1", Date: day("2024-01-01"), SmokeFree: true}); err != nil {
		t.Fatalf("SaveEntry() error: %v", err)
	}
	db.Close()

	// Migrations are idempotent and data survives.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	n, err := db.CountEntries(ctx, "u1")
	if err != nil || n != 1 {
		t.Errorf("CountEntries() = %d, %v; want 1", n, err)
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

// ─── Daily Logs ─────────────────────────────────────────────────────────────

func TestSaveEntry_InsertReturnsNoPrevious(t *testing.T) {
	db := newTestDB(t)

	prev, err := db.SaveEntry(ctx, domain.DailyLogEntry{
		UserID: "u1", Date: day("2024-01-02"), SmokeFree: true, MoodRating: 4, Notes: "fine",
	})
	if err != nil {
		t.Fatalf("SaveEntry() error: %v", err)
	}
	if prev != nil {
		t.Errorf("first save should have no previous entry, got %+v", prev)
	}

	got, err := db.GetEntry(ctx, "u1", day("2024-01-02"))
	if err != nil {
		t.Fatalf("GetEntry() error: %v", err)
	}
	if got == nil || !got.SmokeFree || got.MoodRating != 4 || got.Notes != "fine" {
		t.Errorf("GetEntry() = %+v", got)
	}
}

func TestSaveEntry_UpdateReturnsPrevious(t *testing.T) {
	db := newTestDB(t)

	_, _ = db.SaveEntry(ctx, domain.DailyLogEntry{UserID: "u1", Date: day("2024-01-02"), SmokeFree: true})
	prev, err := db.SaveEntry(ctx, domain.DailyLogEntry{UserID: "u1", Date: day("2024-01-02"), CigarettesSmoked: 3})
	if err != nil {
		t.Fatalf("SaveEntry() error: %v", err)
	}
	if prev == nil || !prev.SmokeFree {
		t.Fatalf("previous = %+v, want smoke-free entry", prev)
	}

	got, _ := db.GetEntry(ctx, "u1", day("2024-01-02"))
	if got.CigarettesSmoked != 3 || got.SmokeFree {
		t.Errorf("updated entry = %+v", got)
	}
	if n, _ := db.CountEntries(ctx, "u1"); n != 1 {
		t.Errorf("update must not add a row, count = %d", n)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	db := newTestDB(t)
	got, err := db.GetEntry(ctx, "u1", day("2024-01-01"))
	if err != nil {
		t.Fatalf("GetEntry() error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListEntries_Range(t *testing.T) {
	db := newTestDB(t)
	for _, d := range []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-07"} {
		_, _ = db.SaveEntry(ctx, domain.DailyLogEntry{UserID: "u1", Date: day(d), SmokeFree: true})
	}
	_, _ = db.SaveEntry(ctx, domain.DailyLogEntry{UserID: "u2", Date: day("2024-01-04"), SmokeFree: true})

	entries, err := db.ListEntries(ctx, "u1", day("2024-01-03"), day("2024-01-05"))
	if err != nil {
		t.Fatalf("ListEntries() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Date != day("2024-01-03") || entries[1].Date != day("2024-01-05") {
		t.Errorf("entries out of order: %v, %v", entries[0].Date, entries[1].Date)
	}
}

func TestListSlipDates_EitherFieldCounts(t *testing.T) {
	db := newTestDB(t)
	entries := []domain.DailyLogEntry{
		{UserID: "u1", Date: day("2024-01-02"), SmokeFree: true},
		{UserID: "u1", Date: day("2024-01-03"), CigarettesSmoked: 2, SmokeFree: false},
		// Legacy rows with only one field right.
		{UserID: "u1", Date: day("2024-01-04"), CigarettesSmoked: 0, SmokeFree: false},
		{UserID: "u1", Date: day("2024-01-05"), CigarettesSmoked: 1, SmokeFree: true},
		// Outside range.
		{UserID: "u1", Date: day("2024-01-20"), CigarettesSmoked: 5},
		// Other user.
		{UserID: "u2", Date: day("2024-01-06"), CigarettesSmoked: 5},
	}
	for _, e := range entries {
		if _, err := db.SaveEntry(ctx, e); err != nil {
			t.Fatalf("SaveEntry(%s) error: %v", e.Date, err)
		}
	}

	dates, err := db.ListSlipDates(ctx, "u1", day("2024-01-01"), day("2024-01-10"))
	if err != nil {
		t.Fatalf("ListSlipDates() error: %v", err)
	}
	want := []civil.Date{day("2024-01-05"), day("2024-01-04"), day("2024-01-03")}
	if len(dates) != len(want) {
		t.Fatalf("ListSlipDates() = %v, want %v", dates, want)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func TestGetProfile_NotFound(t *testing.T) {
	db := newTestDB(t)
	p, err := db.GetProfile(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	quit := day("2024-01-01")

	err := db.SaveProfile(ctx, domain.UserProfile{
		UserID:                 "u1",
		DisplayName:            "Sam",
		Timezone:               "Europe/Berlin",
		QuitDate:               &quit,
		DateMode:               domain.DateModeQuit,
		CigarettesPerDayBefore: 20,
		CostPerPack:            8.5,
		CigarettesPerPack:      20,
	})
	if err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}

	p, err := db.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	if p.DisplayName != "Sam" || p.Timezone != "Europe/Berlin" {
		t.Errorf("profile = %+v", p)
	}
	if p.QuitDate == nil || *p.QuitDate != quit {
		t.Errorf("QuitDate = %v, want %s", p.QuitDate, quit)
	}
	if p.TargetQuitDate != nil {
		t.Errorf("TargetQuitDate = %v, want nil", p.TargetQuitDate)
	}
	if p.CostPerPack != 8.5 || p.CigarettesPerPack != 20 {
		t.Errorf("consumption = %v/%v", p.CostPerPack, p.CigarettesPerPack)
	}
}

func TestSaveProfile_PreservesDerivedFields(t *testing.T) {
	db := newTestDB(t)

	start := day("2024-01-06")
	_ = db.UpdateStreakCache(ctx, "u1", domain.StreakState{CurrentDays: 4, StartDate: &start})
	_ = db.IncrementCounter(ctx, "u1", domain.CounterAIMessages, 3)
	_, _ = db.UnlockAchievement(ctx, domain.AchievementUnlock{UserID: "u1", AchievementID: "a"}, 50)

	if err := db.SaveProfile(ctx, domain.UserProfile{UserID: "u1", DisplayName: "Sam"}); err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}

	p, _ := db.GetProfile(ctx, "u1")
	if p.CurrentStreakDays != 4 || p.StreakStartDate == nil || *p.StreakStartDate != start {
		t.Errorf("streak cache lost: %+v", p)
	}
	if p.AIMessagesCount != 3 || p.TotalPoints != 50 {
		t.Errorf("counters lost: ai=%d points=%d", p.AIMessagesCount, p.TotalPoints)
	}
}

func TestSaveProfile_NonPositiveConsumptionStoredAsNull(t *testing.T) {
	db := newTestDB(t)
	_ = db.SaveProfile(ctx, domain.UserProfile{UserID: "u1", CigarettesPerPack: -5})

	p, _ := db.GetProfile(ctx, "u1")
	if p.CigarettesPerPack != 0 {
		t.Errorf("CigarettesPerPack = %v, want 0", p.CigarettesPerPack)
	}
}

func TestUpdateStreakCache_ClearsSlip(t *testing.T) {
	db := newTestDB(t)
	slip := day("2024-01-05")
	start := day("2024-01-06")
	_ = db.UpdateStreakCache(ctx, "u1", domain.StreakState{CurrentDays: 4, StartDate: &start, LastSlipDate: &slip})

	quit := day("2024-01-01")
	_ = db.UpdateStreakCache(ctx, "u1", domain.StreakState{CurrentDays: 9, StartDate: &quit})

	p, _ := db.GetProfile(ctx, "u1")
	if p.LastSlipDate != nil {
		t.Errorf("LastSlipDate = %v, want nil", p.LastSlipDate)
	}
	if p.CurrentStreakDays != 9 {
		t.Errorf("CurrentStreakDays = %d, want 9", p.CurrentStreakDays)
	}
}

func TestIncrementCounter(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 3; i++ {
		if err := db.IncrementCounter(ctx, "u1", domain.CounterAudioSessions, 1); err != nil {
			t.Fatalf("IncrementCounter() error: %v", err)
		}
	}
	p, _ := db.GetProfile(ctx, "u1")
	if p.AudioSessionsCount != 3 {
		t.Errorf("AudioSessionsCount = %d, want 3", p.AudioSessionsCount)
	}

	if err := db.IncrementCounter(ctx, "u1", domain.Counter("bogus"), 1); err == nil {
		t.Error("expected error for unknown counter")
	}
}

// ─── Achievements ───────────────────────────────────────────────────────────

func TestUnlockAchievement_Once(t *testing.T) {
	db := newTestDB(t)
	first := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	ok, err := db.UnlockAchievement(ctx, domain.AchievementUnlock{UserID: "u1", AchievementID: "streak_7", UnlockedAt: first}, 100)
	if err != nil || !ok {
		t.Fatalf("first unlock = %v, %v; want true", ok, err)
	}

	ok, err = db.UnlockAchievement(ctx, domain.AchievementUnlock{UserID: "u1", AchievementID: "streak_7", UnlockedAt: first.Add(time.Hour)}, 100)
	if err != nil || ok {
		t.Fatalf("second unlock = %v, %v; want false", ok, err)
	}

	list, _ := db.ListUnlockedAchievements(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected 1 unlock, got %d", len(list))
	}
	if !list[0].UnlockedAt.Equal(first) {
		t.Errorf("UnlockedAt changed: %v, want %v", list[0].UnlockedAt, first)
	}

	p, _ := db.GetProfile(ctx, "u1")
	if p.TotalPoints != 100 {
		t.Errorf("points credited %d, want 100 (once)", p.TotalPoints)
	}
}

func TestUnlockAchievement_Concurrent(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.UnlockAchievement(ctx, domain.AchievementUnlock{UserID: "u1", AchievementID: "log_1"}, 10)
			if err != nil {
				t.Errorf("unlock error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	p, _ := db.GetProfile(ctx, "u1")
	if p.TotalPoints != 10 {
		t.Errorf("TotalPoints = %d, want 10", p.TotalPoints)
	}
}

func TestUnlockAchievement_PerUser(t *testing.T) {
	db := newTestDB(t)
	_, _ = db.UnlockAchievement(ctx, domain.AchievementUnlock{UserID: "u1", AchievementID: "log_1"}, 0)

	ok, _ := db.IsAchievementUnlocked(ctx, "u1", "log_1")
	if !ok {
		t.Error("u1 should have log_1")
	}
	ok, _ = db.IsAchievementUnlocked(ctx, "u2", "log_1")
	if ok {
		t.Error("u2 should not have log_1")
	}
}

func TestMarkAchievementSeen(t *testing.T) {
	db := newTestDB(t)
	_, _ = db.UnlockAchievement(ctx, domain.AchievementUnlock{UserID: "u1", AchievementID: "log_1"}, 0)

	if err := db.MarkAchievementSeen(ctx, "u1", "log_1"); err != nil {
		t.Fatalf("MarkAchievementSeen() error: %v", err)
	}
	list, _ := db.ListUnlockedAchievements(ctx, "u1")
	if len(list) != 1 || !list[0].Seen {
		t.Errorf("expected seen unlock, got %+v", list)
	}
}

// ─── Challenges ─────────────────────────────────────────────────────────────

func TestCompleteChallenge_Idempotent(t *testing.T) {
	db := newTestDB(t)

	ok, _ := db.CompleteChallenge(ctx, "u1", "walk-10min", time.Now())
	if !ok {
		t.Error("first completion should be new")
	}
	ok, _ = db.CompleteChallenge(ctx, "u1", "walk-10min", time.Now())
	if ok {
		t.Error("second completion should not be new")
	}
	_, _ = db.CompleteChallenge(ctx, "u1", "drink-water", time.Now())

	n, err := db.CountCompletedChallenges(ctx, "u1")
	if err != nil || n != 2 {
		t.Errorf("CountCompletedChallenges() = %d, %v; want 2", n, err)
	}
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func TestTopN_OrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	rows := []domain.LeaderboardRow{
		{UserID: "a", Points: 100, StreakDays: 5, SavedAmount: 10},
		{UserID: "b", Points: 300, StreakDays: 1, SavedAmount: 50},
		{UserID: "c", Points: 200, StreakDays: 9, SavedAmount: 30},
		{UserID: "d", Points: 50, StreakDays: 3, SavedAmount: 90},
	}
	for _, r := range rows {
		if err := db.UpsertLeaderboardRow(ctx, r); err != nil {
			t.Fatalf("UpsertLeaderboardRow() error: %v", err)
		}
	}

	tests := []struct {
		metric domain.LeaderboardMetric
		want   []string
	}{
		{domain.MetricPoints, []string{"b", "c", "a"}},
		{domain.MetricStreak, []string{"c", "a", "d"}},
		{domain.MetricSaved, []string{"d", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			top, err := db.TopN(ctx, tt.metric, 3)
			if err != nil {
				t.Fatalf("TopN() error: %v", err)
			}
			if len(top) != 3 {
				t.Fatalf("expected 3 rows, got %d", len(top))
			}
			for i, id := range tt.want {
				if top[i].UserID != id {
					t.Errorf("position %d = %s, want %s", i+1, top[i].UserID, id)
				}
			}
		})
	}
}

func TestTopN_UnknownMetric(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.TopN(ctx, domain.LeaderboardMetric("level"), 3); !errors.Is(err, domain.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestUpsertLeaderboardRow_Update(t *testing.T) {
	db := newTestDB(t)
	_ = db.UpsertLeaderboardRow(ctx, domain.LeaderboardRow{UserID: "a", Name: "Old", Points: 1})
	_ = db.UpsertLeaderboardRow(ctx, domain.LeaderboardRow{UserID: "a", Name: "New", Points: 9})

	top, _ := db.TopN(ctx, domain.MetricPoints, 10)
	if len(top) != 1 || top[0].Name != "New" || top[0].Points != 9 {
		t.Errorf("TopN() = %+v", top)
	}
}

// ─── Notifications ──────────────────────────────────────────────────────────

func TestNotifications_PendingAndShown(t *testing.T) {
	db := newTestDB(t)
	n := domain.Notification{
		ID: "n1", UserID: "u1", Type: domain.NotifyAchievement,
		Title: "Week Warrior", Body: "7 days smoke-free", AchievementID: "streak_7",
		CreatedAt: time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC),
	}
	if err := db.InsertNotification(ctx, n); err != nil {
		t.Fatalf("InsertNotification() error: %v", err)
	}
	_ = db.InsertNotification(ctx, domain.Notification{ID: "n2", UserID: "u2", Type: domain.NotifyAchievement, Title: "x", Body: "y"})

	pending, err := db.ListPendingNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListPendingNotifications() error: %v", err)
	}
	if len(pending) != 1 || pending[0].AchievementID != "streak_7" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := db.MarkNotificationShown(ctx, "u1", "n1"); err != nil {
		t.Fatalf("MarkNotificationShown() error: %v", err)
	}
	pending, _ = db.ListPendingNotifications(ctx, "u1", 10)
	if len(pending) != 0 {
		t.Errorf("expected 0 pending, got %d", len(pending))
	}
}

func TestMarkNotificationShown_WrongUser(t *testing.T) {
	db := newTestDB(t)
	_ = db.InsertNotification(ctx, domain.Notification{ID: "n1", UserID: "u1", Type: domain.NotifyAchievement, Title: "t", Body: "b"})

	err := db.MarkNotificationShown(ctx, "u2", "n1")
	if !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
}
