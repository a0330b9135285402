package firestore

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/breathe-app/breathe/internal/domain"
)

// testStore connects to the emulator at FIRESTORE_EMULATOR_HOST.
func testStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	s, err := Open(context.Background(), "breathe-test")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newUser() string { return "u-" + uuid.NewString() }

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ═══════════════════════════════════════════════════════════════════════════
// Pure helpers
// ═══════════════════════════════════════════════════════════════════════════

func TestMapErr(t *testing.T) {
	tests := []struct {
		err  error
		perm bool
	}{
		{status.Error(codes.PermissionDenied, "rules"), true},
		{status.Error(codes.Unauthenticated, "token"), true},
		{status.Error(codes.Unavailable, "down"), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := mapErr(tt.err); errors.Is(got, domain.ErrPermissionDenied) != tt.perm {
			t.Errorf("mapErr(%v) = %v, permission = %v", tt.err, got, tt.perm)
		}
	}
	if mapErr(nil) != nil {
		t.Error("mapErr(nil) should be nil")
	}
}

func TestProfileDoc_Defaults(t *testing.T) {
	quit := "2025-01-10"
	bad := "not-a-date"
	p := profileDoc{QuitDate: &quit, TargetQuitDate: &bad, CostPerPack: -3}.profile("u1")

	if p.DateMode != domain.DateModeQuit {
		t.Errorf("DateMode = %q, want quit", p.DateMode)
	}
	if p.QuitDate == nil || *p.QuitDate != day("2025-01-10") {
		t.Errorf("QuitDate = %v", p.QuitDate)
	}
	if p.TargetQuitDate != nil {
		t.Errorf("unparseable TargetQuitDate = %v, want nil", p.TargetQuitDate)
	}
	if p.CostPerPack != 0 {
		t.Errorf("CostPerPack = %v, want 0", p.CostPerPack)
	}
}

func TestLogDoc_RoundTrip(t *testing.T) {
	e := domain.DailyLogEntry{UserID: "u1", Date: day("2025-03-04"), CigarettesSmoked: 2, MoodRating: 3}
	got, err := toLogDoc(e).entry("u1")
	if err != nil {
		t.Fatalf("entry() error: %v", err)
	}
	if got.Date != e.Date || got.CigarettesSmoked != 2 || got.MoodRating != 3 {
		t.Errorf("entry() = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should default to now")
	}
}

func TestDateValue(t *testing.T) {
	if dateValue(nil) != nil {
		t.Error("dateValue(nil) should be nil")
	}
	d := day("2025-12-31")
	if got := dateValue(&d); got != "2025-12-31" {
		t.Errorf("dateValue() = %v", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Emulator
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_SlipDates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	uid := newUser()

	entries := []domain.DailyLogEntry{
		{UserID: uid, Date: day("2025-03-01"), SmokeFree: true},
		{UserID: uid, Date: day("2025-03-02"), CigarettesSmoked: 1, SmokeFree: false},
		// Legacy row: only one field marks the slip.
		{UserID: uid, Date: day("2025-03-04"), CigarettesSmoked: 3, SmokeFree: true},
		{UserID: uid, Date: day("2025-04-01"), CigarettesSmoked: 1},
	}
	for _, e := range entries {
		if _, err := s.SaveEntry(ctx, e); err != nil {
			t.Fatalf("SaveEntry() error: %v", err)
		}
	}

	got, err := s.ListSlipDates(ctx, uid, day("2025-03-01"), day("2025-03-31"))
	if err != nil {
		t.Fatalf("ListSlipDates() error: %v", err)
	}
	want := []civil.Date{day("2025-03-04"), day("2025-03-02")}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ListSlipDates() = %v, want %v", got, want)
	}

	n, err := s.CountEntries(ctx, uid)
	if err != nil || n != 4 {
		t.Errorf("CountEntries() = %d, %v, want 4", n, err)
	}
}

func TestStore_UnlockAchievement_Concurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	uid := newUser()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.UnlockAchievement(ctx, domain.AchievementUnlock{
				UserID: uid, AchievementID: "streak_7", UnlockedAt: time.Now(),
			}, 50)
			if err != nil {
				t.Errorf("UnlockAchievement() error: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("winners = %d, want 1", got)
	}
	p, err := s.GetProfile(ctx, uid)
	if err != nil || p == nil || p.TotalPoints != 50 {
		t.Errorf("GetProfile() = %+v, %v, want 50 points", p, err)
	}
}

func TestStore_Notifications(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	uid := newUser()

	n := domain.Notification{ID: uuid.NewString(), UserID: uid, Type: domain.NotifyAchievement, Title: "t", Body: "b"}
	if err := s.InsertNotification(ctx, n); err != nil {
		t.Fatalf("InsertNotification() error: %v", err)
	}
	if err := s.MarkNotificationShown(ctx, newUser(), n.ID); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Errorf("MarkNotificationShown(other user) = %v, want ErrNotificationNotFound", err)
	}
	if err := s.MarkNotificationShown(ctx, uid, n.ID); err != nil {
		t.Fatalf("MarkNotificationShown() error: %v", err)
	}
	pending, err := s.ListPendingNotifications(ctx, uid, 10)
	if err != nil || len(pending) != 0 {
		t.Errorf("ListPendingNotifications() = %d, %v, want 0", len(pending), err)
	}
}
