package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/logger"
)

// ProfileService reads and edits the user-editable profile fields.
type ProfileService struct {
	store domain.ProfileStore
	logs  *LogService
}

// NewProfileService creates a profile service. logs, if set, refreshes
// the cached streak when the anchor date may have moved.
func NewProfileService(store domain.ProfileStore, logs *LogService) *ProfileService {
	return &ProfileService{store: store, logs: logs}
}

// Get returns the profile or ErrProfileNotFound.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, userID)
	}
	return p, nil
}

// Save validates and stores the editable fields, then refreshes the
// cached streak.
func (s *ProfileService) Save(ctx context.Context, p domain.UserProfile) (*domain.UserProfile, error) {
	if err := validateProfile(&p); err != nil {
		return nil, err
	}
	if err := s.store.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if s.logs != nil {
		if _, err := s.logs.RefreshStreak(ctx, p.UserID); err != nil {
			logger.Warn("streak cache refresh failed", "component", "profile", "user", p.UserID, "err", err)
		}
	}
	return s.Get(ctx, p.UserID)
}

func validateProfile(p *domain.UserProfile) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user id", domain.ErrInvalidProfile)
	}
	switch p.DateMode {
	case "":
		p.DateMode = domain.DateModeQuit
	case domain.DateModeQuit, domain.DateModeTarget:
	default:
		return fmt.Errorf("%w: date mode must be quit or target, got %q", domain.ErrInvalidProfile, p.DateMode)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidProfile, p.Timezone)
		}
	}
	for name, v := range map[string]float64{
		"cigarettes_per_day_before": p.CigarettesPerDayBefore,
		"cost_per_pack":             p.CostPerPack,
		"cigarettes_per_pack":       p.CigarettesPerPack,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %v", domain.ErrInvalidProfile, name, v)
		}
	}
	for _, d := range []struct {
		name string
		ok   bool
	}{
		{"quit_date", p.QuitDate == nil || p.QuitDate.IsValid()},
		{"target_quit_date", p.TargetQuitDate == nil || p.TargetQuitDate.IsValid()},
	} {
		if !d.ok {
			return fmt.Errorf("%w: invalid %s", domain.ErrInvalidProfile, d.name)
		}
	}
	return nil
}
