package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Store errors
	ErrPermissionDenied = errors.New("permission denied by store")
	ErrUnknownBackend   = errors.New("unknown store backend")

	// Input errors
	ErrInvalidLog         = errors.New("invalid daily log entry")
	ErrInvalidProfile     = errors.New("invalid profile")
	ErrUnknownAchievement = errors.New("unknown achievement")
	ErrUnknownMetric      = errors.New("unknown leaderboard metric")

	// Lookup errors
	ErrProfileNotFound      = errors.New("profile not found")
	ErrNotificationNotFound = errors.New("notification not found")
)
