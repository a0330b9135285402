package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// ─── Calendar Date Helpers ──────────────────────────────────────────────────
// Dates are persisted as ISO "YYYY-MM-DD" text so that string order is
// chronological order in every backend.

// DateRef returns a pointer to a copy of d.
func DateRef(d civil.Date) *civil.Date {
	return &d
}

// ParseOptionalDate parses an ISO date; "" yields nil.
func ParseOptionalDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return &d, nil
}

// FormatOptionalDate formats d as ISO; nil yields "".
func FormatOptionalDate(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
