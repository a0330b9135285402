package cli

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/breathe-app/breathe/internal/daemon"
)

// openDaemon loads the config and opens the store. Callers must Close.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	return daemon.New(ctx)
}

// parseDateFlag parses YYYY-MM-DD, also accepting "today" relative to today.
func parseDateFlag(s string, today civil.Date) (civil.Date, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func dateOrDash(d *civil.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
