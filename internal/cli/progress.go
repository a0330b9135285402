package cli

import (
	"fmt"
	"strings"

	"github.com/breathe-app/breathe/internal/app/engagement"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Renders level and milestone progress, e.g.
//   Level 4  [=========>....................]  31% │ 44 points to level 5

const barWidth = 30 // Characters for the progress bar

// renderBar draws a bar for pct in [0, 100].
func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	default:
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
}

// levelLine summarizes level progress on one line.
func levelLine(lp engagement.LevelProgress) string {
	if lp.ToNext == 0 {
		return fmt.Sprintf("Level %d  %s %3.0f%% │ max level", lp.Level, renderBar(lp.ProgressPct), lp.ProgressPct)
	}
	return fmt.Sprintf("Level %d  %s %3.0f%% │ %d points to level %d",
		lp.Level, renderBar(lp.ProgressPct), lp.ProgressPct, lp.ToNext, lp.Level+1)
}

// milestoneLine shows progress toward the next health milestone.
func milestoneLine(days int, next *engagement.HealthMilestone) string {
	if next == nil {
		return "Health: every milestone reached"
	}
	pct := float64(days) / float64(next.Days) * 100
	return fmt.Sprintf("Next:   %s %s %3.0f%% │ %s to go",
		next.Title, renderBar(pct), pct, plural(next.Days-days, "day", "days"))
}
