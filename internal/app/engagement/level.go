package engagement

import "math"

// maxLevel caps the level curve.
const maxLevel = 50

// Levels are a display on top of achievement points; nothing unlocks on
// level alone.

// PointsForLevel returns the cumulative points required to reach a level.
// Uses an exponential curve: 100 * 1.25^(level-2) for level >= 2.
func PointsForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(100 * math.Pow(1.25, float64(level-2)))
}

// LevelForPoints returns the level for a point total.
func LevelForPoints(points int64) int {
	level := 1
	for level < maxLevel {
		if points < PointsForLevel(level+1) {
			return level
		}
		level++
	}
	return maxLevel
}

// LevelProgress summarizes where a point total sits on the curve.
type LevelProgress struct {
	Level       int     `json:"level"`
	Points      int64   `json:"points"`
	ToNext      int64   `json:"points_to_next"`
	ProgressPct float64 `json:"progress_pct"` // 0.0–100.0
}

// ProgressFor computes level progress for a point total.
func ProgressFor(points int64) LevelProgress {
	lp := LevelProgress{Level: LevelForPoints(points), Points: points}
	if lp.Level >= maxLevel {
		lp.ProgressPct = 100
		return lp
	}
	this := PointsForLevel(lp.Level)
	next := PointsForLevel(lp.Level + 1)
	lp.ToNext = max(0, next-points)
	if span := next - this; span > 0 {
		lp.ProgressPct = math.Min(100, math.Max(0, float64(points-this)/float64(span)*100))
	}
	return lp
}
