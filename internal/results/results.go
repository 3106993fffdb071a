package results

import (
	"time"
)

// DateKey returns YYYY-MM-DD in UTC, the bucket key for the daily
// battle leaderboard.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
