package model

import (
	"fmt"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// LedgerBucket counts escalations consumed by one agent within one
// time bucket. Buckets are created lazily on first consume; rollover is
// implicit because a new period yields a new key.
type LedgerBucket struct {
	AgentID   types.AgentID
	Bucket    string // DayBucket or WeekBucket key
	Count     int
	UpdatedAt time.Time
}

// DayBucket returns the daily ledger key for t in UTC, e.g. "2025-03-14"
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekBucket returns the ISO week ledger key for t in UTC, e.g. "2025-W11".
// ISO weeks keep the cap stable across month boundaries.
func WeekBucket(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
