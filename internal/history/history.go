// Package history keeps a bounded log of recent name-based weather lookups.
package history

import (
	"context"
	"time"

	"github.com/neexbeast/weather-aggregator/internal/weather"
)

// DefaultLimit is the number of records kept when no limit is configured.
const DefaultLimit = 10

// Store appends lookups and returns the retained log, oldest first.
type Store interface {
	Append(ctx context.Context, location string, snapshot weather.Snapshot) error
	All(ctx context.Context) ([]weather.HistoryRecord, error)
	Ping(ctx context.Context) error
}

// NewRecord stamps a lookup with the given wall-clock time.
func NewRecord(location string, snapshot weather.Snapshot, now time.Time) weather.HistoryRecord {
	return weather.HistoryRecord{
		Location:  location,
		Weather:   snapshot,
		Timestamp: now.Format(time.RFC3339Nano),
	}
}

// keepLast returns the trailing limit records.
func keepLast(records []weather.HistoryRecord, limit int) []weather.HistoryRecord {
	if limit > 0 && len(records) > limit {
		return records[len(records)-limit:]
	}
	return records
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
