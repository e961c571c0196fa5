package storage

import (
	"context"
	"encoding/json"

	"wb-tariffs-sync/models"
)

// TariffStore is the interface any persistence backend must satisfy.
type TariffStore interface {
	// SaveDay idempotently persists the day's snapshot and items as one unit.
	SaveDay(ctx context.Context, day string, raw json.RawMessage, items []models.DailyItem) error
	// ItemsForDay returns the day's items ordered by ascending coefficient
	// with a stable tie-break.
	ItemsForDay(ctx context.Context, day string) ([]models.DailyItem, error)
	// LatestDay returns the most recent day with stored items, or "" if none.
	LatestDay(ctx context.Context) (string, error)
}

// Locker is a cross-process mutual-exclusion capability. TryLock never
// blocks: ok=false means another runner holds the key. The returned release
// must be called on every exit path of the protected section.
type Locker interface {
	TryLock(ctx context.Context, key int64) (release func(context.Context) error, ok bool, err error)
}
