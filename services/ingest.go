package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wb-tariffs-sync/metrics"
	"wb-tariffs-sync/models"
	"wb-tariffs-sync/storage"
	"wb-tariffs-sync/utils"
)

// Fetcher retrieves the raw feed payload for a day.
type Fetcher interface {
	HasToken() bool
	Fetch(ctx context.Context, day string) (json.RawMessage, error)
}

// Ingestor orchestrates one ingestion cycle: advisory lock, fetch,
// canonicalize, fingerprint, persist. Cycles never overlap across processes
// sharing the same lock key.
type Ingestor struct {
	fetcher Fetcher
	store   storage.TariffStore
	locker  storage.Locker
	lockKey int64
	canon   *Canonicalizer
	logger  *utils.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

// NewIngestor creates a ready-to-use Ingestor.
func NewIngestor(
	fetcher Fetcher,
	store storage.TariffStore,
	locker storage.Locker,
	lockKey int64,
	canon *Canonicalizer,
	logger *utils.Logger,
	m *metrics.Metrics,
) *Ingestor {
	return &Ingestor{
		fetcher: fetcher,
		store:   store,
		locker:  locker,
		lockKey: lockKey,
		canon:   canon,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Run executes one ingestion cycle. It returns the ingested day, or "" when
// the cycle was skipped (lock held elsewhere, or no credential configured).
// A losing cycle does not wait or queue; the next scheduled tick retries.
func (ing *Ingestor) Run(ctx context.Context) (string, error) {
	release, ok, err := ing.locker.TryLock(ctx, ing.lockKey)
	if err != nil {
		ing.metrics.IngestCyclesTotal.WithLabelValues(metrics.CycleError).Inc()
		return "", fmt.Errorf("ingest: acquire lock: %w", err)
	}
	if !ok {
		ing.logger.Info("[ingest] lock %d held by another runner — skipping cycle", ing.lockKey)
		ing.metrics.IngestCyclesTotal.WithLabelValues(metrics.CycleSkipped).Inc()
		return "", nil
	}
	defer func() {
		// Release on a fresh context so a canceled cycle still unlocks.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			ing.logger.Error("[ingest] lock release failed: %v", err)
		}
	}()

	day := ing.today()

	if !ing.fetcher.HasToken() {
		ing.logger.Warn("[ingest] no API token configured — skipping cycle")
		ing.metrics.IngestCyclesTotal.WithLabelValues(metrics.CycleSkipped).Inc()
		return "", nil
	}

	payload, err := ing.fetcher.Fetch(ctx, day)
	if err != nil {
		ing.metrics.IngestCyclesTotal.WithLabelValues(metrics.CycleError).Inc()
		return "", fmt.Errorf("ingest: fetch: %w", err)
	}

	rows := ing.canon.Canonicalize(payload)
	items := make([]models.DailyItem, len(rows))
	for i, row := range rows {
		items[i] = models.DailyItem{
			Day:         day,
			Fingerprint: Fingerprint(row),
			TariffRow:   row,
		}
	}
	ing.logger.Info("[ingest] payload parsed: %d rows for day %s", len(items), day)

	// Zero rows is still a valid outcome: the snapshot records that this
	// payload was seen, independent of whether it parsed.
	if err := ing.store.SaveDay(ctx, day, payload, items); err != nil {
		ing.metrics.IngestCyclesTotal.WithLabelValues(metrics.CycleError).Inc()
		return "", fmt.Errorf("ingest: persist day %s: %w", day, err)
	}

	ing.metrics.IngestCyclesTotal.WithLabelValues(metrics.CycleOK).Inc()
	ing.metrics.ItemsUpsertedTotal.Add(float64(len(items)))
	ing.metrics.LastSuccessTimestamp.SetToCurrentTime()
	ing.logger.Info("[ingest] snapshot and items upserted for day %s", day)

	return day, nil
}

func (ing *Ingestor) today() string {
	return ing.now().UTC().Format("2006-01-02")
}
