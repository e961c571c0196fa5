package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"wb-tariffs-sync/models"
	"wb-tariffs-sync/utils"
)

// PostgresStore persists daily snapshots and items and provides the
// cross-process advisory lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS wb_box_tariffs_daily_snapshots (
			day              DATE PRIMARY KEY,
			data             JSONB        NOT NULL,
			first_fetched_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_fetched_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			items_count      INTEGER      NOT NULL DEFAULT 0,
			source_hash      TEXT         NOT NULL,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wb_box_tariffs_daily_items (
			id             BIGSERIAL PRIMARY KEY,
			day            DATE          NOT NULL,
			fingerprint    TEXT          NOT NULL,
			warehouse_name TEXT,
			box_type       TEXT,
			delivery_type  TEXT,
			region         TEXT,
			coef           NUMERIC(12,6) NOT NULL,
			meta           JSONB         NOT NULL,
			created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			CONSTRAINT wb_box_items_day_fingerprint_uk UNIQUE (day, fingerprint)
		);

		CREATE INDEX IF NOT EXISTS wb_box_items_day_idx      ON wb_box_tariffs_daily_items(day);
		CREATE INDEX IF NOT EXISTS wb_box_items_day_coef_idx ON wb_box_tariffs_daily_items(day, coef);
		CREATE INDEX IF NOT EXISTS wb_box_items_fpr_idx      ON wb_box_tariffs_daily_items(fingerprint);
	`)
	return err
}

// TryLock acquires the advisory lock on a dedicated pooled connection.
// Advisory locks are session-scoped, so acquire and release must hit the same
// connection; the connection is pinned until release is called.
func (s *PostgresStore) TryLock(ctx context.Context, key int64) (func(context.Context) error, bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: lock conn: %w", err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx,
		"SELECT pg_try_advisory_lock($1::bigint)", key).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("postgres: try advisory lock: %w", err)
	}
	if !locked {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		defer conn.Close()
		if _, err := conn.ExecContext(ctx,
			"SELECT pg_advisory_unlock($1::bigint)", key); err != nil {
			return fmt.Errorf("postgres: advisory unlock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// SaveDay upserts the snapshot and the items inside one transaction, so a
// crash can never leave a snapshot recorded without its matching items.
func (s *PostgresStore) SaveDay(ctx context.Context, day string, raw json.RawMessage, items []models.DailyItem) error {
	normalized, err := utils.StableJSON(raw)
	if err != nil {
		return fmt.Errorf("postgres: source hash: %w", err)
	}
	sourceHash := utils.SHA1Hex(normalized)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if err := upsertSnapshot(ctx, tx, day, raw, len(items), sourceHash); err != nil {
		return err
	}
	if err := upsertItems(ctx, tx, day, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func upsertSnapshot(ctx context.Context, tx *sql.Tx, day string, raw json.RawMessage, itemsCount int, sourceHash string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wb_box_tariffs_daily_snapshots
			(day, data, first_fetched_at, last_fetched_at, items_count, source_hash, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW(), $3, $4, NOW(), NOW())
		ON CONFLICT (day) DO UPDATE SET
			data            = EXCLUDED.data,
			last_fetched_at = EXCLUDED.last_fetched_at,
			items_count     = EXCLUDED.items_count,
			source_hash     = EXCLUDED.source_hash,
			updated_at      = EXCLUDED.updated_at
	`, day, []byte(raw), itemsCount, sourceHash)
	if err != nil {
		return fmt.Errorf("postgres: upsert snapshot: %w", err)
	}
	return nil
}

func upsertItems(ctx context.Context, tx *sql.Tx, day string, items []models.DailyItem) error {
	if len(items) == 0 {
		return nil
	}

	// A payload can repeat an identity within one day; keep the last
	// occurrence so the bulk upsert never touches a row twice.
	byFingerprint := make(map[string]int, len(items))
	deduped := make([]models.DailyItem, 0, len(items))
	for _, it := range items {
		if idx, seen := byFingerprint[it.Fingerprint]; seen {
			deduped[idx] = it
			continue
		}
		byFingerprint[it.Fingerprint] = len(deduped)
		deduped = append(deduped, it)
	}

	const batchSize = 200
	for i := 0; i < len(deduped); i += batchSize {
		end := i + batchSize
		if end > len(deduped) {
			end = len(deduped)
		}
		if err := upsertItemsBatch(ctx, tx, day, deduped[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func upsertItemsBatch(ctx context.Context, tx *sql.Tx, day string, batch []models.DailyItem) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*8)

	for idx, it := range batch {
		base := idx * 8
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,NOW(),NOW())",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))

		meta := []byte(it.Meta)
		if len(meta) == 0 {
			meta = []byte("null")
		}
		valueArgs = append(valueArgs,
			day, it.Fingerprint,
			nullIfEmpty(it.WarehouseName), nullIfEmpty(it.BoxType),
			nullIfEmpty(it.DeliveryType), nullIfEmpty(it.Region),
			it.Coef, meta)
	}

	query := fmt.Sprintf(`
		INSERT INTO wb_box_tariffs_daily_items
			(day, fingerprint, warehouse_name, box_type, delivery_type, region, coef, meta, created_at, updated_at)
		VALUES %s
		ON CONFLICT (day, fingerprint) DO UPDATE SET
			warehouse_name = EXCLUDED.warehouse_name,
			box_type       = EXCLUDED.box_type,
			delivery_type  = EXCLUDED.delivery_type,
			region         = EXCLUDED.region,
			coef           = EXCLUDED.coef,
			meta           = EXCLUDED.meta,
			updated_at     = NOW()
	`, strings.Join(valueStrings, ","))

	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: upsert items: %w", err)
	}
	return nil
}

// ItemsForDay returns the day's items sorted by ascending coefficient, then
// warehouse name, then fingerprint, so exports are reproducible.
func (s *PostgresStore) ItemsForDay(ctx context.Context, day string) ([]models.DailyItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, to_char(day, 'YYYY-MM-DD'), fingerprint,
		       COALESCE(warehouse_name, ''), COALESCE(box_type, ''),
		       COALESCE(delivery_type, ''), COALESCE(region, ''),
		       coef, meta, created_at, updated_at
		FROM wb_box_tariffs_daily_items
		WHERE day = $1
		ORDER BY coef ASC, warehouse_name ASC NULLS LAST, fingerprint ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("postgres: items for day: %w", err)
	}
	defer rows.Close()

	var items []models.DailyItem
	for rows.Next() {
		var it models.DailyItem
		var meta []byte
		if err := rows.Scan(
			&it.ID, &it.Day, &it.Fingerprint,
			&it.WarehouseName, &it.BoxType, &it.DeliveryType, &it.Region,
			&it.Coef, &meta, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		it.Meta = json.RawMessage(meta)
		items = append(items, it)
	}
	return items, rows.Err()
}

// LatestDay returns the most recent day with stored items, or "" if the table
// is empty.
func (s *PostgresStore) LatestDay(ctx context.Context) (string, error) {
	var day sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT to_char(MAX(day), 'YYYY-MM-DD') FROM wb_box_tariffs_daily_items
	`).Scan(&day)
	if err != nil {
		return "", fmt.Errorf("postgres: latest day: %w", err)
	}
	if !day.Valid {
		return "", nil
	}
	return day.String, nil
}

// Snapshot returns the stored snapshot for a day, or nil when absent.
func (s *PostgresStore) Snapshot(ctx context.Context, day string) (*models.DailySnapshot, error) {
	var snap models.DailySnapshot
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), data, first_fetched_at, last_fetched_at,
		       items_count, source_hash, created_at, updated_at
		FROM wb_box_tariffs_daily_snapshots
		WHERE day = $1
	`, day).Scan(
		&snap.Day, &data, &snap.FirstFetchedAt, &snap.LastFetchedAt,
		&snap.ItemsCount, &snap.SourceHash, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: snapshot: %w", err)
	}
	snap.Data = json.RawMessage(data)
	return &snap, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
