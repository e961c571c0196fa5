package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wb-tariffs-sync/config"
	"wb-tariffs-sync/feed/wb"
	"wb-tariffs-sync/metrics"
	"wb-tariffs-sync/models"
	"wb-tariffs-sync/services"
	"wb-tariffs-sync/storage"
	"wb-tariffs-sync/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== WB Box Tariffs Sync starting ===")
	logger.Info("Config — endpoint: %s | interval: %dms | timeout: %dms | attempts: %d | lock key: %d",
		cfg.TariffsEndpoint, cfg.FetchIntervalMs, cfg.RequestTimeoutMs, cfg.FetchMaxAttempts, cfg.AdvisoryLockKey)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var stopMetrics func(context.Context) error
	if cfg.MetricsEnabled {
		stopMetrics = metrics.StartServer(cfg.MetricsPort, registry, logger)
	}

	store, err := storage.NewPostgresStore(cfg.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	if last, err := store.LatestDay(context.Background()); err != nil {
		logger.Warn("Could not determine latest ingested day: %v", err)
	} else if last != "" {
		logger.Info("Latest ingested day in storage: %s", last)
	}

	var csvWriter *storage.CSVWriter
	if cfg.CSVExportEnabled {
		csvWriter, err = storage.NewCSVWriter(cfg.CSVOutputDir)
		if err != nil {
			logger.Fatal("Failed to create CSV writer: %v", err)
		}
	}

	feedClient := wb.New(cfg, logger, m)
	canon := services.NewCanonicalizer(logger, m)
	ingestor := services.NewIngestor(feedClient, store, store, cfg.AdvisoryLockKey, canon, logger, m)
	reports := services.NewReportService(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cycle runs one ingestion and, on success, the export step. A failed
	// cycle is logged and the scheduler keeps going.
	cycle := func() {
		day, err := ingestor.Run(ctx)
		if err != nil {
			logger.Error("Cycle failed: %v", err)
			return
		}
		if day == "" {
			return
		}

		items, err := store.ItemsForDay(ctx, day)
		if err != nil {
			logger.Error("Failed to read items for day %s: %v", day, err)
			return
		}

		if snap, err := store.Snapshot(ctx, day); err != nil {
			logger.Error("Failed to read snapshot for day %s: %v", day, err)
		} else if snap != nil {
			logger.Info("Snapshot %s: %d items | source hash %s | first fetched %s",
				snap.Day, snap.ItemsCount, snap.SourceHash,
				snap.FirstFetchedAt.Format(time.RFC3339))
		}

		reports.Print(reports.Generate(day, items))

		if csvWriter != nil {
			storageItems := make([]models.DailyItem, 0, len(items))
			for _, it := range items {
				if it.DeliveryType == models.DeliveryStorage {
					storageItems = append(storageItems, it)
				}
			}
			path, err := csvWriter.WriteDay(day, storageItems)
			if err != nil {
				logger.Error("CSV export failed: %v", err)
			} else {
				logger.Info("CSV export written: %s (%d rows)", path, len(storageItems))
			}
		}
	}

	cycle()

	interval := time.Duration(cfg.FetchIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("Scheduler started — every %v", interval)

	for {
		select {
		case <-ticker.C:
			cycle()
		case <-ctx.Done():
			logger.Info("Shutting down...")
			if stopMetrics != nil {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := stopMetrics(sctx); err != nil {
					logger.Error("Metrics server shutdown: %v", err)
				}
				cancel()
			}
			return
		}
	}
}
