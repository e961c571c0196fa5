package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"wb-tariffs-sync/models"
)

// CSVWriter exports a day's tariff items to per-day CSV files.
type CSVWriter struct {
	dir string
}

// NewCSVWriter creates the output directory if needed and returns a writer.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVWriter{dir: dir}, nil
}

// WriteDay writes (or overwrites) the day's export file and returns its path.
// Items are written in the order given; callers pass the store's sorted read.
func (c *CSVWriter) WriteDay(day string, items []models.DailyItem) (string, error) {
	path := filepath.Join(c.dir, "stocks_coefs_"+day+".csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"day", "warehouse_name", "box_type", "delivery_type", "region", "coef",
	}); err != nil {
		return "", fmt.Errorf("csv: write header: %w", err)
	}

	for _, it := range items {
		row := []string{
			it.Day,
			it.WarehouseName,
			it.BoxType,
			it.DeliveryType,
			it.Region,
			strconv.FormatFloat(it.Coef, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("csv: flush: %w", err)
	}
	return path, nil
}
