package models

import (
	"encoding/json"
	"time"
)

// Delivery type labels produced by the canonicalizer. The set is open: the
// fallback parser may emit other values found in the feed.
const (
	DeliveryStorage     = "storage"
	DeliveryDelivery    = "delivery"
	DeliveryMarketplace = "delivery_marketplace"
)

// DefaultBoxType is used when the feed does not name a box type.
const DefaultBoxType = "box"

// TariffRow is one canonical tariff line extracted from the upstream payload.
// Empty string fields mean the value was absent in the source.
type TariffRow struct {
	WarehouseName string
	BoxType       string
	DeliveryType  string
	Region        string
	Coef          float64
	Meta          json.RawMessage
}

// DailyItem is a stored tariff row, unique per (Day, Fingerprint).
type DailyItem struct {
	ID          int64
	Day         string
	Fingerprint string
	TariffRow
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DailySnapshot is the verbatim upstream payload recorded once per day.
type DailySnapshot struct {
	Day            string
	Data           json.RawMessage
	FirstFetchedAt time.Time
	LastFetchedAt  time.Time
	ItemsCount     int
	SourceHash     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DayReport holds aggregate statistics over one day's stored items.
type DayReport struct {
	Day            string
	TotalItems     int
	ByDeliveryType map[string]int
	ByRegion       map[string]int
	MinCoef        float64
	MaxCoef        float64
	AvgCoef        float64
}
