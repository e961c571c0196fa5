package services

import (
	"fmt"
	"sort"
	"strings"

	"wb-tariffs-sync/models"
	"wb-tariffs-sync/utils"
)

// ReportService aggregates and prints per-day statistics over stored items.
type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate computes the day's aggregate report.
func (s *ReportService) Generate(day string, items []models.DailyItem) *models.DayReport {
	report := &models.DayReport{
		Day:            day,
		ByDeliveryType: make(map[string]int),
		ByRegion:       make(map[string]int),
	}

	if len(items) == 0 {
		return report
	}

	report.TotalItems = len(items)
	report.MinCoef = items[0].Coef
	report.MaxCoef = items[0].Coef

	var total float64
	for _, it := range items {
		if it.DeliveryType != "" {
			report.ByDeliveryType[it.DeliveryType]++
		}
		if it.Region != "" {
			report.ByRegion[it.Region]++
		}
		total += it.Coef
		if it.Coef < report.MinCoef {
			report.MinCoef = it.Coef
		}
		if it.Coef > report.MaxCoef {
			report.MaxCoef = it.Coef
		}
	}
	report.AvgCoef = round2(total / float64(len(items)))
	report.MinCoef = round2(report.MinCoef)
	report.MaxCoef = round2(report.MaxCoef)

	return report
}

// Print writes the report to stdout.
func (s *ReportService) Print(r *models.DayReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  WB BOX TARIFFS — %s\033[0m\n", r.Day)
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total tariff lines : \033[1m%d\033[0m\n", r.TotalItems)
	for _, dt := range sortedKeys(r.ByDeliveryType) {
		fmt.Printf("  %-19s: %d\n", dt, r.ByDeliveryType[dt])
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Coefficients\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.TotalItems > 0 {
		fmt.Printf("  Average : \033[1;32m%.2f\033[0m\n", r.AvgCoef)
		fmt.Printf("  Minimum : \033[1;32m%.2f\033[0m\n", r.MinCoef)
		fmt.Printf("  Maximum : \033[1;32m%.2f\033[0m\n", r.MaxCoef)
	} else {
		fmt.Printf("  No data\n")
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Lines by Region\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.ByRegion) == 0 {
		fmt.Printf("  No region data\n")
	} else {
		type regionCount struct {
			region string
			count  int
		}
		var regions []regionCount
		for region, cnt := range r.ByRegion {
			regions = append(regions, regionCount{region, cnt})
		}
		sort.Slice(regions, func(i, j int) bool {
			if regions[i].count != regions[j].count {
				return regions[i].count > regions[j].count
			}
			return regions[i].region < regions[j].region
		})
		for _, rc := range regions {
			fmt.Printf("  %-30s %d\n", truncate(rc.region, 28), rc.count)
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
