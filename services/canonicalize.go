package services

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"wb-tariffs-sync/metrics"
	"wb-tariffs-sync/models"
	"wb-tariffs-sync/utils"
)

// Candidate keys for the heuristic fallback, evaluated in priority order.
// The first rule that yields a value wins.
var (
	coefKeySubstrings  = []string{"coef", "coeff", "coefficient", "koef", "kof"}
	ratioKeySubstrings = []string{"ratio", "multiplier"}

	warehouseKeys  = []string{"warehouseName", "warehouse", "whName", "warehouse_name"}
	boxTypeKeys    = []string{"boxType", "type", "cargoType", "box_type"}
	deliveryKeys   = []string{"deliveryType", "shipmentType", "delivery", "direction"}
	regionToKeys   = []string{"region", "regionTo", "toRegion", "destination", "to", "geoName"}
	regionFromKeys = []string{"regionFrom", "fromRegion", "from", "source"}

	// Top-level keys probed for an array when the payload is not one itself.
	arrayKeys = []string{"data", "tariffs", "boxes", "result", "items"}
)

// Canonicalizer converts an arbitrary feed payload into flat tariff rows.
// It never fails: elements it cannot interpret are dropped and counted on the
// drop metric so upstream schema drift stays visible.
type Canonicalizer struct {
	logger  *utils.Logger
	metrics *metrics.Metrics
}

// NewCanonicalizer creates a Canonicalizer with the given logger and metrics.
func NewCanonicalizer(logger *utils.Logger, m *metrics.Metrics) *Canonicalizer {
	return &Canonicalizer{logger: logger, metrics: m}
}

// Canonicalize extracts tariff rows from the payload. The specialized
// warehouseList path is tried first; if it yields nothing the heuristic
// fallback takes over, so a changed feed shape degrades instead of failing.
func (c *Canonicalizer) Canonicalize(payload json.RawMessage) []models.TariffRow {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		c.logger.Warn("[canonicalize] payload is not valid JSON: %v", err)
		return nil
	}

	rows := c.parseWarehouseList(doc)
	if len(rows) == 0 {
		rows = c.parseHeuristic(doc)
	}

	c.metrics.RowsParsedTotal.Add(float64(len(rows)))
	return rows
}

// parseWarehouseList handles the documented shape: a warehouseList array under
// response.data, data, or the payload root, each entry carrying up to three
// coefficient expressions scaled by 1/100.
func (c *Canonicalizer) parseWarehouseList(doc any) []models.TariffRow {
	data := doc
	if m, ok := doc.(map[string]any); ok {
		if resp, ok := m["response"].(map[string]any); ok {
			if d, ok := resp["data"]; ok {
				data = d
			}
		} else if d, ok := m["data"]; ok {
			data = d
		}
	}

	dm, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	list, ok := dm["warehouseList"].([]any)
	if !ok {
		return nil
	}

	var rows []models.TariffRow
	for _, entry := range list {
		wh, ok := entry.(map[string]any)
		if !ok {
			c.drop(1)
			continue
		}

		base := models.TariffRow{
			WarehouseName: stringField(wh, "warehouseName"),
			BoxType:       models.DefaultBoxType,
			Region:        stringField(wh, "geoName"),
			Meta:          marshalMeta(wh),
		}

		produced := 0
		for _, cat := range []struct {
			exprKey      string
			deliveryType string
		}{
			{"boxStorageCoefExpr", models.DeliveryStorage},
			{"boxDeliveryCoefExpr", models.DeliveryDelivery},
			{"boxDeliveryMarketplaceCoefExpr", models.DeliveryMarketplace},
		} {
			coef, ok := parseCoefExpr(wh[cat.exprKey])
			if !ok {
				continue
			}
			row := base
			row.DeliveryType = cat.deliveryType
			row.Coef = coef
			rows = append(rows, row)
			produced++
		}
		if produced == 0 {
			c.drop(1)
		}
	}
	return rows
}

// parseHeuristic is the last-resort path for unknown shapes: locate an array
// of candidate elements, then probe each with the ordered key rules.
func (c *Canonicalizer) parseHeuristic(doc any) []models.TariffRow {
	var rows []models.TariffRow
	for _, el := range toArray(doc) {
		coef, ok := findNumberByKeySubstrings(el, coefKeySubstrings)
		if !ok {
			coef, ok = findNumberByKeySubstrings(el, ratioKeySubstrings)
		}
		if !ok {
			c.drop(1)
			continue
		}

		boxType := findStringByKeys(el, boxTypeKeys)
		if boxType == "" {
			boxType = models.DefaultBoxType
		}
		region := findStringByKeys(el, regionToKeys)
		if region == "" {
			region = findStringByKeys(el, regionFromKeys)
		}

		rows = append(rows, models.TariffRow{
			WarehouseName: findStringByKeys(el, warehouseKeys),
			BoxType:       boxType,
			DeliveryType:  findStringByKeys(el, deliveryKeys),
			Region:        region,
			Coef:          coef,
			Meta:          marshalMeta(el),
		})
	}
	return rows
}

func (c *Canonicalizer) drop(n int) {
	c.metrics.RowsDroppedTotal.Add(float64(n))
}

// toArray exposes the payload's element list: the payload itself when it is an
// array, the first array found under the known top-level keys otherwise, or
// the payload wrapped as a single element.
func toArray(doc any) []any {
	if arr, ok := doc.([]any); ok {
		return arr
	}
	if m, ok := doc.(map[string]any); ok {
		for _, key := range arrayKeys {
			if arr, ok := m[key].([]any); ok {
				return arr
			}
		}
	}
	return []any{doc}
}

// parseFeedNumber accepts plain JSON numbers and locale-formatted strings
// where comma is the decimal separator and spaces (including NBSP) group
// digits. Empty strings and "-" mean "no value".
func parseFeedNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val) && !math.IsInf(val, 0)
	case string:
		s := strings.TrimSpace(val)
		if s == "" || s == "-" {
			return 0, false
		}
		s = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
		s = strings.ReplaceAll(s, ",", ".")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// parseCoefExpr decodes a specialized-path coefficient expression. The feed
// encodes hundredths: "195" means 1.95.
func parseCoefExpr(v any) (float64, bool) {
	n, ok := parseFeedNumber(v)
	if !ok {
		return 0, false
	}
	return n / 100, true
}

// walk performs a deterministic depth-first search: all fields of an object
// are examined (keys in lexicographic order) before descending into its
// children, and array elements go by index, so extraction results never
// depend on map iteration order. visit returns true to stop the traversal.
func walk(node any, visit func(key string, val any) bool) bool {
	switch cur := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(cur))
		for k := range cur {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if visit(k, cur[k]) {
				return true
			}
		}
		for _, k := range keys {
			if walk(cur[k], visit) {
				return true
			}
		}
	case []any:
		for _, v := range cur {
			if walk(v, visit) {
				return true
			}
		}
	}
	return false
}

// findStringByKeys evaluates the candidate keys in priority order; for each
// key the first string value found in traversal order wins.
func findStringByKeys(node any, keys []string) string {
	for _, key := range keys {
		var found string
		hit := walk(node, func(k string, v any) bool {
			s, ok := v.(string)
			if ok && k == key {
				found = s
				return true
			}
			return false
		})
		if hit {
			return found
		}
	}
	return ""
}

// findNumberByKeySubstrings returns the first numeric field whose lowercased
// key contains one of the substrings, evaluated in priority order.
func findNumberByKeySubstrings(node any, substrings []string) (float64, bool) {
	for _, sub := range substrings {
		var found float64
		hit := walk(node, func(k string, v any) bool {
			if !strings.Contains(strings.ToLower(k), sub) {
				return false
			}
			n, ok := parseFeedNumber(v)
			if !ok {
				return false
			}
			found = n
			return true
		})
		if hit {
			return found, true
		}
	}
	return 0, false
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// marshalMeta re-encodes the source element for the meta column. Map keys come
// out sorted, so identical elements always serialize identically.
func marshalMeta(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
