package services

import (
	"encoding/json"

	"wb-tariffs-sync/models"
	"wb-tariffs-sync/utils"
)

// Fingerprint derives the stable identity digest of a tariff row from its
// identity fields only. Coef and meta are excluded on purpose: a coefficient
// change for the same logical tariff line must update the stored item, not
// create a duplicate.
func Fingerprint(row models.TariffRow) string {
	key := map[string]any{
		"warehouseName": nullable(row.WarehouseName),
		"boxType":       nullable(row.BoxType),
		"deliveryType":  nullable(row.DeliveryType),
		"region":        nullable(row.Region),
	}
	// encoding/json emits map keys sorted, which keeps the digest stable
	// across processes and runs.
	b, err := json.Marshal(key)
	if err != nil {
		// Identity fields are plain strings; this cannot fail.
		panic(err)
	}
	return utils.SHA1Hex(b)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
