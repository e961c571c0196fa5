package services

import (
	"encoding/json"
	"testing"

	"wb-tariffs-sync/models"
)

func TestFingerprintIgnoresCoefficient(t *testing.T) {
	a := models.TariffRow{WarehouseName: "W", BoxType: "box", DeliveryType: "storage", Region: "R", Coef: 1.95}
	b := a
	b.Coef = 3.10

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("rows with identical identity and different coef must share a fingerprint")
	}
}

func TestFingerprintIgnoresMeta(t *testing.T) {
	a := models.TariffRow{WarehouseName: "W", Coef: 1, Meta: json.RawMessage(`{"x":1}`)}
	b := a
	b.Meta = json.RawMessage(`{"x":2}`)

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("meta must not contribute to the fingerprint")
	}
}

func TestFingerprintSensitiveToIdentity(t *testing.T) {
	base := models.TariffRow{WarehouseName: "W", BoxType: "box", DeliveryType: "storage", Region: "R"}

	variants := []models.TariffRow{
		{WarehouseName: "X", BoxType: "box", DeliveryType: "storage", Region: "R"},
		{WarehouseName: "W", BoxType: "pallet", DeliveryType: "storage", Region: "R"},
		{WarehouseName: "W", BoxType: "box", DeliveryType: "delivery", Region: "R"},
		{WarehouseName: "W", BoxType: "box", DeliveryType: "storage", Region: "S"},
		{WarehouseName: "", BoxType: "box", DeliveryType: "storage", Region: "R"},
	}

	seen := map[string]bool{Fingerprint(base): true}
	for i, v := range variants {
		fp := Fingerprint(v)
		if seen[fp] {
			t.Errorf("variant %d collided with a previous fingerprint", i)
		}
		seen[fp] = true
	}
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	row := models.TariffRow{WarehouseName: "Коледино", BoxType: "box", DeliveryType: "storage", Region: "Московская область"}
	first := Fingerprint(row)
	for i := 0; i < 10; i++ {
		if Fingerprint(row) != first {
			t.Fatal("fingerprint must be deterministic")
		}
	}
	if len(first) != 40 {
		t.Errorf("expected 40 hex chars (SHA-1), got %d", len(first))
	}
}
