package pharmacy

import (
	"testing"

	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
	"github.com/medassist/triage/internal/shared/types"
	"github.com/medassist/triage/internal/therapy"
)

// ahmedabadCenter is the seed coordinate for pincode 380001.
var ahmedabadCenter = types.GeoPoint{Lat: 23.0225, Lon: 72.5714}

func testRanker(t *testing.T) (*Ranker, config.TriageConfig) {
	t.Helper()
	snapshot, err := refdata.LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error loading seed, got %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}
	return NewRanker(snapshot, cfg.Triage), cfg.Triage
}

func planWith(skus ...string) therapy.Plan {
	var plan therapy.Plan
	for _, sku := range skus {
		plan.Options = append(plan.Options, therapy.OTCOption{
			SKU:       sku,
			DrugName:  sku,
			Frequency: "Every 8 hours",
			Duration:  "3-5 days",
		})
	}
	return plan
}

// TestRankOrdering tests the lexicographic coverage/distance/cost order
func TestRankOrdering(t *testing.T) {
	ranker, _ := testRanker(t)

	match := ranker.Rank(planWith("OTC001", "OTC005"), ahmedabadCenter)
	if match.Availability != AvailabilityInStock {
		t.Errorf("Expected in_stock availability, got %s", match.Availability)
	}
	if len(match.Pharmacies) == 0 {
		t.Fatal("Expected ranked pharmacies")
	}

	// PH001 is the only pharmacy stocking both items.
	if match.Pharmacies[0].ID != "PH001" {
		t.Errorf("Expected PH001 first, got %s", match.Pharmacies[0].ID)
	}
	if match.Pharmacies[0].Coverage != 1 {
		t.Errorf("Expected full coverage, got %f", match.Pharmacies[0].Coverage)
	}

	for i := 1; i < len(match.Pharmacies); i++ {
		prev, curr := match.Pharmacies[i-1], match.Pharmacies[i]
		if prev.Coverage < curr.Coverage {
			t.Errorf("Coverage out of order at %d", i)
		}
		if prev.Coverage == curr.Coverage && prev.DistanceKm > curr.DistanceKm {
			t.Errorf("Distance out of order at %d", i)
		}
	}
}

// TestRankPermutationInvariance tests that input pharmacy order does not
// change the output ranking
func TestRankPermutationInvariance(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}

	pharmacies := []refdata.Pharmacy{
		{ID: "PH001", Name: "A", Location: types.GeoPoint{Lat: 23.0305, Lon: 72.5754}, DeliveryKm: 12},
		{ID: "PH002", Name: "B", Location: types.GeoPoint{Lat: 23.0365, Lon: 72.5611}, DeliveryKm: 10},
		{ID: "PH003", Name: "C", Location: types.GeoPoint{Lat: 22.9959, Lon: 72.6022}, DeliveryKm: 8},
	}
	inventory := []refdata.InventoryItem{
		{PharmacyID: "PH001", SKU: "OTC001", Qty: 10, Price: 22},
		{PharmacyID: "PH002", SKU: "OTC001", Qty: 10, Price: 20},
		{PharmacyID: "PH003", SKU: "OTC001", Qty: 10, Price: 25},
	}

	reversed := []refdata.Pharmacy{pharmacies[2], pharmacies[1], pharmacies[0]}

	first := NewRanker(refdata.NewSnapshot(nil, nil, pharmacies, inventory, nil, nil), cfg.Triage).
		Rank(planWith("OTC001"), ahmedabadCenter)
	second := NewRanker(refdata.NewSnapshot(nil, nil, reversed, inventory, nil, nil), cfg.Triage).
		Rank(planWith("OTC001"), ahmedabadCenter)

	if len(first.Pharmacies) != len(second.Pharmacies) {
		t.Fatalf("Expected same result size, got %d vs %d", len(first.Pharmacies), len(second.Pharmacies))
	}
	for i := range first.Pharmacies {
		if first.Pharmacies[i].ID != second.Pharmacies[i].ID {
			t.Errorf("Ranking differs at %d: %s vs %s", i, first.Pharmacies[i].ID, second.Pharmacies[i].ID)
		}
	}
}

// TestRankFallbackSignals tests the empty-result signals
func TestRankFallbackSignals(t *testing.T) {
	ranker, _ := testRanker(t)

	tests := []struct {
		name     string
		plan     therapy.Plan
		location types.GeoPoint
		want     Availability
	}{
		{"Empty plan", therapy.Plan{}, ahmedabadCenter, AvailabilityNoItems},
		{"Out of range", planWith("OTC001"), types.GeoPoint{Lat: 19.0760, Lon: 72.8777}, AvailabilityNoPharmacies},
		{"Nothing stocked", planWith("OTC999"), ahmedabadCenter, AvailabilityOutOfStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := ranker.Rank(tt.plan, tt.location)
			if match.Availability != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, match.Availability)
			}
			if len(match.Pharmacies) != 0 {
				t.Errorf("Expected empty list, got %d", len(match.Pharmacies))
			}
		})
	}
}

// TestRankPartialAvailability tests the partial signal when the best match
// misses items
func TestRankPartialAvailability(t *testing.T) {
	ranker, _ := testRanker(t)

	// Only PH001 and PH003 stock OTC004; nobody stocks OTC999.
	match := ranker.Rank(planWith("OTC004", "OTC999"), ahmedabadCenter)
	if match.Availability != AvailabilityPartial {
		t.Errorf("Expected partial availability, got %s", match.Availability)
	}
	best, ok := match.Best()
	if !ok {
		t.Fatal("Expected a best match")
	}
	if best.Coverage != 0.5 {
		t.Errorf("Expected 0.5 coverage, got %f", best.Coverage)
	}
	if len(best.MissingSKUs) != 1 || best.MissingSKUs[0] != "OTC999" {
		t.Errorf("Expected OTC999 missing, got %v", best.MissingSKUs)
	}
}

// TestDeliveryEstimates tests the ETA and fee formulas
func TestDeliveryEstimates(t *testing.T) {
	ranker, cfg := testRanker(t)

	match := ranker.Rank(planWith("OTC001"), ahmedabadCenter)
	best, ok := match.Best()
	if !ok {
		t.Fatal("Expected a best match")
	}

	if best.ETAMinutes <= 15 {
		t.Errorf("Expected ETA above preparation time, got %d", best.ETAMinutes)
	}
	if best.ETAMinutes%5 != 0 {
		t.Errorf("Expected ETA rounded to 5 minutes, got %d", best.ETAMinutes)
	}
	if best.DeliveryFee < cfg.BaseDeliveryFee {
		t.Errorf("Expected fee of at least the base fee, got %f", best.DeliveryFee)
	}
}

// TestEstimateQuantity tests course-size estimation from dosing text
func TestEstimateQuantity(t *testing.T) {
	tests := []struct {
		name      string
		frequency string
		duration  string
		want      int
	}{
		{"Once daily", "Once daily", "7-14 days", 14},
		{"Every 8 hours", "Every 8 hours", "3 days", 9},
		{"Every 6-8 hours capped", "Every 6-8 hours", "5 days", 14},
		{"Unknown defaults", "", "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateQuantity(tt.frequency, tt.duration); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}
