package pharmacy

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
	"github.com/medassist/triage/internal/shared/types"
	"github.com/medassist/triage/internal/therapy"
)

// Availability is the fallback signal attached to a match.
type Availability string

const (
	AvailabilityInStock      Availability = "in_stock"
	AvailabilityPartial      Availability = "partial"
	AvailabilityOutOfStock   Availability = "out_of_stock"
	AvailabilityNoPharmacies Availability = "no_pharmacies"
	AvailabilityNoItems      Availability = "no_items"
)

// ItemQuote is one plan item priced at a pharmacy.
type ItemQuote struct {
	SKU          string  `json:"sku"`
	DrugName     string  `json:"drug_name"`
	Price        float64 `json:"price"`
	QtyAvailable int     `json:"qty_available"`
	// QtyRecommended is the unit count for a full course, estimated from
	// the dosing frequency and duration.
	QtyRecommended int `json:"qty_recommended"`
}

// RankedPharmacy is one pharmacy scored against the therapy plan.
type RankedPharmacy struct {
	ID          string      `json:"pharmacy_id"`
	Name        string      `json:"pharmacy_name"`
	Address     string      `json:"pharmacy_address"`
	DistanceKm  float64     `json:"distance_km"`
	ETAMinutes  int         `json:"eta_min"`
	DeliveryFee float64     `json:"delivery_fee"`
	Items       []ItemQuote `json:"items"`
	MissingSKUs []string    `json:"missing_skus,omitempty"`
	// Coverage is the fraction of plan items in stock, in [0,1].
	Coverage  float64  `json:"stock_coverage"`
	TotalCost float64  `json:"total_cost"`
	Services  []string `json:"services"`
}

// Match is the ranker output: pharmacies ordered best-first plus a fallback
// signal describing why the list may be short or empty.
type Match struct {
	Pharmacies   []RankedPharmacy `json:"pharmacies"`
	Availability Availability     `json:"availability"`

	// Warnings carries degradation notes for the event log.
	Warnings []string `json:"-"`
}

// Best returns the top-ranked pharmacy, if any.
func (m Match) Best() (RankedPharmacy, bool) {
	if len(m.Pharmacies) == 0 {
		return RankedPharmacy{}, false
	}
	return m.Pharmacies[0], true
}

// Ranker scores pharmacies against a therapy plan by stock coverage,
// distance and cost. Pure and deterministic: identical inputs always
// produce the same ordering.
type Ranker struct {
	snapshot *refdata.Snapshot
	cfg      config.TriageConfig
}

func NewRanker(snapshot *refdata.Snapshot, cfg config.TriageConfig) *Ranker {
	return &Ranker{snapshot: snapshot, cfg: cfg}
}

// Rank evaluates every pharmacy in range against the plan's SKUs.
func (r *Ranker) Rank(plan therapy.Plan, location types.GeoPoint) Match {
	if len(plan.Options) == 0 {
		return Match{Availability: AvailabilityNoItems}
	}

	nearby := 0
	var ranked []RankedPharmacy
	for _, pharmacy := range r.snapshot.Pharmacies() {
		distance := location.DistanceKm(pharmacy.Location)
		// Both the configured search radius and the pharmacy's own
		// delivery envelope must cover the patient.
		if distance > math.Min(r.cfg.SearchRadiusKm, pharmacy.DeliveryKm) {
			continue
		}
		nearby++

		quote := r.quote(pharmacy, plan, distance)
		if quote.Coverage == 0 {
			continue
		}
		ranked = append(ranked, quote)
	}

	if nearby == 0 {
		return Match{
			Availability: AvailabilityNoPharmacies,
			Warnings:     []string{"no pharmacies within delivery range"},
		}
	}
	if len(ranked) == 0 {
		return Match{
			Availability: AvailabilityOutOfStock,
			Warnings:     []string{"no in-range pharmacy stocks any plan item"},
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Coverage != ranked[j].Coverage {
			return ranked[i].Coverage > ranked[j].Coverage
		}
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		if ranked[i].TotalCost != ranked[j].TotalCost {
			return ranked[i].TotalCost < ranked[j].TotalCost
		}
		return ranked[i].ID < ranked[j].ID
	})

	availability := AvailabilityPartial
	if ranked[0].Coverage == 1 {
		availability = AvailabilityInStock
	}
	return Match{Pharmacies: ranked, Availability: availability}
}

func (r *Ranker) quote(pharmacy refdata.Pharmacy, plan therapy.Plan, distance float64) RankedPharmacy {
	var items []ItemQuote
	var missing []string
	totalCost := 0.0

	for _, option := range plan.Options {
		stock, ok := r.snapshot.PharmacyStock(pharmacy.ID, option.SKU)
		if !ok || stock.Qty <= 0 {
			missing = append(missing, option.SKU)
			continue
		}
		items = append(items, ItemQuote{
			SKU:            option.SKU,
			DrugName:       option.DrugName,
			Price:          stock.Price,
			QtyAvailable:   stock.Qty,
			QtyRecommended: estimateQuantity(option.Frequency, option.Duration),
		})
		totalCost += stock.Price
	}

	return RankedPharmacy{
		ID:          pharmacy.ID,
		Name:        pharmacy.Name,
		Address:     pharmacy.Address,
		DistanceKm:  math.Round(distance*100) / 100,
		ETAMinutes:  r.estimateETA(distance),
		DeliveryFee: r.deliveryFee(distance),
		Items:       items,
		MissingSKUs: missing,
		Coverage:    float64(len(items)) / float64(len(plan.Options)),
		TotalCost:   math.Round(totalCost*100) / 100,
		Services:    pharmacy.Services,
	}
}

// estimateETA converts distance to a delivery estimate: travel time at the
// configured courier speed, 15 minutes preparation, a 10% traffic buffer,
// rounded up to the next 5 minutes.
func (r *Ranker) estimateETA(distanceKm float64) int {
	travel := distanceKm / r.cfg.DeliverySpeedKmph * 60
	total := travel + 15 + travel*0.1
	return int(math.Ceil(total/5) * 5)
}

func (r *Ranker) deliveryFee(distanceKm float64) float64 {
	fee := r.cfg.BaseDeliveryFee + math.Max(0, distanceKm)*r.cfg.PerKmCharge
	return math.Round(fee*100) / 100
}

var numberRegex = regexp.MustCompile(`\d+`)

// estimateQuantity derives a full-course unit count from dosing text,
// clamped to [1, 14].
func estimateQuantity(frequency, duration string) int {
	frequency = strings.ToLower(frequency)

	dailyDoses := 1
	switch {
	case strings.Contains(frequency, "once"):
		dailyDoses = 1
	case strings.Contains(frequency, "twice"), strings.Contains(frequency, "every 12"):
		dailyDoses = 2
	case strings.Contains(frequency, "every"):
		if m := numberRegex.FindString(frequency); m != "" {
			if hours, err := strconv.Atoi(m); err == nil && hours > 0 {
				dailyDoses = int(math.Max(1, math.Round(24/float64(hours))))
			}
		}
	case strings.Contains(frequency, "three"), strings.Contains(frequency, "thrice"):
		dailyDoses = 3
	case strings.Contains(frequency, "four"):
		dailyDoses = 4
	}

	durationDays := 3
	for _, m := range numberRegex.FindAllString(duration, -1) {
		if days, err := strconv.Atoi(m); err == nil && days > durationDays {
			durationDays = days
		}
	}

	quantity := dailyDoses * durationDays
	if quantity < 1 {
		return 1
	}
	if quantity > 14 {
		return 14
	}
	return quantity
}
