package refdata

import (
	"sort"
	"strings"

	apperrors "github.com/medassist/triage/internal/shared/errors"
	"github.com/medassist/triage/internal/shared/types"
)

// Medicine is one OTC entry in the medicine table.
type Medicine struct {
	SKU                   string   `json:"sku"`
	DrugName              string   `json:"drug_name"`
	Indications           []string `json:"indications"`
	AgeMin                int      `json:"age_min"`
	ContraAllergyKeywords []string `json:"contra_allergy_keywords"`
	Dose                  string   `json:"dose"`
	Frequency             string   `json:"frequency"`
	MaxDaily              string   `json:"max_daily"`
	Duration              string   `json:"duration"`
	Warnings              []string `json:"warnings"`
	PriceMin              float64  `json:"price_min"`
	PriceMax              float64  `json:"price_max"`
}

// InteractionLevel classifies a pairwise drug interaction.
type InteractionLevel string

const (
	InteractionNone     InteractionLevel = "none"
	InteractionMild     InteractionLevel = "mild"
	InteractionModerate InteractionLevel = "moderate"
	InteractionHigh     InteractionLevel = "high"
	InteractionSevere   InteractionLevel = "severe"
)

// Interaction is one row of the drug-drug interaction table.
type Interaction struct {
	DrugA string           `json:"drug_a"`
	DrugB string           `json:"drug_b"`
	Level InteractionLevel `json:"level"`
	Note  string           `json:"note"`
}

// Pharmacy is one pharmacy with its delivery envelope.
type Pharmacy struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Location   types.GeoPoint `json:"location"`
	DeliveryKm float64        `json:"delivery_km"`
	Services   []string       `json:"services"`
}

// InventoryItem is a stocked SKU at a pharmacy.
type InventoryItem struct {
	PharmacyID string  `json:"pharmacy_id"`
	SKU        string  `json:"sku"`
	Qty        int     `json:"qty"`
	Price      float64 `json:"price"`
}

// Doctor is one specialist in the doctor table.
type Doctor struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Specialty       string         `json:"specialty"`
	ExperienceYears int            `json:"experience_years"`
	ConsultationFee int            `json:"consultation_fee"`
	TeleAvailable   bool           `json:"tele_available"`
	Location        types.GeoPoint `json:"location"`
	AvailableSlots  []string       `json:"available_slots"`
}

// Snapshot is the immutable reference-data set threaded through a pipeline
// run. It is never mutated after construction and is safe for concurrent
// readers without locking.
type Snapshot struct {
	medicines    []Medicine
	interactions map[string]Interaction
	pharmacies   []Pharmacy
	inventory    map[string]map[string]InventoryItem // pharmacy id -> sku
	doctors      []Doctor
	pincodes     map[types.Pincode]types.GeoPoint
}

// NewSnapshot builds a snapshot from loaded tables. Rows are copied so the
// caller's slices can be reused.
func NewSnapshot(
	medicines []Medicine,
	interactions []Interaction,
	pharmacies []Pharmacy,
	inventory []InventoryItem,
	doctors []Doctor,
	pincodes map[types.Pincode]types.GeoPoint,
) *Snapshot {
	s := &Snapshot{
		medicines:    append([]Medicine(nil), medicines...),
		interactions: make(map[string]Interaction, len(interactions)),
		pharmacies:   append([]Pharmacy(nil), pharmacies...),
		inventory:    make(map[string]map[string]InventoryItem),
		doctors:      append([]Doctor(nil), doctors...),
		pincodes:     make(map[types.Pincode]types.GeoPoint, len(pincodes)),
	}

	for _, ix := range interactions {
		s.interactions[pairKey(ix.DrugA, ix.DrugB)] = ix
	}
	for _, item := range inventory {
		byPharmacy, ok := s.inventory[item.PharmacyID]
		if !ok {
			byPharmacy = make(map[string]InventoryItem)
			s.inventory[item.PharmacyID] = byPharmacy
		}
		byPharmacy[item.SKU] = item
	}
	for pc, pt := range pincodes {
		s.pincodes[pc] = pt
	}

	return s
}

// pairKey normalizes an unordered drug pair to a single lookup key.
func pairKey(a, b string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// MedicinesForIndications returns medicines whose indication keywords
// intersect the given set, preserving table order.
func (s *Snapshot) MedicinesForIndications(indications []string) []Medicine {
	if len(indications) == 0 {
		return nil
	}
	var matched []Medicine
	for _, med := range s.medicines {
		if indicationsIntersect(med.Indications, indications) {
			matched = append(matched, med)
		}
	}
	return matched
}

func indicationsIntersect(have, want []string) bool {
	for _, h := range have {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, w := range want {
			if h == strings.ToLower(strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}

// IndicationMatchCount counts how many of the wanted indications the
// medicine covers; used for relevance ordering.
func (m Medicine) IndicationMatchCount(want []string) int {
	count := 0
	for _, w := range want {
		w = strings.ToLower(strings.TrimSpace(w))
		for _, h := range m.Indications {
			if strings.ToLower(strings.TrimSpace(h)) == w {
				count++
				break
			}
		}
	}
	return count
}

// InteractionBetween looks up the interaction for a drug pair in either
// direction. The second return is false when no row exists.
func (s *Snapshot) InteractionBetween(drugA, drugB string) (Interaction, bool) {
	ix, ok := s.interactions[pairKey(drugA, drugB)]
	return ix, ok
}

// Pharmacies returns all pharmacies in table order.
func (s *Snapshot) Pharmacies() []Pharmacy {
	return s.pharmacies
}

// PharmacyStock returns the inventory item for a SKU at a pharmacy.
func (s *Snapshot) PharmacyStock(pharmacyID, sku string) (InventoryItem, bool) {
	byPharmacy, ok := s.inventory[pharmacyID]
	if !ok {
		return InventoryItem{}, false
	}
	item, ok := byPharmacy[sku]
	return item, ok
}

// Doctors returns all doctors in table order.
func (s *Snapshot) Doctors() []Doctor {
	return s.doctors
}

// DoctorsBySpecialties returns doctors whose specialty appears in the given
// list, preserving table order.
func (s *Snapshot) DoctorsBySpecialties(specialties []string) []Doctor {
	wanted := make(map[string]bool, len(specialties))
	for _, sp := range specialties {
		wanted[strings.ToLower(sp)] = true
	}
	var matched []Doctor
	for _, doc := range s.doctors {
		if wanted[strings.ToLower(doc.Specialty)] {
			matched = append(matched, doc)
		}
	}
	return matched
}

// Coordinates resolves a pincode to coordinates. Returns a reference-data
// gap error when the pincode is unknown.
func (s *Snapshot) Coordinates(pincode types.Pincode) (types.GeoPoint, error) {
	if pt, ok := s.pincodes[pincode]; ok {
		return pt, nil
	}
	return types.GeoPoint{}, apperrors.ReferenceGap("pincode_coordinates", pincode.String())
}

// Counts reports table sizes for the reference summary endpoint.
func (s *Snapshot) Counts() map[string]int {
	inventoryRows := 0
	for _, byPharmacy := range s.inventory {
		inventoryRows += len(byPharmacy)
	}
	return map[string]int{
		"medicines":    len(s.medicines),
		"interactions": len(s.interactions),
		"pharmacies":   len(s.pharmacies),
		"inventory":    inventoryRows,
		"doctors":      len(s.doctors),
		"pincodes":     len(s.pincodes),
	}
}

// SortedSKUs returns the distinct SKUs present in any inventory, sorted.
// Used by integration tests and the reference summary.
func (s *Snapshot) SortedSKUs() []string {
	seen := make(map[string]bool)
	for _, byPharmacy := range s.inventory {
		for sku := range byPharmacy {
			seen[sku] = true
		}
	}
	skus := make([]string, 0, len(seen))
	for sku := range seen {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}
