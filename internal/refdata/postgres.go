package refdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medassist/triage/internal/shared/types"
)

// LoadFromPostgres loads all reference tables into an immutable snapshot.
// Called once at startup; the pipeline never touches the pool afterwards.
func LoadFromPostgres(ctx context.Context, pool *pgxpool.Pool) (*Snapshot, error) {
	medicines, err := loadMedicines(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load medicines: %w", err)
	}

	interactions, err := loadInteractions(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	pharmacies, err := loadPharmacies(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load pharmacies: %w", err)
	}

	inventory, err := loadInventory(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}

	doctors, err := loadDoctors(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load doctors: %w", err)
	}

	pincodes, err := loadPincodes(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to load pincode coordinates: %w", err)
	}

	return NewSnapshot(medicines, interactions, pharmacies, inventory, doctors, pincodes), nil
}

func loadMedicines(ctx context.Context, pool *pgxpool.Pool) ([]Medicine, error) {
	rows, err := pool.Query(ctx, `
		SELECT sku, drug_name, indications, age_min, contra_allergy_keywords,
		       dose, frequency, max_daily, duration, warnings, price_min, price_max
		FROM medicines ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var medicines []Medicine
	for rows.Next() {
		var m Medicine
		var indications, contra, warnings string
		if err := rows.Scan(&m.SKU, &m.DrugName, &indications, &m.AgeMin, &contra,
			&m.Dose, &m.Frequency, &m.MaxDaily, &m.Duration, &warnings,
			&m.PriceMin, &m.PriceMax); err != nil {
			return nil, err
		}
		m.Indications = splitList(indications)
		m.ContraAllergyKeywords = splitList(contra)
		m.Warnings = splitList(warnings)
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

func loadInteractions(ctx context.Context, pool *pgxpool.Pool) ([]Interaction, error) {
	rows, err := pool.Query(ctx, `SELECT drug_a, drug_b, level, note FROM drug_interactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var ix Interaction
		var level string
		if err := rows.Scan(&ix.DrugA, &ix.DrugB, &level, &ix.Note); err != nil {
			return nil, err
		}
		ix.Level = InteractionLevel(strings.ToLower(level))
		interactions = append(interactions, ix)
	}
	return interactions, rows.Err()
}

func loadPharmacies(ctx context.Context, pool *pgxpool.Pool) ([]Pharmacy, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, name, address, lat, lon, delivery_km, services
		FROM pharmacies ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pharmacies []Pharmacy
	for rows.Next() {
		var p Pharmacy
		var services string
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Location.Lat, &p.Location.Lon,
			&p.DeliveryKm, &services); err != nil {
			return nil, err
		}
		p.Services = splitList(services)
		pharmacies = append(pharmacies, p)
	}
	return pharmacies, rows.Err()
}

func loadInventory(ctx context.Context, pool *pgxpool.Pool) ([]InventoryItem, error) {
	rows, err := pool.Query(ctx, `SELECT pharmacy_id, sku, qty, price FROM pharmacy_inventory`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inventory []InventoryItem
	for rows.Next() {
		var item InventoryItem
		if err := rows.Scan(&item.PharmacyID, &item.SKU, &item.Qty, &item.Price); err != nil {
			return nil, err
		}
		inventory = append(inventory, item)
	}
	return inventory, rows.Err()
}

func loadDoctors(ctx context.Context, pool *pgxpool.Pool) ([]Doctor, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, name, specialty, experience_years, consultation_fee,
		       tele_available, lat, lon, available_slots
		FROM doctors ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		var slots string
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty, &d.ExperienceYears,
			&d.ConsultationFee, &d.TeleAvailable, &d.Location.Lat, &d.Location.Lon,
			&slots); err != nil {
			return nil, err
		}
		d.AvailableSlots = splitList(slots)
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

func loadPincodes(ctx context.Context, pool *pgxpool.Pool) (map[types.Pincode]types.GeoPoint, error) {
	rows, err := pool.Query(ctx, `SELECT pincode, lat, lon FROM pincode_coordinates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pincodes := make(map[types.Pincode]types.GeoPoint)
	for rows.Next() {
		var pincode string
		var pt types.GeoPoint
		if err := rows.Scan(&pincode, &pt.Lat, &pt.Lon); err != nil {
			return nil, err
		}
		pincodes[types.Pincode(pincode)] = pt
	}
	return pincodes, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
