package refdata

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/medassist/triage/internal/shared/types"
)

// LoadFromMSSQL imports the reference tables from a legacy hospital
// information system (HIS) running on SQL Server. The legacy schema keeps
// doctors and pharmacy stock under its own naming; this loader maps it
// into the snapshot tables. Used when REFDATA_SOURCE=mssql.
func LoadFromMSSQL(ctx context.Context, dsn string) (*Snapshot, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open HIS connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping HIS database: %w", err)
	}

	medicines, err := loadHISMedicines(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to import HIS formulary: %w", err)
	}

	interactions, err := loadHISInteractions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to import HIS interactions: %w", err)
	}

	pharmacies, inventory, err := loadHISPharmacies(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to import HIS pharmacy stock: %w", err)
	}

	doctors, err := loadHISDoctors(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to import HIS staff roster: %w", err)
	}

	pincodes, err := loadHISPincodes(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to import HIS postal registry: %w", err)
	}

	return NewSnapshot(medicines, interactions, pharmacies, inventory, doctors, pincodes), nil
}

func loadHISMedicines(ctx context.Context, db *sql.DB) ([]Medicine, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT SkuCode, DrugName, IndicationCsv, MinAgeYears, AllergyKeywordCsv,
		       StdDose, StdFrequency, MaxDailyDose, StdDuration, WarningCsv,
		       PriceFloor, PriceCeiling
		FROM dbo.Formulary ORDER BY SkuCode
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

func loadHISInteractions(ctx context.Context, db *sql.DB) ([]Interaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DrugNameA, DrugNameB, SeverityLevel, ClinicalNote
		FROM dbo.DrugInteraction
	`)
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
		ix.Level = InteractionLevel(level)
		interactions = append(interactions, ix)
	}
	return interactions, rows.Err()
}

func loadHISPharmacies(ctx context.Context, db *sql.DB) ([]Pharmacy, []InventoryItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT OutletCode, OutletName, StreetAddress, Latitude, Longitude,
		       DeliveryRadiusKm, ServiceFlagCsv
		FROM dbo.PharmacyOutlet ORDER BY OutletCode
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var pharmacies []Pharmacy
	for rows.Next() {
		var p Pharmacy
		var services string
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Location.Lat, &p.Location.Lon,
			&p.DeliveryKm, &services); err != nil {
			return nil, nil, err
		}
		p.Services = splitList(services)
		pharmacies = append(pharmacies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	stockRows, err := db.QueryContext(ctx, `
		SELECT OutletCode, SkuCode, QtyOnHand, UnitPrice
		FROM dbo.OutletStock
	`)
	if err != nil {
		return nil, nil, err
	}
	defer stockRows.Close()

	var inventory []InventoryItem
	for stockRows.Next() {
		var item InventoryItem
		if err := stockRows.Scan(&item.PharmacyID, &item.SKU, &item.Qty, &item.Price); err != nil {
			return nil, nil, err
		}
		inventory = append(inventory, item)
	}
	return pharmacies, inventory, stockRows.Err()
}

func loadHISDoctors(ctx context.Context, db *sql.DB) ([]Doctor, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT StaffCode, FullName, SpecialtyName, YearsOfPractice, TeleConsultFee,
		       TeleConsultEnabled, Latitude, Longitude, OpenSlotCsv
		FROM dbo.MedicalStaff WHERE IsActive = 1 ORDER BY StaffCode
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

func loadHISPincodes(ctx context.Context, db *sql.DB) (map[types.Pincode]types.GeoPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT PostalCode, Latitude, Longitude FROM dbo.PostalRegistry
	`)
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
