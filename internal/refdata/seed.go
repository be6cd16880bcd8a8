package refdata

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/medassist/triage/internal/shared/types"
)

//go:embed seed/dataset.json
var seedFS embed.FS

type seedDataset struct {
	Medicines    []Medicine      `json:"medicines"`
	Interactions []Interaction   `json:"interactions"`
	Pharmacies   []Pharmacy      `json:"pharmacies"`
	Inventory    []InventoryItem `json:"inventory"`
	Doctors      []Doctor        `json:"doctors"`
	Pincodes     []struct {
		Pincode string  `json:"pincode"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	} `json:"pincodes"`
}

// LoadSeed builds a snapshot from the embedded demo dataset. This is the
// limited-mode fallback when no reference database is configured.
func LoadSeed() (*Snapshot, error) {
	raw, err := seedFS.ReadFile("seed/dataset.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read seed dataset: %w", err)
	}

	var dataset seedDataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse seed dataset: %w", err)
	}

	pincodes := make(map[types.Pincode]types.GeoPoint, len(dataset.Pincodes))
	for _, row := range dataset.Pincodes {
		pincodes[types.Pincode(row.Pincode)] = types.GeoPoint{Lat: row.Lat, Lon: row.Lon}
	}

	return NewSnapshot(
		dataset.Medicines,
		dataset.Interactions,
		dataset.Pharmacies,
		dataset.Inventory,
		dataset.Doctors,
		pincodes,
	), nil
}
