package refdata

import (
	"errors"
	"testing"

	apperrors "github.com/medassist/triage/internal/shared/errors"
)

// TestLoadSeed tests that the embedded dataset loads completely
func TestLoadSeed(t *testing.T) {
	snapshot, err := LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	counts := snapshot.Counts()
	if counts["medicines"] == 0 {
		t.Error("Expected medicines in seed dataset")
	}
	if counts["pharmacies"] == 0 {
		t.Error("Expected pharmacies in seed dataset")
	}
	if counts["doctors"] == 0 {
		t.Error("Expected doctors in seed dataset")
	}
	if counts["pincodes"] == 0 {
		t.Error("Expected pincode coordinates in seed dataset")
	}
}

// TestInteractionBetween tests symmetric pair lookup
func TestInteractionBetween(t *testing.T) {
	snapshot, err := LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	forward, ok := snapshot.InteractionBetween("Ibuprofen", "Warfarin")
	if !ok {
		t.Fatal("Expected interaction row for Ibuprofen-Warfarin")
	}
	if forward.Level != InteractionSevere {
		t.Errorf("Expected severe level, got %s", forward.Level)
	}

	reverse, ok := snapshot.InteractionBetween("warfarin", "ibuprofen")
	if !ok {
		t.Fatal("Expected reverse lookup to succeed")
	}
	if reverse.Level != forward.Level {
		t.Errorf("Expected same level both directions, got %s vs %s", reverse.Level, forward.Level)
	}

	if _, ok := snapshot.InteractionBetween("Paracetamol", "Cetirizine"); ok {
		t.Error("Expected no interaction row for unrelated pair")
	}
}

// TestMedicinesForIndications tests indication matching and relevance counts
func TestMedicinesForIndications(t *testing.T) {
	snapshot, err := LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	matched := snapshot.MedicinesForIndications([]string{"fever", "cough"})
	if len(matched) == 0 {
		t.Fatal("Expected matches for fever/cough")
	}
	for _, med := range matched {
		if med.IndicationMatchCount([]string{"fever", "cough"}) == 0 {
			t.Errorf("Medicine %s matched but has zero relevance", med.SKU)
		}
	}

	if got := snapshot.MedicinesForIndications(nil); got != nil {
		t.Errorf("Expected no matches for empty indication set, got %d", len(got))
	}
}

// TestCoordinates tests pincode resolution and the gap error
func TestCoordinates(t *testing.T) {
	snapshot, err := LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	point, err := snapshot.Coordinates("380001")
	if err != nil {
		t.Fatalf("Expected coordinates for 380001, got %v", err)
	}
	if point.IsZero() {
		t.Error("Expected non-zero coordinates")
	}

	_, err = snapshot.Coordinates("999999")
	if err == nil {
		t.Fatal("Expected reference gap for unknown pincode")
	}
	if !errors.Is(err, apperrors.ErrReferenceGap) {
		t.Errorf("Expected reference-gap error, got %v", err)
	}
}

// TestPharmacyStock tests inventory lookup including zero-qty rows
func TestPharmacyStock(t *testing.T) {
	snapshot, err := LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	item, ok := snapshot.PharmacyStock("PH001", "OTC001")
	if !ok {
		t.Fatal("Expected stock row for PH001/OTC001")
	}
	if item.Qty <= 0 {
		t.Errorf("Expected positive quantity, got %d", item.Qty)
	}

	zero, ok := snapshot.PharmacyStock("PH002", "OTC005")
	if !ok {
		t.Fatal("Expected stock row for PH002/OTC005")
	}
	if zero.Qty != 0 {
		t.Errorf("Expected zero quantity, got %d", zero.Qty)
	}

	if _, ok := snapshot.PharmacyStock("PH999", "OTC001"); ok {
		t.Error("Expected no stock for unknown pharmacy")
	}
}
