package intake

import (
	"errors"
	"testing"

	apperrors "github.com/medassist/triage/internal/shared/errors"
)

// TestNewBundleValidation tests fatal validation of intake fields
func TestNewBundleValidation(t *testing.T) {
	spo2 := func(v int) *int { return &v }

	tests := []struct {
		name        string
		age         int
		spo2        *int
		pincode     string
		expectError bool
	}{
		{"Valid bundle", 42, spo2(96), "380001", false},
		{"Negative age", -1, spo2(96), "380001", true},
		{"Absurd age", 130, spo2(96), "380001", true},
		{"SpO2 above 100", 42, spo2(101), "380001", true},
		{"SpO2 below 0", 42, spo2(-5), "380001", true},
		{"Malformed pincode", 42, spo2(96), "38xx1", true},
		{"Pincode with separators", 42, spo2(96), "380-001", false},
		{"Empty pincode allowed", 42, spo2(96), "", false},
		{"Missing SpO2 defaults", 42, nil, "380001", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBundle(tt.age, "F", "cough", tt.spo2, tt.pincode, nil, nil)

			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.expectError && !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

// TestNewBundleDefaults tests SpO2 default and keyword normalization
func TestNewBundleDefaults(t *testing.T) {
	bundle, err := NewBundle(30, "male", "  Dry COUGH ", nil, "380 001",
		[]string{" Ibuprofen ", ""}, []string{"WARFARIN"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if bundle.SpO2 != 97 {
		t.Errorf("Expected default SpO2 97, got %d", bundle.SpO2)
	}
	if bundle.Gender != GenderMale {
		t.Errorf("Expected gender M, got %s", bundle.Gender)
	}
	if bundle.Symptoms != "dry cough" {
		t.Errorf("Expected normalized symptoms, got %q", bundle.Symptoms)
	}
	if bundle.Pincode.String() != "380001" {
		t.Errorf("Expected sanitized pincode 380001, got %s", bundle.Pincode)
	}
	if len(bundle.Allergies) != 1 || bundle.Allergies[0] != "ibuprofen" {
		t.Errorf("Expected normalized allergies, got %v", bundle.Allergies)
	}
	if len(bundle.CurrentMedications) != 1 || bundle.CurrentMedications[0] != "warfarin" {
		t.Errorf("Expected normalized medications, got %v", bundle.CurrentMedications)
	}
}

// TestValidateImageFeatures tests range checks on image statistics
func TestValidateImageFeatures(t *testing.T) {
	tests := []struct {
		name        string
		features    ImageFeatures
		expectError bool
	}{
		{"Valid features", ImageFeatures{Mean: 120, Std: 40, Contrast: 200, DarkRatio: 0.3, BrightRatio: 0.1}, false},
		{"Mean out of range", ImageFeatures{Mean: 300}, true},
		{"Dark ratio above 1", ImageFeatures{Mean: 100, DarkRatio: 1.2}, true},
		{"Negative contrast", ImageFeatures{Mean: 100, Contrast: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageFeatures(tt.features)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
