package intake

import (
	"strconv"
	"strings"

	apperrors "github.com/medassist/triage/internal/shared/errors"
	"github.com/medassist/triage/internal/shared/types"
)

// Gender of the patient as reported at intake.
type Gender string

const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderUnknown Gender = "U"
)

// ParseGender normalizes free-form gender input.
func ParseGender(s string) Gender {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return GenderMale
	case "F", "FEMALE":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// defaultSpO2 is assumed when the oximeter reading is absent.
const defaultSpO2 = 97

// maxPlausibleAge bounds intake validation.
const maxPlausibleAge = 120

// PatientBundle is the validated per-request patient record. It is built
// once at intake and treated as immutable for the lifetime of a pipeline
// run.
type PatientBundle struct {
	Age                int           `json:"age"`
	Gender             Gender        `json:"gender"`
	Allergies          []string      `json:"allergies"`
	CurrentMedications []string      `json:"current_medications"`
	Symptoms           string        `json:"symptoms"`
	SpO2               int           `json:"spo2"`
	Pincode            types.Pincode `json:"pincode"`

	// Location is the resolved coordinate for Pincode. Filled during
	// intake resolution; the zero value means unresolved.
	Location types.GeoPoint `json:"location"`
	// UsedDefaultLocation records that an unknown pincode fell back to
	// the configured metro center.
	UsedDefaultLocation bool `json:"used_default_location,omitempty"`
}

// ImageFeatures are the normalized pixel statistics of a validated X-ray.
// Image decoding, size checks and PII masking happen upstream; the
// pipeline only ever sees this summary.
type ImageFeatures struct {
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Contrast    float64 `json:"contrast"`
	DarkRatio   float64 `json:"dark_ratio"`
	BrightRatio float64 `json:"bright_ratio"`
}

// NewBundle validates raw intake fields and builds an immutable bundle.
// A validation failure here is fatal: the coordinator never runs.
func NewBundle(age int, gender, symptoms string, spo2 *int, pincode string, allergies, currentMeds []string) (PatientBundle, error) {
	details := map[string]string{}

	if age < 0 || age > maxPlausibleAge {
		details["age"] = "age must be between 0 and " + strconv.Itoa(maxPlausibleAge)
	}

	saturation := defaultSpO2
	if spo2 != nil {
		saturation = *spo2
		if saturation < 0 || saturation > 100 {
			details["spo2"] = "spo2 must be between 0 and 100"
		}
	}

	pc := types.SanitizePincode(pincode)
	if pc.IsZero() && pincode != "" {
		details["pincode"] = "pincode must contain a 6-digit code"
	}

	if len(details) > 0 {
		return PatientBundle{}, apperrors.Validation("invalid patient bundle", details)
	}

	return PatientBundle{
		Age:                age,
		Gender:             ParseGender(gender),
		Allergies:          normalizeKeywords(allergies),
		CurrentMedications: normalizeKeywords(currentMeds),
		Symptoms:           strings.ToLower(strings.TrimSpace(symptoms)),
		SpO2:               saturation,
		Pincode:            pc,
	}, nil
}

// ValidateImageFeatures rejects statistics outside their defined ranges.
func ValidateImageFeatures(f ImageFeatures) error {
	details := map[string]string{}
	if f.Mean < 0 || f.Mean > 255 {
		details["mean"] = "mean intensity must be in [0,255]"
	}
	if f.Contrast < 0 || f.Contrast > 255 {
		details["contrast"] = "contrast must be in [0,255]"
	}
	if f.DarkRatio < 0 || f.DarkRatio > 1 {
		details["dark_ratio"] = "dark_ratio must be in [0,1]"
	}
	if f.BrightRatio < 0 || f.BrightRatio > 1 {
		details["bright_ratio"] = "bright_ratio must be in [0,1]"
	}
	if len(details) > 0 {
		return apperrors.Validation("invalid image features", details)
	}
	return nil
}

func normalizeKeywords(values []string) []string {
	var result []string
	for _, v := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(v)); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
