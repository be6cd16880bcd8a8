package doctor

import (
	"testing"

	"github.com/medassist/triage/internal/imaging"
	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
	"github.com/medassist/triage/internal/shared/types"
	"github.com/medassist/triage/internal/therapy"
)

var ahmedabadCenter = types.GeoPoint{Lat: 23.0225, Lon: 72.5714}

func testMatcher(t *testing.T) (*Matcher, config.TriageConfig) {
	t.Helper()
	snapshot, err := refdata.LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error loading seed, got %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}
	return NewMatcher(snapshot, cfg.Triage), cfg.Triage
}

func escalatedCase(condition imaging.Condition, severity imaging.Severity, flags ...imaging.RedFlag) (therapy.Plan, imaging.Result) {
	plan := therapy.Plan{PrimaryCondition: condition, Severity: severity, EscalateToDoctor: true}
	result := imaging.Result{
		Probabilities: map[imaging.Condition]float64{condition: 0.6},
		Severity:      severity,
		Confidence:    0.7,
		RedFlags:      flags,
	}
	return plan, result
}

// TestMatchSpecialtyFilter tests that matched doctors carry a suitable
// specialty for the condition
func TestMatchSpecialtyFilter(t *testing.T) {
	matcher, cfg := testMatcher(t)

	plan, result := escalatedCase(imaging.ConditionPneumonia, imaging.SeverityModerate)
	match := matcher.Match(plan, result, ahmedabadCenter)

	if len(match.Doctors) == 0 {
		t.Fatal("Expected doctor matches for pneumonia")
	}
	if len(match.Doctors) > cfg.MaxDoctors {
		t.Errorf("Expected at most %d doctors, got %d", cfg.MaxDoctors, len(match.Doctors))
	}

	allowed := map[string]bool{
		"Pulmonologist":                 true,
		"Infectious Disease Specialist": true,
		"General Physician":             true,
	}
	for _, doc := range match.Doctors {
		if !allowed[doc.Specialty] {
			t.Errorf("Unexpected specialty %s", doc.Specialty)
		}
		if !doc.TeleAvailable {
			t.Errorf("Doctor %s is not tele-capable", doc.ID)
		}
	}
}

// TestMatchScoreOrdering tests descending score with fee tie-break
func TestMatchScoreOrdering(t *testing.T) {
	matcher, _ := testMatcher(t)

	plan, result := escalatedCase(imaging.ConditionPneumonia, imaging.SeverityModerate)
	match := matcher.Match(plan, result, ahmedabadCenter)

	for i := 1; i < len(match.Doctors); i++ {
		prev, curr := match.Doctors[i-1], match.Doctors[i]
		if prev.MatchScore < curr.MatchScore {
			t.Errorf("Scores out of order at %d: %f < %f", i, prev.MatchScore, curr.MatchScore)
		}
		if prev.MatchScore == curr.MatchScore && prev.ConsultationFee > curr.ConsultationFee {
			t.Errorf("Fee tie-break violated at %d", i)
		}
	}

	// The senior pulmonologist should outrank the junior one.
	pos := map[string]int{}
	for i, doc := range match.Doctors {
		pos[doc.ID] = i
	}
	if p1, ok1 := pos["DOC001"]; ok1 {
		if p2, ok2 := pos["DOC002"]; ok2 && p1 > p2 {
			t.Error("Expected DOC001 (15y) to outrank DOC002 (8y)")
		}
	}
}

// TestMatchUrgencyBands tests urgency derivation from severity and flags
func TestMatchUrgencyBands(t *testing.T) {
	matcher, _ := testMatcher(t)

	tests := []struct {
		name     string
		severity imaging.Severity
		flags    []imaging.RedFlag
		want     Urgency
	}{
		{"Critical flag", imaging.SeverityModerate,
			[]imaging.RedFlag{{Level: imaging.FlagCritical, Message: "low oxygen"}}, UrgencyCritical},
		{"Severe severity", imaging.SeveritySevere, nil, UrgencyHigh},
		{"Warning flag", imaging.SeverityMild,
			[]imaging.RedFlag{{Level: imaging.FlagWarning, Message: "chest pain"}}, UrgencyHigh},
		{"Moderate severity", imaging.SeverityModerate, nil, UrgencyModerate},
		{"Mild no flags", imaging.SeverityMild, nil, UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, result := escalatedCase(imaging.ConditionPneumonia, tt.severity, tt.flags...)
			match := matcher.Match(plan, result, ahmedabadCenter)
			if match.Urgency != tt.want {
				t.Errorf("Expected urgency %s, got %s", tt.want, match.Urgency)
			}
		})
	}
}

// TestMatchGeneralPhysicianFallback tests the fallback when no tele-capable
// specialist exists
func TestMatchGeneralPhysicianFallback(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}

	// Only a non-tele pulmonologist and an in-person GP exist.
	snapshot := refdata.NewSnapshot(nil, nil, nil, nil, []refdata.Doctor{
		{ID: "DOC010", Name: "Dr. A", Specialty: "Pulmonologist", ExperienceYears: 10, ConsultationFee: 700,
			TeleAvailable: false, Location: ahmedabadCenter, AvailableSlots: []string{"2027-01-05T10:00:00Z"}},
		{ID: "DOC011", Name: "Dr. B", Specialty: "General Physician", ExperienceYears: 6, ConsultationFee: 300,
			TeleAvailable: false, Location: ahmedabadCenter, AvailableSlots: []string{"2027-01-05T11:00:00Z"}},
	}, nil)
	matcher := NewMatcher(snapshot, cfg.Triage)

	plan, result := escalatedCase(imaging.ConditionPneumonia, imaging.SeverityModerate)
	match := matcher.Match(plan, result, ahmedabadCenter)

	if len(match.Doctors) != 1 {
		t.Fatalf("Expected one fallback match, got %d", len(match.Doctors))
	}
	if match.Doctors[0].Specialty != "General Physician" {
		t.Errorf("Expected general physician fallback, got %s", match.Doctors[0].Specialty)
	}
	if len(match.Warnings) == 0 {
		t.Error("Expected a fallback warning")
	}
}

// TestMatchEmptyRoster tests degradation to an empty match with a warning
func TestMatchEmptyRoster(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}
	matcher := NewMatcher(refdata.NewSnapshot(nil, nil, nil, nil, nil, nil), cfg.Triage)

	plan, result := escalatedCase(imaging.ConditionPneumonia, imaging.SeverityModerate)
	match := matcher.Match(plan, result, ahmedabadCenter)

	if len(match.Doctors) != 0 {
		t.Errorf("Expected no matches, got %d", len(match.Doctors))
	}
	if len(match.Warnings) == 0 {
		t.Error("Expected warnings for empty roster")
	}
	if match.Urgency != UrgencyModerate {
		t.Errorf("Expected urgency still derived, got %s", match.Urgency)
	}
}
