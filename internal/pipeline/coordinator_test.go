package pipeline

import (
	"testing"

	"github.com/medassist/triage/internal/intake"
	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
)

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	snapshot, err := refdata.LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error loading seed, got %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}
	return NewCoordinator(snapshot, cfg.Triage)
}

func bundleFor(t *testing.T, age int, symptoms string, spo2 int, pincode string, allergies []string) intake.PatientBundle {
	t.Helper()
	bundle, err := intake.NewBundle(age, "F", symptoms, &spo2, pincode, allergies, nil)
	if err != nil {
		t.Fatalf("Expected valid bundle, got %v", err)
	}
	return bundle
}

// midFeatures produces a pneumonia-leaning classification at mild severity.
var midFeatures = intake.ImageFeatures{
	Mean: 120, Std: 40, Contrast: 180, DarkRatio: 0.45, BrightRatio: 0.05,
}

// denseFeatures produces a strongly infection-leaning classification.
var denseFeatures = intake.ImageFeatures{
	Mean: 80, Std: 55, Contrast: 100, DarkRatio: 0.7, BrightRatio: 0.01,
}

// TestRunSuccessPath tests the self-service path: mild cough, healthy
// vitals, no allergies
func TestRunSuccessPath(t *testing.T) {
	coordinator := testCoordinator(t)

	bundle := bundleFor(t, 35, "mild cough", 96, "380001", nil)
	outcome := coordinator.Run(bundle, midFeatures)

	success, ok := outcome.(Success)
	if !ok {
		t.Fatalf("Expected Success outcome, got %T", outcome)
	}
	if len(success.Treatment.Options) == 0 {
		t.Error("Expected at least one OTC candidate")
	}
	if success.Treatment.EscalateToDoctor {
		t.Error("Success outcome must never carry an escalation flag")
	}
	if len(success.Pharmacy.Pharmacies) == 0 {
		t.Error("Expected a non-empty pharmacy list")
	}
	if len(success.EventLog) == 0 {
		t.Error("Expected an event log")
	}
	if len(success.DisclaimerSet) != 3 {
		t.Errorf("Expected 3 disclaimers, got %d", len(success.DisclaimerSet))
	}
}

// TestRunEmergencyPath tests that low SpO2 always forces Emergency
func TestRunEmergencyPath(t *testing.T) {
	coordinator := testCoordinator(t)

	for _, features := range []intake.ImageFeatures{midFeatures, denseFeatures} {
		bundle := bundleFor(t, 40, "cough", 85, "380001", nil)
		outcome := coordinator.Run(bundle, features)

		emergency, ok := outcome.(Emergency)
		if !ok {
			t.Fatalf("Expected Emergency outcome, got %T", outcome)
		}
		if emergency.Severity != "CRITICAL" {
			t.Errorf("Expected CRITICAL severity, got %s", emergency.Severity)
		}
		if len(emergency.RedFlags) == 0 {
			t.Error("Expected red flags on emergency outcome")
		}
		if emergency.ActionRequired == "" {
			t.Error("Expected an action_required instruction")
		}
		if len(emergency.EventLog) == 0 {
			t.Error("Expected an event log")
		}
		for _, entry := range emergency.EventLog {
			if entry.Unit == unitTherapy || entry.Unit == unitPharmacy || entry.Unit == unitDoctor {
				t.Errorf("Unit %s ran after the emergency exit", entry.Unit)
			}
		}
	}
}

// TestRunEscalationPath tests routing to the doctor matcher on red flags
func TestRunEscalationPath(t *testing.T) {
	coordinator := testCoordinator(t)

	bundle := bundleFor(t, 72, "fever with shortness of breath", 96, "380001", nil)
	outcome := coordinator.Run(bundle, denseFeatures)

	escalated, ok := outcome.(Escalated)
	if !ok {
		t.Fatalf("Expected Escalated outcome, got %T", outcome)
	}
	if len(escalated.DoctorMatches.Doctors) == 0 {
		t.Error("Expected non-empty doctor matches")
	}
	if escalated.Urgency == "" {
		t.Error("Expected an urgency level")
	}
	if escalated.Message == "" {
		t.Error("Expected an escalation message")
	}
}

// TestRunAllergyForcesEscalation tests that filtering every candidate
// forces the prescription path
func TestRunAllergyForcesEscalation(t *testing.T) {
	coordinator := testCoordinator(t)

	allergies := []string{"paracetamol", "ibuprofen", "cetirizine", "dextromethorphan", "guaifenesin"}
	bundle := bundleFor(t, 35, "mild cough", 96, "380001", allergies)
	outcome := coordinator.Run(bundle, midFeatures)

	if _, ok := outcome.(Escalated); !ok {
		t.Fatalf("Expected Escalated outcome when every candidate is filtered, got %T", outcome)
	}
	if !outcome.Log().HasWarnings() {
		t.Error("Expected a warning trace for the empty candidate set")
	}
}

// TestRunLowConfidenceEscalates tests the confidence branch of the
// escalation decision with a raised threshold. The classifier never
// reports below 0.40, so the branch is only reachable when the operator
// tunes the threshold above that floor.
func TestRunLowConfidenceEscalates(t *testing.T) {
	snapshot, err := refdata.LoadSeed()
	if err != nil {
		t.Fatalf("Expected no error loading seed, got %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Expected no error loading config, got %v", err)
	}
	cfg.Triage.EscalationConfidence = 0.5
	coordinator := NewCoordinator(snapshot, cfg.Triage)

	// A mild case that lands in Success at the default threshold.
	bundle := bundleFor(t, 35, "mild cough", 96, "380001", nil)
	outcome := coordinator.Run(bundle, midFeatures)

	escalated, ok := outcome.(Escalated)
	if !ok {
		t.Fatalf("Expected Escalated outcome under raised threshold, got %T", outcome)
	}
	if escalated.Message != "Classification confidence is low; a doctor should review this case." {
		t.Errorf("Expected low-confidence message, got %q", escalated.Message)
	}
	if len(escalated.DoctorMatches.Doctors) == 0 {
		t.Error("Expected doctor matches for the low-confidence review")
	}
}

// TestRunUnknownPincodeDegrades tests graceful degradation with a warning
// event instead of a failure
func TestRunUnknownPincodeDegrades(t *testing.T) {
	coordinator := testCoordinator(t)

	bundle := bundleFor(t, 35, "mild cough", 96, "999999", nil)
	outcome := coordinator.Run(bundle, midFeatures)

	success, ok := outcome.(Success)
	if !ok {
		t.Fatalf("Expected Success outcome, got %T", outcome)
	}
	if !success.EventLog.HasWarnings() {
		t.Error("Expected a warning event for the unknown pincode")
	}
	// The default metro center is far from every seed pharmacy.
	if success.Pharmacy.Availability != "no_pharmacies" {
		t.Errorf("Expected no_pharmacies after location fallback, got %s", success.Pharmacy.Availability)
	}
}

// TestRunEventLogStructure tests that every run leaves unit start/finish
// traces regardless of branch
func TestRunEventLogStructure(t *testing.T) {
	coordinator := testCoordinator(t)

	bundle := bundleFor(t, 35, "mild cough", 96, "380001", nil)
	outcome := coordinator.Run(bundle, midFeatures)

	units := map[string]bool{}
	for _, entry := range outcome.Log() {
		units[entry.Unit] = true
		if entry.Timestamp.IsZero() {
			t.Error("Expected timestamps on event entries")
		}
	}
	for _, unit := range []string{unitCoordinator, unitImaging, unitTherapy, unitPharmacy} {
		if !units[unit] {
			t.Errorf("Expected %s entries in event log", unit)
		}
	}
	if units[unitDoctor] {
		t.Error("Doctor matcher must not run on the success path")
	}
}

// TestRunConcurrent tests that concurrent runs over one shared snapshot
// are safe and deterministic
func TestRunConcurrent(t *testing.T) {
	coordinator := testCoordinator(t)
	bundle := bundleFor(t, 35, "mild cough", 96, "380001", nil)

	baseline := coordinator.Run(bundle, midFeatures)
	baseKind := baseline.Kind()

	done := make(chan string, 20)
	for i := 0; i < 20; i++ {
		go func() {
			done <- coordinator.Run(bundle, midFeatures).Kind()
		}()
	}
	for i := 0; i < 20; i++ {
		if kind := <-done; kind != baseKind {
			t.Errorf("Expected %s outcome, got %s", baseKind, kind)
		}
	}
}
