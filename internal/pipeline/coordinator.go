package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/medassist/triage/internal/doctor"
	"github.com/medassist/triage/internal/imaging"
	"github.com/medassist/triage/internal/intake"
	"github.com/medassist/triage/internal/pharmacy"
	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
	apperrors "github.com/medassist/triage/internal/shared/errors"
	"github.com/medassist/triage/internal/shared/metrics"
	"github.com/medassist/triage/internal/shared/types"
	"github.com/medassist/triage/internal/therapy"
)

// Unit names as they appear in the event log.
const (
	unitCoordinator = "coordinator"
	unitImaging     = "imaging_classifier"
	unitTherapy     = "therapy_screener"
	unitPharmacy    = "pharmacy_ranker"
	unitDoctor      = "doctor_matcher"
)

// Coordinator orchestrates the decision units over one immutable reference
// snapshot. It holds no mutable per-request state; Run may be called
// concurrently.
type Coordinator struct {
	snapshot   *refdata.Snapshot
	cfg        config.TriageConfig
	classifier *imaging.Classifier
	screener   *therapy.Screener
	ranker     *pharmacy.Ranker
	matcher    *doctor.Matcher
}

func NewCoordinator(snapshot *refdata.Snapshot, cfg config.TriageConfig) *Coordinator {
	return &Coordinator{
		snapshot:   snapshot,
		cfg:        cfg,
		classifier: imaging.NewClassifier(cfg),
		screener:   therapy.NewScreener(snapshot, cfg),
		ranker:     pharmacy.NewRanker(snapshot, cfg),
		matcher:    doctor.NewMatcher(snapshot, cfg),
	}
}

// run is the per-request trace state.
type run struct {
	log EventLog
}

func (r *run) event(unit string, level EventLevel, message string) {
	r.log = append(r.log, EventLogEntry{
		Timestamp: time.Now().UTC(),
		Unit:      unit,
		Level:     level,
		Message:   message,
	})
}

// Run executes the full pipeline for one validated patient bundle. Every
// recovered failure leaves a warning event; nothing here aborts the run.
func (c *Coordinator) Run(bundle intake.PatientBundle, features intake.ImageFeatures) Outcome {
	r := &run{}
	r.event(unitCoordinator, LevelInfo, "pipeline started")

	bundle = c.resolveLocation(r, bundle)

	result := c.classify(r, bundle, features)

	if outcome, critical := c.checkEmergency(r, bundle, result); critical {
		return outcome
	}

	plan := c.screen(r, result, bundle)

	if c.shouldEscalate(result, plan) {
		return c.escalate(r, plan, result, bundle)
	}

	return c.succeed(r, result, plan, bundle)
}

// resolveLocation fills the bundle's coordinates from its pincode. An
// unknown pincode degrades to the configured metro center with a warning.
func (c *Coordinator) resolveLocation(r *run, bundle intake.PatientBundle) intake.PatientBundle {
	if !bundle.Location.IsZero() {
		return bundle
	}

	point, err := c.snapshot.Coordinates(bundle.Pincode)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperrors.ErrReferenceGap) {
			metrics.RecordReferenceGap(appErr.Details["table"])
		}
		r.event(unitCoordinator, LevelWarning,
			fmt.Sprintf("pincode %s has no coordinates; using default location", bundle.Pincode))
		bundle.Location = types.GeoPoint{Lat: c.cfg.DefaultLat, Lon: c.cfg.DefaultLon}
		bundle.UsedDefaultLocation = true
		return bundle
	}
	bundle.Location = point
	return bundle
}

func (c *Coordinator) classify(r *run, bundle intake.PatientBundle, features intake.ImageFeatures) imaging.Result {
	r.event(unitImaging, LevelInfo, "classification started")
	start := time.Now()
	result := c.classifier.Classify(bundle, features)
	metrics.RecordUnitDuration(unitImaging, time.Since(start))

	for _, warning := range result.Warnings {
		r.event(unitImaging, LevelWarning, warning)
	}
	r.event(unitImaging, LevelInfo, fmt.Sprintf(
		"classified %s (severity %s, confidence %.2f, %d red flags)",
		result.TopCondition(), result.Severity, result.Confidence, len(result.RedFlags)))
	return result
}

// checkEmergency exits the pipeline when a critical red flag fired or the
// oximeter reading is below the emergency threshold.
func (c *Coordinator) checkEmergency(r *run, bundle intake.PatientBundle, result imaging.Result) (Outcome, bool) {
	lowSpO2 := bundle.SpO2 < c.cfg.EmergencySpO2
	if !lowSpO2 && !result.HasCriticalFlag() {
		return nil, false
	}

	reason := "critical red flag detected"
	if lowSpO2 {
		reason = fmt.Sprintf("SpO2 %d%% below emergency threshold %d%%", bundle.SpO2, c.cfg.EmergencySpO2)
	}
	r.event(unitCoordinator, LevelError, "emergency exit: "+reason)

	metrics.RecordEmergency()
	metrics.RecordPipeline("emergency")
	return Emergency{
		Severity:       "CRITICAL",
		Message:        "Emergency indicators detected; this case cannot be handled with self-service care.",
		ActionRequired: "Call local emergency services (911 / 108) or go to the nearest emergency department now.",
		RedFlags:       result.RedFlags,
		EventLog:       r.log,
		DisclaimerSet:  Disclaimers(),
	}, true
}

func (c *Coordinator) screen(r *run, result imaging.Result, bundle intake.PatientBundle) therapy.Plan {
	r.event(unitTherapy, LevelInfo, "screening started")
	start := time.Now()
	plan := c.screener.Screen(result, bundle)
	metrics.RecordUnitDuration(unitTherapy, time.Since(start))

	for _, warning := range plan.Warnings {
		r.event(unitTherapy, LevelWarning, warning)
	}
	r.event(unitTherapy, LevelInfo, fmt.Sprintf(
		"screening finished: %d candidates, escalate=%t, prescription=%t",
		len(plan.Options), plan.EscalateToDoctor, plan.RequiresPrescription))
	return plan
}

func (c *Coordinator) shouldEscalate(result imaging.Result, plan therapy.Plan) bool {
	return result.Severity == imaging.SeveritySevere ||
		plan.EscalateToDoctor ||
		plan.RequiresPrescription ||
		result.Confidence < c.cfg.EscalationConfidence
}

func (c *Coordinator) escalate(r *run, plan therapy.Plan, result imaging.Result, bundle intake.PatientBundle) Outcome {
	r.event(unitDoctor, LevelInfo, "doctor matching started")
	start := time.Now()
	match := c.matcher.Match(plan, result, bundle.Location)
	metrics.RecordUnitDuration(unitDoctor, time.Since(start))

	for _, warning := range match.Warnings {
		r.event(unitDoctor, LevelWarning, warning)
	}
	r.event(unitDoctor, LevelInfo, fmt.Sprintf(
		"matched %d doctors (%s urgency)", len(match.Doctors), match.Urgency))

	metrics.RecordEscalation(string(match.Urgency))
	metrics.RecordPipeline("escalated")
	return Escalated{
		Message:       escalationMessage(plan, result),
		DoctorMatches: match,
		Urgency:       match.Urgency,
		EventLog:      r.log,
		DisclaimerSet: Disclaimers(),
	}
}

func escalationMessage(plan therapy.Plan, result imaging.Result) string {
	switch {
	case plan.RequiresPrescription:
		return fmt.Sprintf("Suspected %s requires prescription medication; please consult a doctor.", plan.PrimaryCondition)
	case result.Severity == imaging.SeveritySevere:
		return "Severe presentation; a doctor consultation is required before any treatment."
	case len(result.RedFlags) > 0:
		return "Warning signs were detected; a doctor should review this case."
	default:
		return "Classification confidence is low; a doctor should review this case."
	}
}

func (c *Coordinator) succeed(r *run, result imaging.Result, plan therapy.Plan, bundle intake.PatientBundle) Outcome {
	r.event(unitPharmacy, LevelInfo, "pharmacy ranking started")
	start := time.Now()
	match := c.ranker.Rank(plan, bundle.Location)
	metrics.RecordUnitDuration(unitPharmacy, time.Since(start))

	for _, warning := range match.Warnings {
		r.event(unitPharmacy, LevelWarning, warning)
	}
	r.event(unitPharmacy, LevelInfo, fmt.Sprintf(
		"ranked %d pharmacies (availability %s)", len(match.Pharmacies), match.Availability))

	r.event(unitCoordinator, LevelInfo, "pipeline finished")
	metrics.RecordPipeline("success")
	return Success{
		Assessment:    result,
		Treatment:     plan,
		Pharmacy:      match,
		EventLog:      r.log,
		DisclaimerSet: Disclaimers(),
	}
}
