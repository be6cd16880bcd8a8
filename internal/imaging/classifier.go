package imaging

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/medassist/triage/internal/intake"
	"github.com/medassist/triage/internal/shared/config"
)

// Condition is one of the fixed chest conditions the classifier scores.
type Condition string

const (
	ConditionNormal       Condition = "normal"
	ConditionPneumonia    Condition = "pneumonia"
	ConditionCovidSuspect Condition = "covid_suspect"
	ConditionBronchitis   Condition = "bronchitis"
	ConditionTBSuspect    Condition = "tb_suspect"
)

// Conditions is the fixed scoring order.
var Conditions = []Condition{
	ConditionNormal,
	ConditionPneumonia,
	ConditionCovidSuspect,
	ConditionBronchitis,
	ConditionTBSuspect,
}

// Severity bands the presentation for downstream urgency decisions.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// FlagLevel grades a red flag.
type FlagLevel string

const (
	FlagCritical FlagLevel = "critical"
	FlagWarning  FlagLevel = "warning"
)

// RedFlag is a typed safety signal. Downstream units branch on Level, never
// on message text.
type RedFlag struct {
	Level   FlagLevel `json:"level"`
	Message string    `json:"message"`
}

// Result is the classifier output consumed by the rest of the pipeline.
type Result struct {
	Probabilities   map[Condition]float64 `json:"condition_probs"`
	Severity        Severity              `json:"severity_hint"`
	Confidence      float64               `json:"confidence"`
	RedFlags        []RedFlag             `json:"red_flags"`
	Recommendations []string              `json:"recommendations"`

	// Warnings carries non-fatal computation notes, e.g. a probability
	// renormalization. The coordinator logs them as warning events.
	Warnings []string `json:"-"`
}

// TopCondition returns the highest-probability condition. Ties break by
// the fixed scoring order.
func (r Result) TopCondition() Condition {
	top := Conditions[0]
	best := math.Inf(-1)
	for _, c := range Conditions {
		if p := r.Probabilities[c]; p > best {
			top, best = c, p
		}
	}
	return top
}

// HasCriticalFlag reports whether any red flag is critical.
func (r Result) HasCriticalFlag() bool {
	for _, f := range r.RedFlags {
		if f.Level == FlagCritical {
			return true
		}
	}
	return false
}

// moderateSpO2 is the band below which severity is at least moderate.
const moderateSpO2 = 94

// probTolerance is the allowed drift of the probability sum from 1.0
// before a renormalization is forced.
const probTolerance = 1e-6

// Classifier scores chest X-ray feature summaries against the fixed
// condition set. It is deterministic: the same features, vitals and
// symptoms always produce the same result.
type Classifier struct {
	cfg config.TriageConfig
}

func NewClassifier(cfg config.TriageConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify produces condition probabilities, a severity hint, a confidence
// score and red flags for one patient.
func (c *Classifier) Classify(bundle intake.PatientBundle, features intake.ImageFeatures) Result {
	weights := baseWeights(features)
	c.adjustForFeatures(weights, features)
	c.adjustForSymptoms(weights, bundle.Symptoms)
	c.adjustForVitals(weights, bundle.SpO2)
	c.adjustForAge(weights, bundle.Age)

	probs, warnings := normalize(weights)

	severity := c.scoreSeverity(probs, bundle)
	confidence := scoreConfidence(probs)
	flags := c.detectRedFlags(bundle, severity)

	return Result{
		Probabilities:   probs,
		Severity:        severity,
		Confidence:      confidence,
		RedFlags:        flags,
		Recommendations: recommendations(severity, flags),
		Warnings:        warnings,
	}
}

// baseWeights derives a deterministic per-condition weight in [0.5, 1.5]
// from a hash of the image statistics, so distinct images spread across
// conditions while repeat requests stay stable.
func baseWeights(features intake.ImageFeatures) map[Condition]float64 {
	weights := make(map[Condition]float64, len(Conditions))
	for _, condition := range Conditions {
		h := fnv.New64a()
		for _, v := range []float64{features.Mean, features.Std, features.Contrast, features.DarkRatio, features.BrightRatio} {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
		h.Write([]byte(condition))
		weights[condition] = 0.5 + float64(h.Sum64()%10000)/10000.0
	}
	return weights
}

func (c *Classifier) adjustForFeatures(weights map[Condition]float64, features intake.ImageFeatures) {
	switch {
	case features.DarkRatio > 0.55:
		weights[ConditionPneumonia] += 0.9
		weights[ConditionCovidSuspect] += 0.6
		weights[ConditionNormal] -= 0.7
	case features.DarkRatio > 0.4:
		weights[ConditionBronchitis] += 0.4
		weights[ConditionPneumonia] += 0.25
	}

	if features.Contrast < 120 {
		weights[ConditionPneumonia] += 0.5
	} else if features.Contrast > 220 {
		weights[ConditionNormal] += 0.4
	}

	if features.Mean < 100 {
		weights[ConditionPneumonia] += 0.3
		weights[ConditionTBSuspect] += 0.2
	}
}

func (c *Classifier) adjustForSymptoms(weights map[Condition]float64, symptoms string) {
	if strings.Contains(symptoms, "dry cough") {
		weights[ConditionCovidSuspect] += 0.4
	}
	if strings.Contains(symptoms, "productive") || strings.Contains(symptoms, "phlegm") {
		weights[ConditionBronchitis] += 0.4
	}
	if strings.Contains(symptoms, "fever") {
		weights[ConditionPneumonia] += 0.3
		weights[ConditionCovidSuspect] += 0.2
	}
	if strings.Contains(symptoms, "shortness of breath") || strings.Contains(symptoms, "breathless") {
		weights[ConditionPneumonia] += 0.5
	}
}

func (c *Classifier) adjustForVitals(weights map[Condition]float64, spo2 int) {
	switch {
	case spo2 < c.cfg.EmergencySpO2:
		weights[ConditionPneumonia] += 0.8
	case spo2 < moderateSpO2:
		weights[ConditionPneumonia] += 0.4
	default:
		weights[ConditionNormal] += 0.3
	}
}

func (c *Classifier) adjustForAge(weights map[Condition]float64, age int) {
	if age > 65 {
		weights[ConditionPneumonia] += 0.2
	} else if age < 5 {
		weights[ConditionBronchitis] += 0.3
	}
}

// normalize clips weights to a positive floor, scales them into a
// probability vector rounded to 3 decimals, and folds rounding remainder
// into the top condition so the vector sums to exactly 1.0.
func normalize(weights map[Condition]float64) (map[Condition]float64, []string) {
	const minClip = 0.01

	total := 0.0
	clipped := make(map[Condition]float64, len(weights))
	for _, condition := range Conditions {
		w := math.Max(minClip, weights[condition])
		clipped[condition] = w
		total += w
	}

	probs := make(map[Condition]float64, len(clipped))
	sum := 0.0
	for _, condition := range Conditions {
		p := math.Round(clipped[condition]/total*1000) / 1000
		probs[condition] = p
		sum += p
	}

	top := Conditions[0]
	for _, condition := range Conditions {
		if probs[condition] > probs[top] {
			top = condition
		}
	}
	probs[top] = math.Round((probs[top]+1.0-sum)*1000) / 1000

	var warnings []string
	sum = 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1.0) > probTolerance {
		for condition, p := range probs {
			probs[condition] = p / sum
		}
		warnings = append(warnings, fmt.Sprintf("probability vector summed to %.6f; renormalized", sum))
	}
	return probs, warnings
}

func (c *Classifier) scoreSeverity(probs map[Condition]float64, bundle intake.PatientBundle) Severity {
	infection := probs[ConditionPneumonia] + probs[ConditionCovidSuspect]

	if bundle.SpO2 < c.cfg.EmergencySpO2 || infection > 0.75 {
		return SeveritySevere
	}
	if bundle.SpO2 < moderateSpO2 || infection > 0.55 {
		return SeverityModerate
	}
	for _, token := range []string{"worsening", "severe", "acute"} {
		if strings.Contains(bundle.Symptoms, token) {
			return SeverityModerate
		}
	}
	return SeverityMild
}

// scoreConfidence maps the margin between the top two probabilities into
// [0.40, 0.95], rounded to 2 decimals.
func scoreConfidence(probs map[Condition]float64) float64 {
	ordered := make([]float64, 0, len(probs))
	for _, p := range probs {
		ordered = append(ordered, p)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ordered)))

	margin := ordered[0] - ordered[1]
	confidence := 0.4 + math.Min(0.5, margin)
	confidence = math.Min(0.95, math.Max(0.4, confidence))
	return math.Round(confidence*100) / 100
}

func (c *Classifier) detectRedFlags(bundle intake.PatientBundle, severity Severity) []RedFlag {
	var flags []RedFlag

	if bundle.SpO2 < c.cfg.CriticalSpO2 {
		flags = append(flags, RedFlag{
			Level:   FlagCritical,
			Message: fmt.Sprintf("SpO2 below %d%%: call emergency services immediately", c.cfg.CriticalSpO2),
		})
	} else if bundle.SpO2 < c.cfg.WarningSpO2 {
		flags = append(flags, RedFlag{
			Level:   FlagWarning,
			Message: "oxygen saturation is low; urgent doctor review advised",
		})
	}

	for _, keyword := range c.cfg.RedFlagKeywords {
		if strings.Contains(bundle.Symptoms, strings.ToLower(keyword)) {
			flags = append(flags, RedFlag{
				Level:   FlagWarning,
				Message: fmt.Sprintf("reported symptom %q requires prompt medical attention", keyword),
			})
		}
	}

	if severity == SeveritySevere {
		flags = append(flags, RedFlag{
			Level:   FlagWarning,
			Message: "severe presentation: direct medical supervision recommended",
		})
	}

	seen := make(map[string]bool, len(flags))
	deduped := flags[:0]
	for _, flag := range flags {
		if !seen[flag.Message] {
			deduped = append(deduped, flag)
			seen[flag.Message] = true
		}
	}
	return deduped
}

func recommendations(severity Severity, flags []RedFlag) []string {
	for _, flag := range flags {
		if flag.Level == FlagCritical {
			return []string{
				"Seek emergency medical care immediately",
				"Call local emergency services (911 / 108)",
				"Do not drive yourself; arrange safe transport",
			}
		}
	}

	guidance := []string{"This system is a demo; always consult a qualified clinician."}
	switch severity {
	case SeveritySevere:
		guidance = append([]string{"Urgent in-person evaluation recommended within a few hours."}, guidance...)
	case SeverityModerate:
		guidance = append([]string{"Arrange a doctor or tele-consultation within 24-48 hours."}, guidance...)
	default:
		guidance = append([]string{"Monitor symptoms closely and use OTC care if previously recommended."}, guidance...)
	}

	if len(flags) == 0 {
		guidance = append(guidance, "If new red-flag symptoms appear, escalate immediately.")
	}
	return guidance
}
