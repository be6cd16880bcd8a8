package therapy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medassist/triage/internal/imaging"
	"github.com/medassist/triage/internal/intake"
	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
)

// conditionIndications maps a classified condition to the OTC indication
// keywords searched in the medicine table. "normal" maps to nothing: healthy
// patients get no medicines.
var conditionIndications = map[imaging.Condition][]string{
	imaging.ConditionNormal:       nil,
	imaging.ConditionPneumonia:    {"cough", "fever", "pain", "chest congestion"},
	imaging.ConditionCovidSuspect: {"fever", "cough", "pain"},
	imaging.ConditionBronchitis:   {"cough", "chest congestion", "expectorant"},
	imaging.ConditionTBSuspect:    {"cough", "fever"},
}

// OTCOption is one vetted over-the-counter candidate.
type OTCOption struct {
	SKU        string   `json:"sku"`
	DrugName   string   `json:"drug_name"`
	Dose       string   `json:"dose"`
	Frequency  string   `json:"frequency"`
	MaxDaily   string   `json:"max_daily"`
	Duration   string   `json:"duration"`
	Warnings   []string `json:"warnings"`
	PriceRange string   `json:"price_range"`

	// Relevance is the count of condition indications this option covers;
	// it drives the output ordering.
	Relevance int `json:"relevance"`

	priceMin float64
}

// InteractionWarning reports a flagged drug pair.
type InteractionWarning struct {
	DrugA          string                   `json:"drug_a"`
	DrugB          string                   `json:"drug_b"`
	Level          refdata.InteractionLevel `json:"level"`
	Note           string                   `json:"note"`
	Recommendation string                   `json:"recommendation"`
}

// AllergyConflict reports a candidate dropped for an allergy match.
type AllergyConflict struct {
	Drug    string `json:"drug"`
	Allergy string `json:"allergy"`
}

// AgeRestriction reports a candidate dropped for minimum age.
type AgeRestriction struct {
	Drug        string `json:"drug"`
	RequiredAge int    `json:"required_age"`
}

// Plan is the screener output: either a vetted OTC list or an escalation
// signal, never both empty-handed without a reason in the warnings.
type Plan struct {
	Options              []OTCOption          `json:"otc_options"`
	InteractionWarnings  []InteractionWarning `json:"interaction_warnings"`
	AllergyConflicts     []AllergyConflict    `json:"allergy_conflicts"`
	AgeRestrictions      []AgeRestriction     `json:"age_restrictions"`
	SafetyAdvice         []string             `json:"safety_advice"`
	RequiresPrescription bool                 `json:"requires_prescription"`
	EscalateToDoctor     bool                 `json:"escalate_to_doctor"`
	PrimaryCondition     imaging.Condition    `json:"primary_condition"`
	Severity             imaging.Severity     `json:"severity"`

	// Warnings carries non-fatal screening notes for the event log.
	Warnings []string `json:"-"`
}

// SKUs returns the candidate SKUs in plan order.
func (p Plan) SKUs() []string {
	skus := make([]string, len(p.Options))
	for i, opt := range p.Options {
		skus[i] = opt.SKU
	}
	return skus
}

// Screener vets OTC candidates for a classified condition against the
// patient's age, allergy set and current medications.
type Screener struct {
	snapshot *refdata.Snapshot
	cfg      config.TriageConfig
}

func NewScreener(snapshot *refdata.Snapshot, cfg config.TriageConfig) *Screener {
	return &Screener{snapshot: snapshot, cfg: cfg}
}

// Screen builds a therapy plan from the imaging result and patient bundle.
func (s *Screener) Screen(result imaging.Result, bundle intake.PatientBundle) Plan {
	primary := result.TopCondition()
	plan := Plan{
		PrimaryCondition: primary,
		Severity:         result.Severity,
	}

	if s.requiresPrescription(primary, result) {
		plan.RequiresPrescription = true
		plan.EscalateToDoctor = true
		plan.SafetyAdvice = prescriptionAdvice(primary, result.Severity)
		return plan
	}

	indications := conditionIndications[primary]
	candidates := s.collectCandidates(&plan, indications, bundle)
	s.checkCurrentMedications(&plan, candidates, bundle.CurrentMedications)
	candidates = s.pruneSevereInteractions(&plan, candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Relevance != candidates[j].Relevance {
			return candidates[i].Relevance > candidates[j].Relevance
		}
		if candidates[i].priceMin != candidates[j].priceMin {
			return candidates[i].priceMin < candidates[j].priceMin
		}
		return candidates[i].SKU < candidates[j].SKU
	})
	if len(candidates) > s.cfg.MaxOTCOptions {
		candidates = candidates[:s.cfg.MaxOTCOptions]
	}
	plan.Options = candidates

	if len(plan.Options) == 0 && primary != imaging.ConditionNormal {
		plan.RequiresPrescription = true
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("no OTC candidate survived screening for %s; prescription required", primary))
	}

	if result.Severity == imaging.SeveritySevere || len(result.RedFlags) > 0 {
		plan.EscalateToDoctor = true
	}

	plan.SafetyAdvice = safetyAdvice(primary, result.Severity)
	return plan
}

// requiresPrescription short-circuits screening for presentations that OTC
// care cannot cover.
func (s *Screener) requiresPrescription(condition imaging.Condition, result imaging.Result) bool {
	if result.HasCriticalFlag() {
		return true
	}
	if result.Severity == imaging.SeveritySevere {
		return true
	}
	// Suspected TB always needs a clinician regardless of severity.
	return condition == imaging.ConditionTBSuspect
}

// collectCandidates runs the age and allergy filters over the indication
// matches, recording every drop.
func (s *Screener) collectCandidates(plan *Plan, indications []string, bundle intake.PatientBundle) []OTCOption {
	var candidates []OTCOption
	for _, med := range s.snapshot.MedicinesForIndications(indications) {
		if bundle.Age < med.AgeMin {
			plan.AgeRestrictions = append(plan.AgeRestrictions, AgeRestriction{
				Drug:        med.DrugName,
				RequiredAge: med.AgeMin,
			})
			continue
		}

		if allergy, conflicted := allergyConflict(med, bundle.Allergies); conflicted {
			plan.AllergyConflicts = append(plan.AllergyConflicts, AllergyConflict{
				Drug:    med.DrugName,
				Allergy: allergy,
			})
			continue
		}

		candidates = append(candidates, OTCOption{
			SKU:        med.SKU,
			DrugName:   med.DrugName,
			Dose:       med.Dose,
			Frequency:  med.Frequency,
			MaxDaily:   med.MaxDaily,
			Duration:   med.Duration,
			Warnings:   med.Warnings,
			PriceRange: fmt.Sprintf("INR %.0f-%.0f", med.PriceMin, med.PriceMax),
			Relevance:  med.IndicationMatchCount(indications),
			priceMin:   med.PriceMin,
		})
	}
	return candidates
}

// allergyConflict matches the patient's allergy keywords against the drug
// name and its contraindication keywords.
func allergyConflict(med refdata.Medicine, allergies []string) (string, bool) {
	drugName := strings.ToLower(med.DrugName)
	for _, allergy := range allergies {
		if strings.Contains(drugName, allergy) {
			return allergy, true
		}
		for _, keyword := range med.ContraAllergyKeywords {
			if strings.ToLower(strings.TrimSpace(keyword)) == allergy {
				return allergy, true
			}
		}
	}
	return "", false
}

// checkCurrentMedications warns on interactions between candidates and the
// patient's existing medications; high or severe levels trigger escalation.
func (s *Screener) checkCurrentMedications(plan *Plan, candidates []OTCOption, currentMeds []string) {
	for _, candidate := range candidates {
		for _, current := range currentMeds {
			ix, ok := s.snapshot.InteractionBetween(candidate.DrugName, current)
			if !ok || ix.Level == refdata.InteractionNone {
				continue
			}
			plan.InteractionWarnings = append(plan.InteractionWarnings, InteractionWarning{
				DrugA:          candidate.DrugName,
				DrugB:          current,
				Level:          ix.Level,
				Note:           ix.Note,
				Recommendation: interactionRecommendation(ix.Level),
			})
			if ix.Level == refdata.InteractionHigh || ix.Level == refdata.InteractionSevere {
				plan.EscalateToDoctor = true
			}
		}
	}
}

// pruneSevereInteractions removes the lower-priority member of any candidate
// pair flagged severe, so no two surviving candidates conflict. Priority is
// relevance first, then cheaper price, then earlier SKU.
func (s *Screener) pruneSevereInteractions(plan *Plan, candidates []OTCOption) []OTCOption {
	dropped := make(map[string]bool)
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if dropped[a.SKU] || dropped[b.SKU] {
				continue
			}
			ix, ok := s.snapshot.InteractionBetween(a.DrugName, b.DrugName)
			if !ok || ix.Level != refdata.InteractionSevere {
				continue
			}
			loser := b
			if higherPriority(b, a) {
				loser = a
			}
			dropped[loser.SKU] = true
			plan.InteractionWarnings = append(plan.InteractionWarnings, InteractionWarning{
				DrugA:          a.DrugName,
				DrugB:          b.DrugName,
				Level:          ix.Level,
				Note:           ix.Note,
				Recommendation: fmt.Sprintf("removed %s from the plan; do not combine", loser.DrugName),
			})
		}
	}

	if len(dropped) == 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, candidate := range candidates {
		if !dropped[candidate.SKU] {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func higherPriority(a, b OTCOption) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance > b.Relevance
	}
	if a.priceMin != b.priceMin {
		return a.priceMin < b.priceMin
	}
	return a.SKU < b.SKU
}

func interactionRecommendation(level refdata.InteractionLevel) string {
	switch level {
	case refdata.InteractionMild:
		return "monitor for side effects; generally safe to use together"
	case refdata.InteractionModerate:
		return "consult a pharmacist before combining; may need dose adjustment"
	case refdata.InteractionHigh:
		return "consult a doctor before use; avoid the combination if possible"
	case refdata.InteractionSevere:
		return "do not combine; seek a doctor's advice immediately"
	default:
		return "consult a healthcare professional"
	}
}

func safetyAdvice(condition imaging.Condition, severity imaging.Severity) []string {
	advice := []string{
		"These are OTC recommendations only, not a prescription",
		"Follow dosage instructions carefully",
		"Do not exceed the recommended duration without doctor consultation",
	}

	switch condition {
	case imaging.ConditionPneumonia, imaging.ConditionCovidSuspect:
		advice = append(advice,
			"Rest and isolate to prevent spread",
			"Stay well hydrated (8-10 glasses of water per day)",
			"Monitor temperature regularly",
			"Check oxygen saturation if a meter is available",
		)
	case imaging.ConditionBronchitis:
		advice = append(advice,
			"Steam inhalation may help relieve congestion",
			"Avoid smoking and secondhand smoke",
		)
	}

	if severity == imaging.SeverityModerate {
		advice = append(advice,
			"If symptoms worsen or persist beyond 3 days, consult a doctor",
		)
	}

	advice = append(advice,
		"Seek immediate help for high fever, difficulty breathing, chest pain or confusion",
	)
	return advice
}

func prescriptionAdvice(condition imaging.Condition, severity imaging.Severity) []string {
	return []string{
		fmt.Sprintf("%s with %s severity requires professional medical evaluation", condition, severity),
		"OTC medicines are not sufficient for this condition",
		"Please consult a doctor for prescription medication",
		"Consider a tele-consultation or in-person visit",
		"If symptoms worsen, seek emergency care immediately",
	}
}
