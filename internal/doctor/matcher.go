package doctor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/medassist/triage/internal/imaging"
	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/config"
	"github.com/medassist/triage/internal/shared/types"
	"github.com/medassist/triage/internal/therapy"
)

// conditionSpecialties maps a classified condition to suitable specialties
// in preference order. The first entry is the primary specialty.
var conditionSpecialties = map[imaging.Condition][]string{
	imaging.ConditionPneumonia:    {"Pulmonologist", "Infectious Disease Specialist", "General Physician"},
	imaging.ConditionCovidSuspect: {"Infectious Disease Specialist", "Pulmonologist", "General Physician"},
	imaging.ConditionBronchitis:   {"Pulmonologist", "General Physician"},
	imaging.ConditionTBSuspect:    {"Pulmonologist", "Infectious Disease Specialist"},
	imaging.ConditionNormal:       {"General Physician"},
}

const fallbackSpecialty = "General Physician"

// Urgency bands an escalated case.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// RankedDoctor is one doctor scored for the case.
type RankedDoctor struct {
	ID              string   `json:"doctor_id"`
	Name            string   `json:"name"`
	Specialty       string   `json:"specialty"`
	ExperienceYears int      `json:"experience_years"`
	ConsultationFee int      `json:"consultation_fee"`
	TeleAvailable   bool     `json:"tele_available"`
	DistanceKm      float64  `json:"distance_km"`
	AvailableSlots  []string `json:"available_slots"`
	// MatchScore is the weighted suitability score in [0,1].
	MatchScore float64 `json:"match_score"`
	Reason     string  `json:"recommendation_reason"`
}

// Match is the matcher output for an escalated case.
type Match struct {
	Doctors           Doctors `json:"available_doctors"`
	TotalMatches      int     `json:"total_matches"`
	Urgency           Urgency `json:"urgency_level"`
	RecommendedAction string  `json:"recommended_action"`
	ConsultationType  string  `json:"consultation_type"`
	EstimatedWait     string  `json:"estimated_wait_time"`

	// Warnings carries degradation notes for the event log.
	Warnings []string `json:"-"`
}

// Doctors is a ranked doctor list.
type Doctors []RankedDoctor

// Matcher ranks doctors for escalated cases by specialty fit, experience,
// availability and proximity.
type Matcher struct {
	snapshot *refdata.Snapshot
	cfg      config.TriageConfig
}

func NewMatcher(snapshot *refdata.Snapshot, cfg config.TriageConfig) *Matcher {
	return &Matcher{snapshot: snapshot, cfg: cfg}
}

// Match scores tele-capable doctors whose specialty fits the classified
// condition. When no specialist is available it falls back to the full
// general-physician roster, tele-capable or not.
func (m *Matcher) Match(plan therapy.Plan, result imaging.Result, location types.GeoPoint) Match {
	specialties := conditionSpecialties[plan.PrimaryCondition]
	if len(specialties) == 0 {
		specialties = []string{fallbackSpecialty}
	}

	urgency := m.determineUrgency(result)

	var warnings []string
	candidates := teleCapable(m.snapshot.DoctorsBySpecialties(specialties))
	if len(candidates) == 0 {
		warnings = append(warnings,
			fmt.Sprintf("no tele-capable specialist for %s; falling back to general physicians", plan.PrimaryCondition))
		candidates = m.snapshot.DoctorsBySpecialties([]string{fallbackSpecialty})
	}
	if len(candidates) == 0 {
		warnings = append(warnings, "doctor roster is empty; no matches produced")
		action, consultation, wait := consultationDetails(urgency)
		return Match{
			Urgency:           urgency,
			RecommendedAction: action,
			ConsultationType:  consultation,
			EstimatedWait:     wait,
			Warnings:          warnings,
		}
	}

	ranked := make(Doctors, 0, len(candidates))
	for _, doc := range candidates {
		distance := location.DistanceKm(doc.Location)
		ranked = append(ranked, RankedDoctor{
			ID:              doc.ID,
			Name:            doc.Name,
			Specialty:       doc.Specialty,
			ExperienceYears: doc.ExperienceYears,
			ConsultationFee: doc.ConsultationFee,
			TeleAvailable:   doc.TeleAvailable,
			DistanceKm:      math.Round(distance*100) / 100,
			AvailableSlots:  doc.AvailableSlots,
			MatchScore:      m.score(doc, specialties, distance),
			Reason:          recommendationReason(doc),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].MatchScore != ranked[j].MatchScore {
			return ranked[i].MatchScore > ranked[j].MatchScore
		}
		if ranked[i].ConsultationFee != ranked[j].ConsultationFee {
			return ranked[i].ConsultationFee < ranked[j].ConsultationFee
		}
		return ranked[i].ID < ranked[j].ID
	})

	total := len(ranked)
	if total > m.cfg.MaxDoctors {
		ranked = ranked[:m.cfg.MaxDoctors]
	}

	action, consultation, wait := consultationDetails(urgency)
	return Match{
		Doctors:           ranked,
		TotalMatches:      total,
		Urgency:           urgency,
		RecommendedAction: action,
		ConsultationType:  consultation,
		EstimatedWait:     wait,
		Warnings:          warnings,
	}
}

func (m *Matcher) determineUrgency(result imaging.Result) Urgency {
	if result.HasCriticalFlag() {
		return UrgencyCritical
	}
	if result.Severity == imaging.SeveritySevere || len(result.RedFlags) > 0 {
		return UrgencyHigh
	}
	if result.Severity == imaging.SeverityModerate {
		return UrgencyModerate
	}
	return UrgencyLow
}

// experienceCapYears saturates the experience term; availabilityCapSlots
// saturates the open-slot term.
const (
	experienceCapYears   = 25.0
	availabilityCapSlots = 6.0
)

// score is a weighted sum of normalized terms, each in [0,1].
func (m *Matcher) score(doc refdata.Doctor, specialties []string, distanceKm float64) float64 {
	specialtyTerm := 0.5
	if strings.EqualFold(doc.Specialty, specialties[0]) {
		specialtyTerm = 1.0
	} else {
		for _, sp := range specialties[1:] {
			if strings.EqualFold(doc.Specialty, sp) {
				specialtyTerm = 0.75
				break
			}
		}
	}

	experienceTerm := math.Min(1, float64(doc.ExperienceYears)/experienceCapYears)
	availabilityTerm := math.Min(1, float64(len(doc.AvailableSlots))/availabilityCapSlots)
	distanceTerm := 1 / (1 + math.Max(0, distanceKm))

	score := m.cfg.DoctorSpecialtyWeight*specialtyTerm +
		m.cfg.DoctorExperienceWeight*experienceTerm +
		m.cfg.DoctorAvailabilityWeight*availabilityTerm +
		m.cfg.DoctorDistanceWeight*distanceTerm
	return math.Round(score*1000) / 1000
}

func teleCapable(doctors []refdata.Doctor) []refdata.Doctor {
	var capable []refdata.Doctor
	for _, doc := range doctors {
		if doc.TeleAvailable {
			capable = append(capable, doc)
		}
	}
	return capable
}

func recommendationReason(doc refdata.Doctor) string {
	switch doc.Specialty {
	case "Pulmonologist":
		return "specialist in respiratory conditions"
	case "Infectious Disease Specialist":
		return "specialist in infectious diseases"
	default:
		return fmt.Sprintf("experienced general physician (%d years)", doc.ExperienceYears)
	}
}

func consultationDetails(urgency Urgency) (action, consultationType, wait string) {
	switch urgency {
	case UrgencyCritical:
		return "Seek emergency care now; do not wait for a consultation slot", "emergency_referral", "immediate"
	case UrgencyHigh:
		return "Book a consultation within 24 hours", "tele_consult", "same day"
	case UrgencyModerate:
		return "Book a consultation within 24-48 hours", "tele_consult", "1-2 days"
	default:
		return "Book a routine consultation at your convenience", "tele_consult", "2-5 days"
	}
}
