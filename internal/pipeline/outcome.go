package pipeline

import (
	"time"

	"github.com/medassist/triage/internal/doctor"
	"github.com/medassist/triage/internal/imaging"
	"github.com/medassist/triage/internal/pharmacy"
	"github.com/medassist/triage/internal/therapy"
)

// EventLevel grades an event log entry.
type EventLevel string

const (
	LevelInfo    EventLevel = "INFO"
	LevelWarning EventLevel = "WARNING"
	LevelError   EventLevel = "ERROR"
)

// EventLogEntry is one trace line in a pipeline run. Every unit start,
// finish and recovered failure leaves an entry; the full log is attached
// to the final outcome regardless of branch.
type EventLogEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Unit      string     `json:"unit"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
}

// EventLog is the ordered trace of a pipeline run.
type EventLog []EventLogEntry

// HasWarnings reports whether any entry is a warning or error.
func (l EventLog) HasWarnings() bool {
	for _, entry := range l {
		if entry.Level == LevelWarning || entry.Level == LevelError {
			return true
		}
	}
	return false
}

// Disclaimers attached to every outcome variant.
func Disclaimers() []string {
	return []string{
		"This is not a medical diagnosis",
		"Always consult a healthcare professional",
		"This system exists for educational purposes only",
	}
}

// Outcome is the closed result type of a pipeline run: Emergency,
// Escalated or Success. The marker method keeps the set closed so callers
// must handle every variant.
type Outcome interface {
	outcome()
	// Kind is the stable label used in logs and metrics.
	Kind() string
	// Log returns the run's full event trace.
	Log() EventLog
}

// Emergency is the terminal outcome for critical presentations. No therapy,
// pharmacy or doctor matching is attempted.
type Emergency struct {
	Severity       string            `json:"severity"`
	Message        string            `json:"message"`
	ActionRequired string            `json:"action_required"`
	RedFlags       []imaging.RedFlag `json:"red_flags"`
	EventLog       EventLog          `json:"event_log"`
	DisclaimerSet  []string          `json:"disclaimers"`
}

func (Emergency) outcome()        {}
func (Emergency) Kind() string    { return "emergency" }
func (e Emergency) Log() EventLog { return e.EventLog }

// Escalated is the terminal outcome when the case needs a clinician. It
// never carries pharmacy results.
type Escalated struct {
	Message       string         `json:"message"`
	DoctorMatches doctor.Match   `json:"doctor_matches"`
	Urgency       doctor.Urgency `json:"urgency_level"`
	EventLog      EventLog       `json:"event_log"`
	DisclaimerSet []string       `json:"disclaimers"`
}

func (Escalated) outcome()        {}
func (Escalated) Kind() string    { return "escalated" }
func (e Escalated) Log() EventLog { return e.EventLog }

// Success is the terminal outcome for self-serviceable cases: an
// assessment, a vetted OTC plan and a ranked pharmacy list.
type Success struct {
	Assessment    imaging.Result `json:"assessment"`
	Treatment     therapy.Plan   `json:"treatment"`
	Pharmacy      pharmacy.Match `json:"pharmacy"`
	EventLog      EventLog       `json:"event_log"`
	DisclaimerSet []string       `json:"disclaimers"`
}

func (Success) outcome()        {}
func (Success) Kind() string    { return "success" }
func (s Success) Log() EventLog { return s.EventLog }
