package model

import "encoding/json"

// Kind classifies one observed host activity.
type Kind string

const (
	KindProcessStart Kind = "process_start"
	KindProcessEnd   Kind = "process_end"
	KindCommandExec  Kind = "command_exec"
	KindFileCreate   Kind = "file_create"
	KindFileModify   Kind = "file_modify"
	KindFileDelete   Kind = "file_delete"
)

func ValidKind(k Kind) bool {
	switch k {
	case KindProcessStart, KindProcessEnd, KindCommandExec,
		KindFileCreate, KindFileModify, KindFileDelete:
		return true
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// SeverityRank orders severities for sorting and rendering. Unknown
// severities rank below info.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// ActorUnknown is recorded when the owning user cannot be resolved.
const ActorUnknown = "unknown"

// Event is the canonical record of one observed activity. Events are
// immutable once created; ID is assigned by the normalizer and is strictly
// increasing for the life of the store.
type Event struct {
	ID      int64             `json:"id"`
	TS      int64             `json:"ts"` // unix nanos
	Kind    Kind              `json:"kind"`
	Actor   string            `json:"actor"`
	Subject string            `json:"subject"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Alert is derived from exactly one Event by a rule that fired. Alert IDs
// form their own sequence, independent from Event IDs.
type Alert struct {
	ID         int64    `json:"id"`
	EventID    int64    `json:"event_id"`
	RuleID     string   `json:"rule_id"`
	Severity   Severity `json:"severity"`
	TS         int64    `json:"ts"` // copied from the triggering Event
	Suppressed bool     `json:"suppressed"`
	Message    string   `json:"message,omitempty"`
}

// MetaJSON renders the metadata map for the index; nil maps become "{}" so
// the column is always valid JSON.
func (e Event) MetaJSON() string {
	if len(e.Meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}
