package models

import "time"

// Severity classifies how far past its SLA a step is. Informational only, it
// never changes engine behavior.
type Severity string

const (
	LowSeverity      Severity = "LOW"
	MediumSeverity   Severity = "MEDIUM"
	HighSeverity     Severity = "HIGH"
	CriticalSeverity Severity = "CRITICAL"
)

// EscalationRecord is an append-only audit entry written every time a step's
// SLA breach is acted upon.
type EscalationRecord struct {
	ID        int64     `json:"id" db:"id"`
	RequestID string    `json:"request_id" db:"request_id"`
	StepID    int64     `json:"step_id" db:"step_id"`
	Level     int       `json:"level" db:"level"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
