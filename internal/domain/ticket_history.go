package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeOpened    TicketChangeType = "OPENED"
	ChangeTypeState     TicketChangeType = "STATE_CHANGE"
	ChangeTypeStepState TicketChangeType = "STEP_STATE_CHANGE"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangedBy  *string
	ChangeType TicketChangeType
	Level      *int
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
