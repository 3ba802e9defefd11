package domain

import (
	"encoding/json"
	"time"
)

// TicketType tags the kind of request a ticket carries.
type TicketType string

const (
	TicketTypeGeneral        TicketType = "general"
	TicketTypeLoginConfirm   TicketType = "login_confirm"
	TicketTypeApplyAsset     TicketType = "apply_asset"
	TicketTypeCommandConfirm TicketType = "command_confirm"
)

// TicketState is the semantic outcome of a ticket.
type TicketState string

const (
	TicketStatePending  TicketState = "pending"
	TicketStateApproved TicketState = "approved"
	TicketStateRejected TicketState = "rejected"
	TicketStateClosed   TicketState = "closed"
	TicketStateReopen   TicketState = "reopen"
)

// TicketStatus is the coarse lifecycle flag derived from TicketState.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// FirstLevel is the approval level every ticket starts at.
const FirstLevel = 1

// Ticket is the aggregate for approval requests.
type Ticket struct {
	ID           string
	Title        string
	Type         TicketType
	State        TicketState
	Status       TicketStatus
	ApplicantID  string
	FlowID       *string
	ApprovalStep int
	SerialNum    *string
	RelSnapshot  RelSnapshot
	OrgID        string
	Comment      string
	Meta         json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTicket builds an unopened ticket: no steps and no serial number.
func NewTicket(id string, ticketType TicketType, applicantID, orgID, title string) *Ticket {
	return &Ticket{
		ID:           id,
		Title:        title,
		Type:         ticketType,
		State:        TicketStatePending,
		Status:       TicketStatusOpen,
		ApplicantID:  applicantID,
		ApprovalStep: FirstLevel,
		OrgID:        orgID,
		RelSnapshot:  RelSnapshot{},
	}
}

func (t *Ticket) IsState(state TicketState) bool {
	return t.State == state
}

func (t *Ticket) IsStatus(status TicketStatus) bool {
	return t.Status == status
}

// IsOpened reports whether open has run, which is when the serial is set.
func (t *Ticket) IsOpened() bool {
	return t.SerialNum != nil && *t.SerialNum != ""
}

// IsApplicant reports whether userID raised this ticket.
func (t *Ticket) IsApplicant(userID string) bool {
	return t.ApplicantID != "" && t.ApplicantID == userID
}

// StatusFor maps a ticket state to its lifecycle status.
func StatusFor(state TicketState) TicketStatus {
	switch state {
	case TicketStateApproved, TicketStateRejected, TicketStateClosed:
		return TicketStatusClosed
	default:
		return TicketStatusOpen
	}
}

// SetRelSnapshot captures the string form of every relation in rels.
// Single relations render through fmt.Stringer, multi relations as a
// list of strings and absent relations as "". The result is a copy: it
// is not refreshed when the related records change later.
func (t *Ticket) SetRelSnapshot(rels map[string]any) {
	t.RelSnapshot = NewRelSnapshot(rels)
}

// DisplayName is how a ticket is shown in lists and notifications.
func (t *Ticket) DisplayName() string {
	applicant := t.RelSnapshot.String("applicant")
	if applicant == "" {
		applicant = t.ApplicantID
	}
	return t.Title + "(" + applicant + ")"
}
