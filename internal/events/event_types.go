package events

import (
	"time"

	"github.com/spec-kit/ticket-approval/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketStateChanged     EventType = "ticket_state_changed"
	EventTicketStepStateChanged EventType = "ticket_step_state_changed"
	EventTicketCommentAdded     EventType = "ticket_comment_added"
	EventAssetPermissionGranted EventType = "asset_permission_granted"
	EventConfirmationDecided    EventType = "confirmation_decided"
)

// ActorType tells a person from the platform itself.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID *string   `json:"user_id,omitempty"`
}

// UserActor is an actor for userID, or the system when userID is empty.
func UserActor(userID string) Actor {
	if userID == "" {
		return Actor{Type: ActorSystem}
	}
	return Actor{Type: ActorUser, UserID: &userID}
}

// Event represents a domain event emitted after a committed change.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketStateChangedPayload payload.
type TicketStateChangedPayload struct {
	SerialNum    string              `json:"serial_num"`
	Title        string              `json:"title"`
	TicketType   domain.TicketType   `json:"ticket_type"`
	State        domain.TicketState  `json:"state"`
	Status       domain.TicketStatus `json:"status"`
	ApprovalStep int                 `json:"approval_step"`
	ApplicantID  string              `json:"applicant_id"`
}

// TicketStepStateChangedPayload payload.
type TicketStepStateChangedPayload struct {
	Level       int              `json:"level"`
	State       domain.StepState `json:"state"`
	ProcessorID string           `json:"processor_id"`
	Assignees   []string         `json:"assignees"`
	ApplicantID string           `json:"applicant_id"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	BodyPreview string `json:"body_preview"`
}

// AssetPermissionGrantedPayload carries what an approved asset
// application grants to the applicant.
type AssetPermissionGrantedPayload struct {
	ApplicantID string    `json:"applicant_id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Nodes       []string  `json:"nodes,omitempty"`
	Assets      []string  `json:"assets,omitempty"`
	Accounts    []string  `json:"accounts"`
	Actions     []string  `json:"actions"`
	DateStart   time.Time `json:"date_start"`
	DateExpired time.Time `json:"date_expired"`
}

// ConfirmationDecidedPayload releases a login or command waiting on
// the ticket.
type ConfirmationDecidedPayload struct {
	TicketType domain.TicketType  `json:"ticket_type"`
	State      domain.TicketState `json:"state"`
	Allowed    bool               `json:"allowed"`
}
