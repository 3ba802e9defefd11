package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/ticket-approval/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Type    domain.TicketType `json:"type" validate:"required"`
	Title   string            `json:"title" validate:"required,max=256"`
	Comment string            `json:"comment" validate:"max=4096"`
	Meta    json.RawMessage   `json:"meta"`
}

// SystemTicketRequest is raised by the platform with explicit approvers.
type SystemTicketRequest struct {
	Type        domain.TicketType `json:"type" validate:"required"`
	Title       string            `json:"title" validate:"required,max=256"`
	ApplicantID string            `json:"applicant_id" validate:"required,uuid"`
	Assignees   []string          `json:"assignees" validate:"required,min=1,dive,uuid"`
	Meta        json.RawMessage   `json:"meta"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body string `json:"body" validate:"required,max=4096"`
}

// TicketResponse is the list and action view of a ticket.
type TicketResponse struct {
	ID           string              `json:"id"`
	SerialNum    *string             `json:"serial_num"`
	Title        string              `json:"title"`
	Type         domain.TicketType   `json:"type"`
	State        domain.TicketState  `json:"state"`
	Status       domain.TicketStatus `json:"status"`
	ApplicantID  string              `json:"applicant_id"`
	ApprovalStep int                 `json:"approval_step"`
	OrgID        string              `json:"org_id,omitempty"`
	RelSnapshot  domain.RelSnapshot  `json:"rel_snapshot"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ProcessStepResponse is one level of the process map.
type ProcessStepResponse struct {
	Level            int              `json:"level"`
	State            domain.StepState `json:"state"`
	Assignees        []string         `json:"assignees"`
	AssigneesDisplay []string         `json:"assignees_display"`
	ApprovalDate     time.Time        `json:"approval_date"`
	Processor        string           `json:"processor,omitempty"`
	ProcessorDisplay string           `json:"processor_display,omitempty"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Comment          string                `json:"comment"`
	Meta             json.RawMessage       `json:"meta"`
	ProcessMap       []ProcessStepResponse `json:"process_map"`
	CurrentAssignees []string              `json:"current_assignees"`
}

// CommentResponse represents a thread message.
type CommentResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserDisplay string    `json:"user_display"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ChangedBy  *string                 `json:"changed_by"`
	Level      *int                    `json:"level,omitempty"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
