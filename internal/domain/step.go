package domain

import (
	"sort"
	"time"

	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// StepState is the outcome of one approval level.
type StepState string

const (
	StepStatePending  StepState = "pending"
	StepStateApproved StepState = "approved"
	StepStateRejected StepState = "rejected"
)

// StepStatus tracks where a level is in the chain. At most one step of
// a ticket is active.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusActive  StepStatus = "active"
	StepStatusClosed  StepStatus = "closed"
)

// TicketState returns the ticket outcome a step outcome propagates to.
func (s StepState) TicketState() TicketState {
	return TicketState(s)
}

// Valid reports whether s is a decision an assignee can make.
func (s StepState) Valid() bool {
	return s == StepStateApproved || s == StepStateRejected
}

// TicketStep is one approval level of a ticket.
type TicketStep struct {
	ID        string
	TicketID  string
	Level     int
	State     StepState
	Status    StepStatus
	Assignees []TicketAssignee
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TicketAssignee is one candidate approver of a step.
type TicketAssignee struct {
	ID         string
	StepID     string
	AssigneeID string
	State      StepState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTicketStep builds a pending step with one pending assignee record
// per identity.
func NewTicketStep(id, ticketID string, level int, assigneeIDs []string, newID func() string) *TicketStep {
	step := &TicketStep{
		ID:       id,
		TicketID: ticketID,
		Level:    level,
		State:    StepStatePending,
		Status:   StepStatusPending,
	}
	step.Assignees = make([]TicketAssignee, 0, len(assigneeIDs))
	for _, assigneeID := range assigneeIDs {
		step.Assignees = append(step.Assignees, TicketAssignee{
			ID:         newID(),
			StepID:     id,
			AssigneeID: assigneeID,
			State:      StepStatePending,
		})
	}
	return step
}

// ChangeState records processor's decision and closes the step.
func (s *TicketStep) ChangeState(state StepState, processor string) error {
	idx := s.assigneeIndex(processor)
	if idx < 0 {
		return apperrors.NewNotAnAssignee(s.ID, processor)
	}
	s.Assignees[idx].State = state
	s.Status = StepStatusClosed
	s.State = state
	return nil
}

// SetActive marks the step as the one currently awaiting a decision.
func (s *TicketStep) SetActive() {
	s.Status = StepStatusActive
}

// Reactivate returns a decided step to the active, undecided state.
// Assignee records are kept and reset, never recreated.
func (s *TicketStep) Reactivate() {
	s.State = StepStatePending
	s.Status = StepStatusActive
	for i := range s.Assignees {
		s.Assignees[i].State = StepStatePending
	}
}

// Processor returns the assignee who acted on this step, if any.
func (s *TicketStep) Processor() *TicketAssignee {
	for i := range s.Assignees {
		if s.Assignees[i].State != StepStatePending {
			return &s.Assignees[i]
		}
	}
	return nil
}

// HasAssignee reports whether userID is listed on this step.
func (s *TicketStep) HasAssignee(userID string) bool {
	return s.assigneeIndex(userID) >= 0
}

// AssigneeIDs lists the identities attached to this step.
func (s *TicketStep) AssigneeIDs() []string {
	ids := make([]string, 0, len(s.Assignees))
	for _, a := range s.Assignees {
		ids = append(ids, a.AssigneeID)
	}
	return ids
}

func (s *TicketStep) assigneeIndex(userID string) int {
	if userID == "" {
		return -1
	}
	for i := range s.Assignees {
		if s.Assignees[i].AssigneeID == userID {
			return i
		}
	}
	return -1
}

// Steps is the approval chain of one ticket.
type Steps []*TicketStep

// Sort orders the chain by level.
func (s Steps) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Level < s[j].Level })
}

// ByLevel returns the step at level, or nil.
func (s Steps) ByLevel(level int) *TicketStep {
	for _, step := range s {
		if step.Level == level {
			return step
		}
	}
	return nil
}

// Next returns the pending step directly after step, or nil when step
// is the final level.
func (s Steps) Next(step *TicketStep) *TicketStep {
	next := s.ByLevel(step.Level + 1)
	if next == nil || next.Status != StepStatusPending {
		return nil
	}
	return next
}

// Active returns the steps currently marked active.
func (s Steps) Active() Steps {
	var active Steps
	for _, step := range s {
		if step.Status == StepStatusActive {
			active = append(active, step)
		}
	}
	return active
}

// Contiguous reports whether the levels run 1..n without gaps or repeats.
func (s Steps) Contiguous() bool {
	seen := make(map[int]bool, len(s))
	for _, step := range s {
		if step.Level < FirstLevel || step.Level > len(s) || seen[step.Level] {
			return false
		}
		seen[step.Level] = true
	}
	return true
}

// HasAssignee reports whether userID is listed on any step.
func (s Steps) HasAssignee(userID string) bool {
	for _, step := range s {
		if step.HasAssignee(userID) {
			return true
		}
	}
	return false
}
