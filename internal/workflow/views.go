package workflow

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-approval/internal/domain"
)

// ProcessStep is the audit view of one approval level.
type ProcessStep struct {
	State            domain.StepState
	Level            int
	Assignees        []string
	AssigneesDisplay []string
	ApprovalDate     time.Time
	Processor        string
	ProcessorDisplay string
}

// Ticket loads a ticket.
func (c *Controller) Ticket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		ticket = t
		return nil
	})
	return ticket, err
}

func (c *Controller) snapshot(ctx context.Context, ticketID string) (*domain.Ticket, domain.Steps, error) {
	var (
		ticket *domain.Ticket
		steps  domain.Steps
	)
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		s, err := tx.ListSteps(ctx, ticketID)
		if err != nil {
			return err
		}
		ticket, steps = t, s
		return nil
	})
	return ticket, steps, err
}

// ProcessMap describes every level in order: who could act, who did and when.
func (c *Controller) ProcessMap(ctx context.Context, ticketID string) ([]ProcessStep, error) {
	_, steps, err := c.snapshot(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, step := range steps {
		ids = append(ids, step.AssigneeIDs()...)
	}
	names := map[string]string{}
	if c.directory != nil && len(ids) > 0 {
		names, err = c.directory.DisplayNames(ctx, ids)
		if err != nil {
			return nil, err
		}
	}
	display := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return id
	}

	out := make([]ProcessStep, 0, len(steps))
	for _, step := range steps {
		ps := ProcessStep{
			State:        step.State,
			Level:        step.Level,
			ApprovalDate: step.UpdatedAt,
		}
		for _, a := range step.Assignees {
			ps.Assignees = append(ps.Assignees, a.AssigneeID)
			ps.AssigneesDisplay = append(ps.AssigneesDisplay, display(a.AssigneeID))
			if step.State != domain.StepStatePending && a.State == step.State {
				ps.Processor = a.AssigneeID
				ps.ProcessorDisplay = display(a.AssigneeID)
			}
		}
		out = append(out, ps)
	}
	return out, nil
}

// CurrentAssignees lists the identities on the step at the ticket's
// approval level.
func (c *Controller) CurrentAssignees(ctx context.Context, ticketID string) ([]string, error) {
	ticket, steps, err := c.snapshot(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	current := steps.ByLevel(ticket.ApprovalStep)
	if current == nil {
		return nil, nil
	}
	return current.AssigneeIDs(), nil
}

// HasCurrentAssignee reports whether userID may act on the ticket now.
func (c *Controller) HasCurrentAssignee(ctx context.Context, ticketID, userID string) (bool, error) {
	ticket, steps, err := c.snapshot(ctx, ticketID)
	if err != nil {
		return false, err
	}
	current := steps.ByLevel(ticket.ApprovalStep)
	return current != nil && current.HasAssignee(userID), nil
}

// HasAnyAssignee reports whether userID is an assignee at any level.
func (c *Controller) HasAnyAssignee(ctx context.Context, ticketID, userID string) (bool, error) {
	_, steps, err := c.snapshot(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return steps.HasAssignee(userID), nil
}

// Processor returns who decided the current step, or "" if nobody has.
func (c *Controller) Processor(ctx context.Context, ticketID string) (string, error) {
	ticket, steps, err := c.snapshot(ctx, ticketID)
	if err != nil {
		return "", err
	}
	current := steps.ByLevel(ticket.ApprovalStep)
	if current == nil {
		return "", nil
	}
	if p := current.Processor(); p != nil {
		return p.AssigneeID, nil
	}
	return "", nil
}
