package workflow

import (
	"context"

	"github.com/spec-kit/ticket-approval/internal/domain"
)

// Handler is notified after each committed transition. Its errors are
// logged and never undo the transition.
type Handler interface {
	OnChangeState(ctx context.Context, ticket *domain.Ticket, state domain.TicketState) error
	OnStepStateChange(ctx context.Context, ticket *domain.Ticket, step *domain.TicketStep) error
}

// HandlerResolver picks the handler for a ticket type.
type HandlerResolver interface {
	HandlerFor(ticketType domain.TicketType) Handler
}

// NopHandler ignores every notification.
type NopHandler struct{}

func (NopHandler) OnChangeState(context.Context, *domain.Ticket, domain.TicketState) error {
	return nil
}

func (NopHandler) OnStepStateChange(context.Context, *domain.Ticket, *domain.TicketStep) error {
	return nil
}

type notificationKind int

const (
	notifyState notificationKind = iota
	notifyStep
)

type notification struct {
	kind   notificationKind
	ticket domain.Ticket
	state  domain.TicketState
	step   domain.TicketStep
}

func stateNotification(ticket *domain.Ticket, state domain.TicketState) notification {
	return notification{kind: notifyState, ticket: *ticket, state: state}
}

func stepNotification(ticket *domain.Ticket, step *domain.TicketStep) notification {
	s := *step
	s.Assignees = append([]domain.TicketAssignee(nil), step.Assignees...)
	return notification{kind: notifyStep, ticket: *ticket, step: s}
}
