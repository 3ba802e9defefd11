package handler

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/events"
)

// Confirmation releases a login or command that is waiting on the
// ticket as soon as it reaches an outcome.
type Confirmation struct {
	*Base
}

func NewConfirmation(base *Base) *Confirmation {
	return &Confirmation{Base: base}
}

func (h *Confirmation) OnChangeState(ctx context.Context, ticket *domain.Ticket, state domain.TicketState) error {
	err := h.Base.OnChangeState(ctx, ticket, state)
	if domain.StatusFor(state) != domain.TicketStatusClosed {
		return err
	}
	decision := events.ConfirmationDecidedPayload{
		TicketType: ticket.Type,
		State:      state,
		Allowed:    state == domain.TicketStateApproved,
	}
	return errors.Join(err, h.publish(ctx, events.EventConfirmationDecided, ticket.ID, "", decision))
}
