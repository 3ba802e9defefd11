package handler

import (
	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/workflow"
)

// Registry resolves the handler for a ticket type, falling back to a
// default for types without a dedicated one.
type Registry struct {
	handlers map[domain.TicketType]workflow.Handler
	fallback workflow.Handler
}

// NewRegistry builds a registry. A nil fallback ignores notifications.
func NewRegistry(fallback workflow.Handler) *Registry {
	if fallback == nil {
		fallback = workflow.NopHandler{}
	}
	return &Registry{handlers: make(map[domain.TicketType]workflow.Handler), fallback: fallback}
}

// Register binds h to ticketType.
func (r *Registry) Register(ticketType domain.TicketType, h workflow.Handler) {
	r.handlers[ticketType] = h
}

// HandlerFor implements workflow.HandlerResolver.
func (r *Registry) HandlerFor(ticketType domain.TicketType) workflow.Handler {
	if h, ok := r.handlers[ticketType]; ok {
		return h
	}
	return r.fallback
}

// NewDefaultRegistry wires the built-in ticket types.
func NewDefaultRegistry(base *Base, payloads *domain.PayloadRegistry) *Registry {
	r := NewRegistry(base)
	r.Register(domain.TicketTypeApplyAsset, NewApplyAsset(base, payloads))
	confirm := NewConfirmation(base)
	r.Register(domain.TicketTypeLoginConfirm, confirm)
	r.Register(domain.TicketTypeCommandConfirm, confirm)
	return r
}
