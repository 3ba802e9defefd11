package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/events"
)

// HistoryWriter persists audit entries.
type HistoryWriter interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
}

// Base records history and publishes events for every ticket type.
// Type-specific handlers embed it and add their side effects.
type Base struct {
	history    HistoryWriter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewBase builds the shared handler.
func NewBase(history HistoryWriter, dispatcher events.Dispatcher, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{history: history, dispatcher: dispatcher, logger: logger, now: time.Now}
}

func (b *Base) OnChangeState(ctx context.Context, ticket *domain.Ticket, state domain.TicketState) error {
	changeType := domain.ChangeTypeState
	if state == domain.TicketStatePending {
		changeType = domain.ChangeTypeOpened
	}
	var actor string
	if state == domain.TicketStateClosed || state == domain.TicketStateReopen {
		actor = ticket.ApplicantID
	}
	level := ticket.ApprovalStep
	entry := &domain.TicketHistory{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		ChangedBy:  optional(actor),
		ChangeType: changeType,
		Level:      &level,
		NewValue: map[string]any{
			"state":         string(state),
			"status":        string(ticket.Status),
			"approval_step": ticket.ApprovalStep,
		},
	}
	if ticket.SerialNum != nil {
		entry.NewValue["serial_num"] = *ticket.SerialNum
	}

	payload := events.TicketStateChangedPayload{
		Title:        ticket.Title,
		TicketType:   ticket.Type,
		State:        state,
		Status:       ticket.Status,
		ApprovalStep: ticket.ApprovalStep,
		ApplicantID:  ticket.ApplicantID,
	}
	if ticket.SerialNum != nil {
		payload.SerialNum = *ticket.SerialNum
	}
	return errors.Join(
		b.record(ctx, entry),
		b.publish(ctx, events.EventTicketStateChanged, ticket.ID, actor, payload),
	)
}

func (b *Base) OnStepStateChange(ctx context.Context, ticket *domain.Ticket, step *domain.TicketStep) error {
	var processor string
	if p := step.Processor(); p != nil {
		processor = p.AssigneeID
	}
	level := step.Level
	entry := &domain.TicketHistory{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		ChangedBy:  optional(processor),
		ChangeType: domain.ChangeTypeStepState,
		Level:      &level,
		OldValue:   map[string]any{"state": string(domain.StepStatePending)},
		NewValue:   map[string]any{"state": string(step.State), "processor": processor},
	}
	payload := events.TicketStepStateChangedPayload{
		Level:       step.Level,
		State:       step.State,
		ProcessorID: processor,
		Assignees:   step.AssigneeIDs(),
		ApplicantID: ticket.ApplicantID,
	}
	return errors.Join(
		b.record(ctx, entry),
		b.publish(ctx, events.EventTicketStepStateChanged, ticket.ID, processor, payload),
	)
}

func (b *Base) record(ctx context.Context, entry *domain.TicketHistory) error {
	if b.history == nil {
		return nil
	}
	return b.history.Create(ctx, entry)
}

func (b *Base) publish(ctx context.Context, eventType events.EventType, ticketID, actor string, payload any) error {
	if b.dispatcher == nil {
		return nil
	}
	return b.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.UserActor(actor),
		Timestamp: b.now(),
		Payload:   payload,
	})
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
