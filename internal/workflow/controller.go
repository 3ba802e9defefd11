package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/observability"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// Controller owns the ticket state machine. It is the only writer of a
// ticket's state, status and approval step.
type Controller struct {
	store     Store
	serials   *SerialAllocator
	flows     FlowSource
	handlers  HandlerResolver
	directory Directory
	logger    *zap.Logger
	newID     func() string
}

// Dependencies bundles collaborators for the controller.
type Dependencies struct {
	Store     Store
	Serials   *SerialAllocator
	Flows     FlowSource
	Handlers  HandlerResolver
	Directory Directory
	Logger    *zap.Logger
	NewID     func() string
}

// NewController constructs the controller.
func NewController(deps Dependencies) *Controller {
	c := &Controller{
		store:     deps.Store,
		serials:   deps.Serials,
		flows:     deps.Flows,
		handlers:  deps.Handlers,
		directory: deps.Directory,
		logger:    deps.Logger,
		newID:     deps.NewID,
	}
	if c.serials == nil {
		c.serials = NewSerialAllocator(nil, time.UTC)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

type stepPlan struct {
	level     int
	assignees []string
}

// Open builds one step per rule of the ticket's flow and opens the ticket.
func (c *Controller) Open(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := c.Ticket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.FlowID == nil || *ticket.FlowID == "" {
		return nil, apperrors.NewInvalidTransition("ticket has no flow", map[string]any{"ticket_id": ticketID})
	}
	if c.flows == nil {
		return nil, apperrors.NewInvalidTransition("no flow source configured", nil)
	}
	orgID, rules, err := c.flows.FlowRules(ctx, *ticket.FlowID)
	if err != nil {
		return nil, err
	}
	plans := make([]stepPlan, 0, len(rules))
	for _, rule := range rules {
		candidates, err := rule.Assignees(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("resolve level %d assignees: %w", rule.Level(), err)
		}
		plans = append(plans, stepPlan{level: rule.Level(), assignees: ExcludeApplicant(candidates, ticket.ApplicantID)})
	}
	return c.open(ctx, ticket, plans)
}

// OpenBySystem opens the ticket with a single level whose assignees are
// given explicitly, bypassing the flow.
func (c *Controller) OpenBySystem(ctx context.Context, ticketID string, assignees []string) (*domain.Ticket, error) {
	ticket, err := c.Ticket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	plans := []stepPlan{{level: domain.FirstLevel, assignees: ExcludeApplicant(assignees, ticket.ApplicantID)}}
	return c.open(ctx, ticket, plans)
}

func (c *Controller) open(ctx context.Context, ticket *domain.Ticket, plans []stepPlan) (*domain.Ticket, error) {
	steps, err := c.buildSteps(ticket.ID, plans)
	if err != nil {
		c.record("open", err)
		return nil, err
	}

	unlock, err := c.serials.Reserve(ctx, ticket.CreatedAt)
	if err != nil {
		c.record("open", err)
		return nil, err
	}
	defer unlock()

	var opened *domain.Ticket
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTicketForUpdate(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if t.IsOpened() {
			return apperrors.NewInvalidTransition("ticket already opened", map[string]any{"ticket_id": t.ID, "serial_num": *t.SerialNum})
		}

		serial, err := c.serials.Next(ctx, tx, t.CreatedAt)
		if err != nil {
			return err
		}
		t.SerialNum = &serial
		t.State = domain.TicketStatePending
		t.Status = domain.TicketStatusOpen
		t.ApprovalStep = domain.FirstLevel
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}

		for _, step := range steps {
			if err := tx.CreateStep(ctx, step); err != nil {
				return err
			}
		}
		opened = t
		return nil
	})
	c.record("open", err)
	if err != nil {
		if apperrors.IsRetryable(err) {
			observability.SerialConflicts.WithLabelValues("unique_violation").Inc()
		}
		return nil, err
	}

	c.logger.Info("ticket opened",
		zap.String("ticket_id", opened.ID),
		zap.String("serial_num", *opened.SerialNum),
		zap.Int("levels", len(steps)))
	c.deliver(ctx, []notification{stateNotification(opened, domain.TicketStatePending)})
	return opened, nil
}

func (c *Controller) buildSteps(ticketID string, plans []stepPlan) (domain.Steps, error) {
	if len(plans) == 0 {
		return nil, apperrors.NewInvalidTransition("flow has no approval levels", map[string]any{"ticket_id": ticketID})
	}
	steps := make(domain.Steps, 0, len(plans))
	for _, plan := range plans {
		if len(plan.assignees) == 0 {
			return nil, apperrors.NewInvalidTransition("approval level has no assignees",
				map[string]any{"ticket_id": ticketID, "level": plan.level})
		}
		steps = append(steps, domain.NewTicketStep(c.newID(), ticketID, plan.level, plan.assignees, c.newID))
	}
	steps.Sort()
	if !steps.Contiguous() {
		return nil, apperrors.NewInvalidTransition("approval levels must run from 1 without gaps",
			map[string]any{"ticket_id": ticketID})
	}
	steps[0].SetActive()
	return steps, nil
}

// Approve records processor's approval of the current level.
func (c *Controller) Approve(ctx context.Context, ticketID, processor string) (*domain.Ticket, error) {
	return c.changeState(ctx, ticketID, domain.StepStateApproved, processor)
}

// Reject records processor's rejection, which ends the ticket.
func (c *Controller) Reject(ctx context.Context, ticketID, processor string) (*domain.Ticket, error) {
	return c.changeState(ctx, ticketID, domain.StepStateRejected, processor)
}

func (c *Controller) changeState(ctx context.Context, ticketID string, state domain.StepState, processor string) (*domain.Ticket, error) {
	action := string(state)
	var (
		result *domain.Ticket
		notes  []notification
	)
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		notes = notes[:0]
		t, err := tx.GetTicketForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.IsStatus(domain.TicketStatusClosed) {
			return apperrors.NewAlreadyClosed(t.ID)
		}
		if !t.IsOpened() {
			return apperrors.NewInvalidTransition("ticket is not opened", map[string]any{"ticket_id": t.ID})
		}
		steps, err := tx.ListSteps(ctx, t.ID)
		if err != nil {
			return err
		}
		current := steps.ByLevel(t.ApprovalStep)
		if current == nil || current.Status != domain.StepStatusActive {
			return apperrors.NewInvalidTransition("ticket has no active step",
				map[string]any{"ticket_id": t.ID, "approval_step": t.ApprovalStep})
		}

		if err := current.ChangeState(state, processor); err != nil {
			return err
		}
		if err := tx.UpdateStep(ctx, current); err != nil {
			return err
		}
		notes = append(notes, stepNotification(t, current))

		next := steps.Next(current)
		if state == domain.StepStateRejected || next == nil {
			t.State = state.TicketState()
			t.Status = domain.TicketStatusClosed
			if err := tx.UpdateTicket(ctx, t); err != nil {
				return err
			}
			notes = append(notes, stateNotification(t, t.State))
		} else {
			next.SetActive()
			if err := tx.UpdateStep(ctx, next); err != nil {
				return err
			}
			t.ApprovalStep++
			if err := tx.UpdateTicket(ctx, t); err != nil {
				return err
			}
		}
		result = t
		return nil
	})
	c.record(action, err)
	if err != nil {
		return nil, err
	}

	c.logger.Info("ticket step decided",
		zap.String("ticket_id", result.ID),
		zap.String("processor", processor),
		zap.String("decision", action),
		zap.String("state", string(result.State)),
		zap.Int("approval_step", result.ApprovalStep))
	c.deliver(ctx, notes)
	return result, nil
}

// Reopen lets the applicant bring a closed ticket back to open. The
// step at the current approval level is re-activated with its assignee
// decisions cleared; levels already passed stay approved.
func (c *Controller) Reopen(ctx context.Context, ticketID, actor string) (*domain.Ticket, error) {
	return c.changeStateByApplicant(ctx, ticketID, actor, domain.TicketStateReopen)
}

// Close lets the applicant withdraw the ticket regardless of step states.
func (c *Controller) Close(ctx context.Context, ticketID, actor string) (*domain.Ticket, error) {
	return c.changeStateByApplicant(ctx, ticketID, actor, domain.TicketStateClosed)
}

func (c *Controller) changeStateByApplicant(ctx context.Context, ticketID, actor string, state domain.TicketState) (*domain.Ticket, error) {
	if state != domain.TicketStateClosed && state != domain.TicketStateReopen {
		return nil, apperrors.NewInvalidTransition("state not supported for applicant change",
			map[string]any{"ticket_id": ticketID, "state": state})
	}
	var result *domain.Ticket
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.GetTicketForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !t.IsApplicant(actor) {
			return apperrors.NewApplicantOnly(t.ID)
		}
		if !t.IsOpened() {
			return apperrors.NewInvalidTransition("ticket is not opened", map[string]any{"ticket_id": t.ID})
		}

		switch state {
		case domain.TicketStateClosed:
			if t.IsStatus(domain.TicketStatusClosed) {
				return apperrors.NewAlreadyClosed(t.ID)
			}
		case domain.TicketStateReopen:
			if !t.IsStatus(domain.TicketStatusClosed) {
				return apperrors.NewInvalidTransition("only closed tickets can be reopened",
					map[string]any{"ticket_id": t.ID, "state": t.State})
			}
			steps, err := tx.ListSteps(ctx, t.ID)
			if err != nil {
				return err
			}
			current := steps.ByLevel(t.ApprovalStep)
			if current == nil {
				return apperrors.NewInvalidTransition("ticket has no step at its approval level",
					map[string]any{"ticket_id": t.ID, "approval_step": t.ApprovalStep})
			}
			current.Reactivate()
			if err := tx.UpdateStep(ctx, current); err != nil {
				return err
			}
		}

		t.State = state
		t.Status = domain.StatusFor(state)
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	c.record(string(state), err)
	if err != nil {
		return nil, err
	}

	c.logger.Info("ticket state changed by applicant",
		zap.String("ticket_id", result.ID),
		zap.String("state", string(state)))
	c.deliver(ctx, []notification{stateNotification(result, state)})
	return result, nil
}

// deliver runs handler callbacks after commit. Failures are logged only.
func (c *Controller) deliver(ctx context.Context, notes []notification) {
	if c.handlers == nil {
		return
	}
	for i := range notes {
		n := &notes[i]
		handler := c.handlers.HandlerFor(n.ticket.Type)
		if handler == nil {
			continue
		}
		var (
			err      error
			callback string
		)
		switch n.kind {
		case notifyState:
			callback = "on_change_state"
			err = handler.OnChangeState(ctx, &n.ticket, n.state)
		case notifyStep:
			callback = "on_step_state_change"
			err = handler.OnStepStateChange(ctx, &n.ticket, &n.step)
		}
		if err != nil {
			observability.HandlerFailures.WithLabelValues(string(n.ticket.Type), callback).Inc()
			c.logger.Warn("ticket handler failed",
				zap.String("ticket_id", n.ticket.ID),
				zap.String("callback", callback),
				zap.Error(err))
		}
	}
}

func (c *Controller) record(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.ToDomainError(err).Code
	}
	observability.TicketTransitions.WithLabelValues(action, outcome).Inc()
}
