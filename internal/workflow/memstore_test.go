package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// memStore is a transactional in-memory Store. WithinTx holds a single
// mutex, which stands in for the row locks of the real database.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	steps   map[string]domain.Steps

	// latestSerial overrides LatestSerial when set, to simulate a
	// concurrent writer that the lock did not cover.
	latestSerial func(prefix string) string
	// failUpdateStep makes the nth UpdateStep call fail.
	failUpdateStep  int
	updateStepCalls int
}

func newMemStore() *memStore {
	return &memStore{
		tickets: make(map[string]*domain.Ticket),
		steps:   make(map[string]domain.Steps),
	}
}

func (s *memStore) addTicket(t *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = cloneTicket(t)
}

func (s *memStore) ticket(id string) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTicket(s.tickets[id])
}

func (s *memStore) stepsOf(id string) domain.Steps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSteps(s.steps[id])
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, tickets: make(map[string]*domain.Ticket, len(s.tickets)), steps: make(map[string]domain.Steps, len(s.steps))}
	for id, t := range s.tickets {
		tx.tickets[id] = cloneTicket(t)
	}
	for id, steps := range s.steps {
		tx.steps[id] = cloneSteps(steps)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.tickets = tx.tickets
	s.steps = tx.steps
	return nil
}

type memTx struct {
	store   *memStore
	tickets map[string]*domain.Ticket
	steps   map[string]domain.Steps
}

func (tx *memTx) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	t, ok := tx.tickets[id]
	if !ok {
		return nil, apperrors.NewTicketNotFound(id)
	}
	return cloneTicket(t), nil
}

func (tx *memTx) GetTicketForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return tx.GetTicket(ctx, id)
}

func (tx *memTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if _, ok := tx.tickets[ticket.ID]; !ok {
		return apperrors.NewTicketNotFound(ticket.ID)
	}
	if ticket.SerialNum != nil {
		for id, other := range tx.tickets {
			if id != ticket.ID && other.SerialNum != nil && *other.SerialNum == *ticket.SerialNum {
				return apperrors.NewRetryableConflict(errors.New("duplicate serial_num"))
			}
		}
	}
	tx.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (tx *memTx) ListSteps(ctx context.Context, ticketID string) (domain.Steps, error) {
	steps := cloneSteps(tx.steps[ticketID])
	steps.Sort()
	return steps, nil
}

func (tx *memTx) CreateStep(ctx context.Context, step *domain.TicketStep) error {
	for _, existing := range tx.steps[step.TicketID] {
		if existing.Level == step.Level {
			return fmt.Errorf("duplicate step level %d", step.Level)
		}
	}
	tx.steps[step.TicketID] = append(tx.steps[step.TicketID], cloneStep(step))
	return nil
}

func (tx *memTx) UpdateStep(ctx context.Context, step *domain.TicketStep) error {
	tx.store.updateStepCalls++
	if tx.store.failUpdateStep > 0 && tx.store.updateStepCalls == tx.store.failUpdateStep {
		return errors.New("update step failed")
	}
	steps := tx.steps[step.TicketID]
	for i := range steps {
		if steps[i].ID == step.ID {
			steps[i] = cloneStep(step)
			return nil
		}
	}
	return fmt.Errorf("step %s not found", step.ID)
}

func (tx *memTx) LatestSerial(ctx context.Context, prefix string) (string, error) {
	if tx.store.latestSerial != nil {
		return tx.store.latestSerial(prefix), nil
	}
	latest := ""
	for _, t := range tx.tickets {
		if t.SerialNum == nil || !strings.HasPrefix(*t.SerialNum, prefix) {
			continue
		}
		s := *t.SerialNum
		if len(s) > len(latest) || (len(s) == len(latest) && s > latest) {
			latest = s
		}
	}
	return latest, nil
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.SerialNum != nil {
		s := *t.SerialNum
		c.SerialNum = &s
	}
	if t.FlowID != nil {
		f := *t.FlowID
		c.FlowID = &f
	}
	return &c
}

func cloneStep(s *domain.TicketStep) *domain.TicketStep {
	c := *s
	c.Assignees = append([]domain.TicketAssignee(nil), s.Assignees...)
	return &c
}

func cloneSteps(steps domain.Steps) domain.Steps {
	out := make(domain.Steps, 0, len(steps))
	for _, s := range steps {
		out = append(out, cloneStep(s))
	}
	return out
}

type staticRule struct {
	level      int
	candidates []string
	err        error
}

func (r staticRule) Level() int { return r.level }

func (r staticRule) Assignees(ctx context.Context, orgID string) ([]string, error) {
	return r.candidates, r.err
}

type staticFlows struct {
	orgID string
	rules map[string][]FlowRule
}

func (f staticFlows) FlowRules(ctx context.Context, flowID string) (string, []FlowRule, error) {
	rules, ok := f.rules[flowID]
	if !ok {
		return "", nil, errors.New("flow not found")
	}
	return f.orgID, rules, nil
}

type handlerCall struct {
	callback  string
	ticketID  string
	state     domain.TicketState
	level     int
	stepState domain.StepState
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []handlerCall
	err   error
}

func (h *recordingHandler) OnChangeState(ctx context.Context, ticket *domain.Ticket, state domain.TicketState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, handlerCall{callback: "state", ticketID: ticket.ID, state: state})
	return h.err
}

func (h *recordingHandler) OnStepStateChange(ctx context.Context, ticket *domain.Ticket, step *domain.TicketStep) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, handlerCall{callback: "step", ticketID: ticket.ID, level: step.Level, stepState: step.State})
	return h.err
}

func (h *recordingHandler) HandlerFor(domain.TicketType) Handler {
	return h
}

func (h *recordingHandler) snapshot() []handlerCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handlerCall(nil), h.calls...)
}

type mapDirectory map[string]string

func (d mapDirectory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}
