package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/events"
	"github.com/spec-kit/ticket-approval/internal/repository"
	"github.com/spec-kit/ticket-approval/internal/workflow"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// Workflow is the part of the workflow controller the service drives.
type Workflow interface {
	Open(ctx context.Context, ticketID string) (*domain.Ticket, error)
	OpenBySystem(ctx context.Context, ticketID string, assignees []string) (*domain.Ticket, error)
	Approve(ctx context.Context, ticketID, processor string) (*domain.Ticket, error)
	Reject(ctx context.Context, ticketID, processor string) (*domain.Ticket, error)
	Close(ctx context.Context, ticketID, actor string) (*domain.Ticket, error)
	Reopen(ctx context.Context, ticketID, actor string) (*domain.Ticket, error)
	ProcessMap(ctx context.Context, ticketID string) ([]workflow.ProcessStep, error)
	CurrentAssignees(ctx context.Context, ticketID string) ([]string, error)
	HasAnyAssignee(ctx context.Context, ticketID, userID string) (bool, error)
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets      repository.TicketRepository
	flows        repository.FlowRepository
	users        repository.UserRepository
	comments     repository.CommentRepository
	history      repository.TicketHistoryRepository
	workflow     Workflow
	payloads     *domain.PayloadRegistry
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	openAttempts uint
	openBackOff  func() backoff.BackOff
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo        repository.TicketRepository
	FlowRepo          repository.FlowRepository
	UserRepo          repository.UserRepository
	CommentRepo       repository.CommentRepository
	HistoryRepo       repository.TicketHistoryRepository
	Workflow          Workflow
	Payloads          *domain.PayloadRegistry
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	OpenRetryAttempts int
}

// TicketCreateInput describes a ticket raised by a user.
type TicketCreateInput struct {
	Type    domain.TicketType
	Title   string
	Comment string
	Meta    json.RawMessage
}

// SystemTicketInput describes a ticket raised by the platform on a
// user's behalf, routed to an explicit set of approvers.
type SystemTicketInput struct {
	Type        domain.TicketType
	Title       string
	ApplicantID string
	Meta        json.RawMessage
	Assignees   []string
}

// TicketDetail is a ticket with its approval process.
type TicketDetail struct {
	Ticket           *domain.Ticket
	Process          []workflow.ProcessStep
	CurrentAssignees []string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	attempts := deps.OpenRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	payloads := deps.Payloads
	if payloads == nil {
		payloads = domain.NewPayloadRegistry()
	}
	return &TicketService{
		tickets:      deps.TicketRepo,
		flows:        deps.FlowRepo,
		users:        deps.UserRepo,
		comments:     deps.CommentRepo,
		history:      deps.HistoryRepo,
		workflow:     deps.Workflow,
		payloads:     payloads,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		openAttempts: uint(attempts),
		openBackOff:  defaultOpenBackOff,
	}
}

func defaultOpenBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// CreateTicket records a ticket for applicant and opens it against the
// flow configured for its type.
func (s *TicketService) CreateTicket(ctx context.Context, applicant *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	payload, meta, err := s.decodePayload(input.Type, input.Meta)
	if err != nil {
		return nil, err
	}
	flow, err := s.flows.FindFor(ctx, applicant.OrgID, input.Type)
	if err != nil {
		return nil, err
	}

	ticket := domain.NewTicket(uuid.NewString(), input.Type, applicant.ID, applicant.OrgID, strings.TrimSpace(input.Title))
	ticket.Comment = strings.TrimSpace(input.Comment)
	ticket.Meta = meta
	ticket.FlowID = &flow.ID
	ticket.SetRelSnapshot(relations(applicant, flow, payload))

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("type", string(ticket.Type)),
		zap.String("flow_id", flow.ID))

	return s.openWithRetry(ctx, func() (*domain.Ticket, error) {
		return s.workflow.Open(ctx, ticket.ID)
	})
}

// CreateSystemTicket records and opens a ticket with explicit approvers.
func (s *TicketService) CreateSystemTicket(ctx context.Context, input SystemTicketInput) (*domain.Ticket, error) {
	payload, meta, err := s.decodePayload(input.Type, input.Meta)
	if err != nil {
		return nil, err
	}
	applicant, err := s.users.GetByID(ctx, input.ApplicantID)
	if err != nil {
		return nil, err
	}
	if len(input.Assignees) == 0 {
		return nil, apperrors.NewValidationError("assignees required", map[string]any{"assignees": "required"})
	}

	ticket := domain.NewTicket(uuid.NewString(), input.Type, applicant.ID, applicant.OrgID, strings.TrimSpace(input.Title))
	ticket.Meta = meta
	ticket.SetRelSnapshot(relations(applicant, nil, payload))
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	return s.openWithRetry(ctx, func() (*domain.Ticket, error) {
		return s.workflow.OpenBySystem(ctx, ticket.ID, input.Assignees)
	})
}

// OpenTicket retries opening a ticket whose earlier open attempt failed.
func (s *TicketService) OpenTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsApplicant(actor.ID) {
		return nil, apperrors.NewApplicantOnly(ticketID)
	}
	return s.openWithRetry(ctx, func() (*domain.Ticket, error) {
		return s.workflow.Open(ctx, ticketID)
	})
}

func (s *TicketService) openWithRetry(ctx context.Context, open func() (*domain.Ticket, error)) (*domain.Ticket, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (*domain.Ticket, error) {
		attempt++
		ticket, err := open()
		if err == nil {
			return ticket, nil
		}
		if !apperrors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		s.logger.Warn("ticket open conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return nil, err
	}, backoff.WithBackOff(s.openBackOff()), backoff.WithMaxTries(s.openAttempts))
}

// Approve records actor's approval of the current level.
func (s *TicketService) Approve(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.workflow.Approve(ctx, ticketID, actor.ID)
}

// Reject records actor's rejection of the ticket.
func (s *TicketService) Reject(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.workflow.Reject(ctx, ticketID, actor.ID)
}

// Close withdraws the ticket. Only its applicant may do this.
func (s *TicketService) Close(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.workflow.Close(ctx, ticketID, actor.ID)
}

// Reopen resumes a closed ticket. Only its applicant may do this.
func (s *TicketService) Reopen(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.workflow.Reopen(ctx, ticketID, actor.ID)
}

// ListRelated returns tickets actor applied for or is asked to approve.
func (s *TicketService) ListRelated(ctx context.Context, actor *domain.User, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.tickets.ListRelated(ctx, actor.ID, filter)
}

// Detail returns the ticket with its process map.
func (s *TicketService) Detail(ctx context.Context, actor *domain.User, ticketID string) (*TicketDetail, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	process, err := s.workflow.ProcessMap(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	current, err := s.workflow.CurrentAssignees(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &TicketDetail{Ticket: ticket, Process: process, CurrentAssignees: current}, nil
}

// History returns the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, actor *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.visibleTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	return s.history.ListByTicket(ctx, ticketID)
}

// AddComment posts a comment. Only the applicant and assignees may.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, body string) (*domain.Comment, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body required", map[string]any{"body": "required"})
	}
	comment := &domain.Comment{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		UserID:      actor.ID,
		UserDisplay: actor.String(),
		Body:        body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    events.UserActor(actor.ID),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    actor.ID,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment, nil
}

// ListComments returns the comment thread of a ticket.
func (s *TicketService) ListComments(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Comment, error) {
	if _, err := s.visibleTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticketID)
}

// visibleTicket loads a ticket actor may see: its applicant, any of its
// assignees, or a super admin.
func (s *TicketService) visibleTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsApplicant(actor.ID) || actor.Role == domain.UserRoleSuperAdmin {
		return ticket, nil
	}
	ok, err := s.workflow.HasAnyAssignee(ctx, ticketID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewForbidden("only the applicant and assignees can do this")
	}
	return ticket, nil
}

func (s *TicketService) decodePayload(ticketType domain.TicketType, raw json.RawMessage) (domain.Payload, json.RawMessage, error) {
	payload, err := s.payloads.Decode(ticketType, raw)
	if err != nil {
		return nil, nil, err
	}
	meta, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	return payload, meta, nil
}

// relations gathers what the ticket's snapshot should remember.
func relations(applicant *domain.User, flow *domain.TicketFlow, payload domain.Payload) map[string]any {
	rels := map[string]any{
		"applicant": applicant,
		"org":       applicant.OrgID,
		"flow":      flow,
	}
	if carrier, ok := payload.(domain.RelationCarrier); ok {
		for name, value := range carrier.Relations() {
			rels[name] = value
		}
	}
	return rels
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
