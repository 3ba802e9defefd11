package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-approval/internal/api/dto"
	"github.com/spec-kit/ticket-approval/internal/auth"
	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/repository"
	"github.com/spec-kit/ticket-approval/internal/service"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// TicketService is what the ticket endpoints need from the service layer.
type TicketService interface {
	CreateTicket(ctx context.Context, applicant *domain.User, input service.TicketCreateInput) (*domain.Ticket, error)
	CreateSystemTicket(ctx context.Context, input service.SystemTicketInput) (*domain.Ticket, error)
	OpenTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error)
	Approve(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error)
	Reject(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error)
	Close(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error)
	Reopen(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error)
	ListRelated(ctx context.Context, actor *domain.User, filter repository.TicketFilter) ([]domain.Ticket, error)
	Detail(ctx context.Context, actor *domain.User, ticketID string) (*service.TicketDetail, error)
	History(ctx context.Context, actor *domain.User, ticketID string) ([]domain.TicketHistory, error)
	AddComment(ctx context.Context, actor *domain.User, ticketID, body string) (*domain.Comment, error)
	ListComments(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Comment, error)
}

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service  TicketService
	validate *validator.Validate
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService TicketService, validate *validator.Validate) *TicketsHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &TicketsHandler{service: ticketService, validate: validate}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), user, service.TicketCreateInput{
		Type:    req.Type,
		Title:   req.Title,
		Comment: req.Comment,
		Meta:    req.Meta,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CreateSystemTicket POST /system/tickets.
func (h *TicketsHandler) CreateSystemTicket(c *fiber.Ctx) error {
	var req dto.SystemTicketRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateSystemTicket(c.UserContext(), service.SystemTicketInput{
		Type:        req.Type,
		Title:       req.Title,
		ApplicantID: req.ApplicantID,
		Assignees:   req.Assignees,
		Meta:        req.Meta,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListRelated(c.UserContext(), user, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	detail, err := h.service.Detail(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// OpenTicket POST /tickets/:id/open.
func (h *TicketsHandler) OpenTicket(c *fiber.Ctx) error {
	return h.transition(c, h.service.OpenTicket)
}

// Approve POST /tickets/:id/approve.
func (h *TicketsHandler) Approve(c *fiber.Ctx) error {
	return h.transition(c, h.service.Approve)
}

// Reject POST /tickets/:id/reject.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	return h.transition(c, h.service.Reject)
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	return h.transition(c, h.service.Close)
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	return h.transition(c, h.service.Reopen)
}

func (h *TicketsHandler) transition(c *fiber.Ctx, action func(context.Context, *domain.User, string) (*domain.Ticket, error)) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := action(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	comment, err := h.service.AddComment(c.UserContext(), user, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, commentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal.User, nil
}

func (h *TicketsHandler) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		details := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return apperrors.NewValidationError("invalid payload", details)
	}
	return nil
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	for _, part := range splitQuery(c.Query("type")) {
		filter.Types = append(filter.Types, domain.TicketType(part))
	}
	for _, part := range splitQuery(c.Query("state")) {
		filter.States = append(filter.States, domain.TicketState(part))
	}
	for _, part := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           ticket.ID,
		SerialNum:    ticket.SerialNum,
		Title:        ticket.Title,
		Type:         ticket.Type,
		State:        ticket.State,
		Status:       ticket.Status,
		ApplicantID:  ticket.ApplicantID,
		ApprovalStep: ticket.ApprovalStep,
		OrgID:        ticket.OrgID,
		RelSnapshot:  ticket.RelSnapshot,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	process := make([]dto.ProcessStepResponse, 0, len(detail.Process))
	for _, step := range detail.Process {
		process = append(process, dto.ProcessStepResponse{
			Level:            step.Level,
			State:            step.State,
			Assignees:        step.Assignees,
			AssigneesDisplay: step.AssigneesDisplay,
			ApprovalDate:     step.ApprovalDate,
			Processor:        step.Processor,
			ProcessorDisplay: step.ProcessorDisplay,
		})
	}
	current := detail.CurrentAssignees
	if current == nil {
		current = []string{}
	}
	return dto.TicketDetailResponse{
		TicketResponse:   ticketResponse(detail.Ticket),
		Comment:          detail.Ticket.Comment,
		Meta:             detail.Ticket.Meta,
		ProcessMap:       process,
		CurrentAssignees: current,
	}
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:          comment.ID,
		UserID:      comment.UserID,
		UserDisplay: comment.UserDisplay,
		Body:        comment.Body,
		CreatedAt:   comment.CreatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ChangedBy:  entry.ChangedBy,
			Level:      entry.Level,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}
