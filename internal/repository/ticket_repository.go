package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

const (
	ticketColumns = `id, title, type, state, status, applicant_id, flow_id, approval_step, serial_num,
               rel_snapshot, COALESCE(org_id::text, ''), comment, meta, created_at, updated_at`
	ticketColumnsT = `t.id, t.title, t.type, t.state, t.status, t.applicant_id, t.flow_id, t.approval_step, t.serial_num,
               t.rel_snapshot, COALESCE(t.org_id::text, ''), t.comment, t.meta, t.created_at, t.updated_at`
)

// TicketFilter narrows the related-tickets listing.
type TicketFilter struct {
	Types    []domain.TicketType
	States   []domain.TicketState
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketRepository covers ticket reads and writes outside the workflow
// transaction: creation, snapshots and listings.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListRelated(ctx context.Context, userID string, filter TicketFilter) ([]domain.Ticket, error)
	SetRelSnapshot(ctx context.Context, id string, snapshot domain.RelSnapshot) error
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, type, state, status, applicant_id, flow_id, approval_step,
            rel_snapshot, org_id, comment, meta)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,'')::uuid,$11,$12)
        RETURNING created_at, updated_at`
	if ticket.RelSnapshot == nil {
		ticket.RelSnapshot = domain.RelSnapshot{}
	}
	if len(ticket.Meta) == 0 {
		ticket.Meta = []byte("{}")
	}
	return r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Type,
		ticket.State,
		ticket.Status,
		ticket.ApplicantID,
		ticket.FlowID,
		ticket.ApprovalStep,
		ticket.RelSnapshot,
		ticket.OrgID,
		ticket.Comment,
		ticket.Meta,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return getTicket(ctx, r.db, id, false)
}

func (r *ticketRepository) SetRelSnapshot(ctx context.Context, id string, snapshot domain.RelSnapshot) error {
	cmd, err := r.db.Exec(ctx, `UPDATE tickets SET rel_snapshot=$1, updated_at=NOW() WHERE id=$2`, snapshot, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewTicketNotFound(id)
	}
	return nil
}

func (r *ticketRepository) ListRelated(ctx context.Context, userID string, filter TicketFilter) ([]domain.Ticket, error) {
	args := []any{userID}
	clauses := []string{`(t.applicant_id=$1 OR EXISTS (
            SELECT 1 FROM ticket_steps s JOIN ticket_assignees a ON a.step_id=s.id
            WHERE s.ticket_id=t.id AND a.assignee_id=$1))`}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, tt := range filter.Types {
			args = append(args, tt)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.state IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets t WHERE %s ORDER BY t.created_at DESC LIMIT %d OFFSET %d`,
		ticketColumnsT, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func getTicket(ctx context.Context, db DBTX, id string, forUpdate bool) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	ticket, err := scanTicket(db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewTicketNotFound(id)
	}
	return ticket, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Type,
		&ticket.State,
		&ticket.Status,
		&ticket.ApplicantID,
		&ticket.FlowID,
		&ticket.ApprovalStep,
		&ticket.SerialNum,
		&ticket.RelSnapshot,
		&ticket.OrgID,
		&ticket.Comment,
		&ticket.Meta,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
