package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/workflow"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// Store runs workflow transactions on Postgres.
type Store struct {
	db TxBeginner
}

// NewStore builds the workflow store.
func NewStore(db TxBeginner) *Store {
	return &Store{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &storeTx{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTicketWrite(err)
	}
	return nil
}

type storeTx struct {
	db DBTX
}

func (t *storeTx) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return getTicket(ctx, t.db, id, false)
}

func (t *storeTx) GetTicketForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return getTicket(ctx, t.db, id, true)
}

func (t *storeTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, state=$2, status=$3, flow_id=$4, approval_step=$5, serial_num=$6,
            comment=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	err := t.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.State,
		ticket.Status,
		ticket.FlowID,
		ticket.ApprovalStep,
		ticket.SerialNum,
		ticket.Comment,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewTicketNotFound(ticket.ID)
	}
	return mapTicketWrite(err)
}

func (t *storeTx) ListSteps(ctx context.Context, ticketID string) (domain.Steps, error) {
	const stepsQuery = `
        SELECT id, ticket_id, level, state, status, created_at, updated_at
        FROM ticket_steps WHERE ticket_id=$1 ORDER BY level ASC`
	rows, err := t.db.Query(ctx, stepsQuery, ticketID)
	if err != nil {
		return nil, err
	}
	var steps domain.Steps
	byID := map[string]*domain.TicketStep{}
	for rows.Next() {
		var step domain.TicketStep
		if err := rows.Scan(
			&step.ID,
			&step.TicketID,
			&step.Level,
			&step.State,
			&step.Status,
			&step.CreatedAt,
			&step.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, err
		}
		steps = append(steps, &step)
		byID[step.ID] = &step
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return steps, nil
	}

	const assigneesQuery = `
        SELECT a.id, a.step_id, a.assignee_id, a.state, a.created_at, a.updated_at
        FROM ticket_assignees a JOIN ticket_steps s ON s.id=a.step_id
        WHERE s.ticket_id=$1 ORDER BY a.created_at ASC, a.id ASC`
	rows, err = t.db.Query(ctx, assigneesQuery, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var assignee domain.TicketAssignee
		if err := rows.Scan(
			&assignee.ID,
			&assignee.StepID,
			&assignee.AssigneeID,
			&assignee.State,
			&assignee.CreatedAt,
			&assignee.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if step, ok := byID[assignee.StepID]; ok {
			step.Assignees = append(step.Assignees, assignee)
		}
	}
	return steps, rows.Err()
}

func (t *storeTx) CreateStep(ctx context.Context, step *domain.TicketStep) error {
	const stepQuery = `
        INSERT INTO ticket_steps (id, ticket_id, level, state, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	if err := t.db.QueryRow(ctx, stepQuery,
		step.ID,
		step.TicketID,
		step.Level,
		step.State,
		step.Status,
	).Scan(&step.CreatedAt, &step.UpdatedAt); err != nil {
		return fmt.Errorf("insert step level %d: %w", step.Level, err)
	}

	const assigneeQuery = `
        INSERT INTO ticket_assignees (id, step_id, assignee_id, state)
        VALUES ($1,$2,$3,$4)`
	for _, a := range step.Assignees {
		if _, err := t.db.Exec(ctx, assigneeQuery, a.ID, step.ID, a.AssigneeID, a.State); err != nil {
			return fmt.Errorf("insert assignee %s: %w", a.AssigneeID, err)
		}
	}
	return nil
}

func (t *storeTx) UpdateStep(ctx context.Context, step *domain.TicketStep) error {
	const stepQuery = `UPDATE ticket_steps SET state=$1, status=$2, updated_at=NOW() WHERE id=$3`
	cmd, err := t.db.Exec(ctx, stepQuery, step.State, step.Status, step.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("step %s: %w", step.ID, pgx.ErrNoRows)
	}

	const assigneeQuery = `
        UPDATE ticket_assignees SET state=$1, updated_at=NOW()
        WHERE id=$2 AND state<>$1`
	for _, a := range step.Assignees {
		if _, err := t.db.Exec(ctx, assigneeQuery, a.State, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *storeTx) LatestSerial(ctx context.Context, prefix string) (string, error) {
	const query = `
        SELECT serial_num FROM tickets
        WHERE serial_num LIKE $1 || '%'
        ORDER BY length(serial_num) DESC, serial_num DESC
        LIMIT 1 FOR UPDATE`
	var serial string
	err := t.db.QueryRow(ctx, query, prefix).Scan(&serial)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return serial, err
}
