package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// FlowRepository loads approval flows and their rules.
type FlowRepository interface {
	GetByID(ctx context.Context, id string) (*domain.TicketFlow, error)
	// FindFor returns the flow for ticketType in orgID, falling back to
	// the global flow (no organization) for that type.
	FindFor(ctx context.Context, orgID string, ticketType domain.TicketType) (*domain.TicketFlow, error)
}

type flowRepository struct {
	db DBTX
}

// NewFlowRepository builds repository.
func NewFlowRepository(db DBTX) FlowRepository {
	return &flowRepository{db: db}
}

func (r *flowRepository) GetByID(ctx context.Context, id string) (*domain.TicketFlow, error) {
	const query = `
        SELECT id, COALESCE(org_id::text, ''), type, created_at, updated_at
        FROM ticket_flows WHERE id=$1`
	return r.fetch(ctx, query, id)
}

func (r *flowRepository) FindFor(ctx context.Context, orgID string, ticketType domain.TicketType) (*domain.TicketFlow, error) {
	const query = `
        SELECT id, COALESCE(org_id::text, ''), type, created_at, updated_at
        FROM ticket_flows
        WHERE type=$1 AND (org_id::text=$2 OR org_id IS NULL)
        ORDER BY org_id NULLS LAST
        LIMIT 1`
	return r.fetch(ctx, query, ticketType, orgID)
}

func (r *flowRepository) fetch(ctx context.Context, query string, args ...any) (*domain.TicketFlow, error) {
	var flow domain.TicketFlow
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&flow.ID,
		&flow.OrgID,
		&flow.Type,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket flow", map[string]any{"args": args})
	}
	if err != nil {
		return nil, err
	}

	const rulesQuery = `
        SELECT id, flow_id, level, strategy, assignee_ids::text[]
        FROM ticket_flow_rules WHERE flow_id=$1 ORDER BY level ASC`
	rows, err := r.db.Query(ctx, rulesQuery, flow.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rule domain.ApprovalRule
		if err := rows.Scan(&rule.ID, &rule.FlowID, &rule.Level, &rule.Strategy, &rule.AssigneeIDs); err != nil {
			return nil, err
		}
		flow.Rules = append(flow.Rules, rule)
	}
	return &flow, rows.Err()
}
