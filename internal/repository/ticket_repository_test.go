package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

func TestTicketCreateDefaultsJSON(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	ticket := domain.NewTicket("t1", domain.TicketTypeGeneral, "applicant", "", "title")
	ticket.RelSnapshot = nil

	mock.ExpectQuery(`INSERT INTO tickets`).
		WithArgs("t1", "title", domain.TicketTypeGeneral, domain.TicketStatePending, domain.TicketStatusOpen,
			"applicant", pgxmock.AnyArg(), 1, pgxmock.AnyArg(), "", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, NewTicketRepository(mock).Create(context.Background(), ticket))
	assert.Equal(t, now, ticket.CreatedAt)
	assert.NotNil(t, ticket.RelSnapshot)
	assert.JSONEq(t, `{}`, string(ticket.Meta))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRelatedFilters(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	serial := "202401010001"

	mock.ExpectQuery(`(?s)FROM tickets t WHERE \(t.applicant_id=\$1 OR EXISTS .* AND t.status IN \(\$2\) ORDER BY t.created_at DESC LIMIT 5 OFFSET 0`).
		WithArgs("u1", domain.TicketStatusOpen).
		WillReturnRows(pgxmock.NewRows(ticketCols).AddRow(ticketRow("t1", &serial, now)...))

	tickets, err := NewTicketRepository(mock).ListRelated(context.Background(), "u1", TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusOpen},
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, serial, *tickets[0].SerialNum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRelSnapshotMissingTicket(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE tickets SET rel_snapshot`).
		WithArgs(pgxmock.AnyArg(), "t1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewTicketRepository(mock).SetRelSnapshot(context.Background(), "t1", domain.RelSnapshot{})
	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
}

func TestUserDisplayNames(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "name", "username", "email", "role", "org_id", "status", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM users WHERE id = ANY`).
		WithArgs([]string{"u1", "u2"}).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("u1", "Bob", "bob", "bob@example.com", domain.UserRoleOrgAdmin, "org-1", domain.UserStatusActive, now, now))

	names, err := NewUserRepository(mock).DisplayNames(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Bob(bob)"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlowFindForLoadsRules(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`FROM ticket_flows`).
		WithArgs(domain.TicketTypeApplyAsset, "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "type", "created_at", "updated_at"}).
			AddRow("f1", "", domain.TicketTypeApplyAsset, now, now))
	mock.ExpectQuery(`FROM ticket_flow_rules`).
		WithArgs("f1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "flow_id", "level", "strategy", "assignee_ids"}).
			AddRow("r1", "f1", 1, domain.StrategyOrgAdmin, []string{}).
			AddRow("r2", "f1", 2, domain.StrategyCustomUser, []string{"u9"}))

	flow, err := NewFlowRepository(mock).FindFor(context.Background(), "org-1", domain.TicketTypeApplyAsset)
	require.NoError(t, err)
	require.Len(t, flow.Rules, 2)
	assert.Equal(t, domain.StrategyCustomUser, flow.Rules[1].Strategy)
	assert.Equal(t, []string{"u9"}, flow.Rules[1].AssigneeIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
