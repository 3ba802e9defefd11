package workflow

import (
	"context"

	"github.com/spec-kit/ticket-approval/internal/domain"
)

// Store is the persistence boundary of the engine. Every operation runs
// inside WithinTx; the transaction commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes the engine needs inside one
// transaction. Missing tickets are reported with errorutil.NewTicketNotFound.
type Tx interface {
	// GetTicket loads a ticket without locking it.
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	// GetTicketForUpdate loads a ticket and holds a row lock on it until
	// the transaction ends.
	GetTicketForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	// UpdateTicket persists state, status, approval step and serial number.
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	// ListSteps returns the ticket's steps with assignees, ordered by level.
	ListSteps(ctx context.Context, ticketID string) (domain.Steps, error)
	// CreateStep inserts a step and its assignees.
	CreateStep(ctx context.Context, step *domain.TicketStep) error
	// UpdateStep persists the step's state and status and the state of
	// each of its assignees.
	UpdateStep(ctx context.Context, step *domain.TicketStep) error
	// LatestSerial returns the highest serial number starting with
	// prefix, locking that row. It returns "" when there is none.
	LatestSerial(ctx context.Context, prefix string) (string, error)
}

// FlowRule yields the candidate approvers of one level.
type FlowRule interface {
	Level() int
	Assignees(ctx context.Context, orgID string) ([]string, error)
}

// FlowSource resolves a flow into its ordered rules.
type FlowSource interface {
	FlowRules(ctx context.Context, flowID string) (orgID string, rules []FlowRule, err error)
}

// Directory renders identities for display.
type Directory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}
