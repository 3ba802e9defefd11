package flow

import (
	"context"
	"fmt"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/workflow"
)

// FlowLoader loads a flow with its rules.
type FlowLoader interface {
	GetByID(ctx context.Context, id string) (*domain.TicketFlow, error)
}

// RoleDirectory lists active users by role. An empty orgID matches
// every organization.
type RoleDirectory interface {
	ListByRole(ctx context.Context, role domain.UserRole, orgID string) ([]domain.User, error)
}

// Source resolves stored approval rules into workflow flow rules.
type Source struct {
	flows FlowLoader
	users RoleDirectory
}

// NewSource builds a Source.
func NewSource(flows FlowLoader, users RoleDirectory) *Source {
	return &Source{flows: flows, users: users}
}

// FlowRules implements workflow.FlowSource.
func (s *Source) FlowRules(ctx context.Context, flowID string) (string, []workflow.FlowRule, error) {
	f, err := s.flows.GetByID(ctx, flowID)
	if err != nil {
		return "", nil, err
	}
	defs := f.SortedRules()
	rules := make([]workflow.FlowRule, 0, len(defs))
	for _, def := range defs {
		rules = append(rules, &rule{def: def, users: s.users})
	}
	return f.OrgID, rules, nil
}

type rule struct {
	def   domain.ApprovalRule
	users RoleDirectory
}

func (r *rule) Level() int {
	return r.def.Level
}

// Assignees returns the candidates for this level in orgID. Org admins
// are only resolved for a concrete organization.
func (r *rule) Assignees(ctx context.Context, orgID string) ([]string, error) {
	switch r.def.Strategy {
	case domain.StrategySuperAdmin:
		return r.byRole(ctx, domain.UserRoleSuperAdmin, "")
	case domain.StrategyOrgAdmin:
		if orgID == "" {
			return nil, nil
		}
		return r.byRole(ctx, domain.UserRoleOrgAdmin, orgID)
	case domain.StrategySuperOrgAdmin:
		supers, err := r.byRole(ctx, domain.UserRoleSuperAdmin, "")
		if err != nil {
			return nil, err
		}
		if orgID == "" {
			return supers, nil
		}
		admins, err := r.byRole(ctx, domain.UserRoleOrgAdmin, orgID)
		if err != nil {
			return nil, err
		}
		return append(supers, admins...), nil
	case domain.StrategyCustomUser:
		return append([]string(nil), r.def.AssigneeIDs...), nil
	default:
		return nil, fmt.Errorf("unknown approval strategy %q", r.def.Strategy)
	}
}

func (r *rule) byRole(ctx context.Context, role domain.UserRole, orgID string) ([]string, error) {
	users, err := r.users.ListByRole(ctx, role, orgID)
	if err != nil {
		return nil, fmt.Errorf("list %s users: %w", role, err)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
