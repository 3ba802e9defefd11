package domain

import (
	"sort"
	"time"
)

// ApprovalStrategy decides who may approve one level of a flow.
type ApprovalStrategy string

const (
	StrategySuperAdmin    ApprovalStrategy = "super_admin"
	StrategyOrgAdmin      ApprovalStrategy = "org_admin"
	StrategySuperOrgAdmin ApprovalStrategy = "super_org_admin"
	StrategyCustomUser    ApprovalStrategy = "custom_user"
)

// TicketFlow is the configured approval chain for a ticket type in an org.
type TicketFlow struct {
	ID        string
	OrgID     string
	Type      TicketType
	Rules     []ApprovalRule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApprovalRule is one level of a flow.
type ApprovalRule struct {
	ID          string
	FlowID      string
	Level       int
	Strategy    ApprovalStrategy
	AssigneeIDs []string
}

// SortedRules returns the rules ordered by level.
func (f *TicketFlow) SortedRules() []ApprovalRule {
	rules := make([]ApprovalRule, len(f.Rules))
	copy(rules, f.Rules)
	sort.Slice(rules, func(i, j int) bool { return rules[i].Level < rules[j].Level })
	return rules
}

func (f *TicketFlow) String() string {
	return string(f.Type) + "@" + f.OrgID
}

// Organization scopes tickets and flows.
type Organization struct {
	ID   string
	Name string
}

func (o *Organization) String() string {
	return o.Name
}
