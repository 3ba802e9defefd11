package handler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-approval/internal/domain"
	"github.com/spec-kit/ticket-approval/internal/events"
)

// ApplyAsset grants the requested permission once the ticket is approved.
type ApplyAsset struct {
	*Base
	payloads *domain.PayloadRegistry
}

func NewApplyAsset(base *Base, payloads *domain.PayloadRegistry) *ApplyAsset {
	return &ApplyAsset{Base: base, payloads: payloads}
}

func (h *ApplyAsset) OnChangeState(ctx context.Context, ticket *domain.Ticket, state domain.TicketState) error {
	err := h.Base.OnChangeState(ctx, ticket, state)
	if state != domain.TicketStateApproved {
		return err
	}
	return errors.Join(err, h.grant(ctx, ticket))
}

func (h *ApplyAsset) grant(ctx context.Context, ticket *domain.Ticket) error {
	decoded, err := h.payloads.Decode(domain.TicketTypeApplyAsset, ticket.Meta)
	if err != nil {
		return fmt.Errorf("decode apply_asset payload: %w", err)
	}
	p, ok := decoded.(*domain.ApplyAssetPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", decoded)
	}
	grant := events.AssetPermissionGrantedPayload{
		ApplicantID: ticket.ApplicantID,
		OrgID:       ticket.OrgID,
		Name:        permissionName(ticket),
		Nodes:       p.Nodes,
		Assets:      p.Assets,
		Accounts:    p.Accounts,
		Actions:     p.Actions,
	}
	if p.DateStart != nil {
		grant.DateStart = *p.DateStart
	}
	if p.DateExpired != nil {
		grant.DateExpired = *p.DateExpired
	}
	h.logger.Info("granting asset permission",
		zap.String("ticket_id", ticket.ID),
		zap.String("applicant_id", ticket.ApplicantID),
		zap.String("name", grant.Name))
	return h.publish(ctx, events.EventAssetPermissionGranted, ticket.ID, "", grant)
}

// permissionName is stable for a ticket. A re-approval after reopen
// names the same permission, so consumers update it in place.
func permissionName(ticket *domain.Ticket) string {
	serial := ticket.ID
	if ticket.SerialNum != nil {
		serial = *ticket.SerialNum
	}
	return "Created by ticket " + ticket.Title + "-" + serial
}
