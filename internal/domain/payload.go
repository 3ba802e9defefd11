package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

// Payload is the type-specific body of a ticket. The workflow engine
// never looks inside it.
type Payload interface {
	TicketType() TicketType
}

// RelationCarrier is implemented by payloads that reference other
// records which should appear in the ticket's relation snapshot.
type RelationCarrier interface {
	Relations() map[string]any
}

// GeneralPayload is a free-form request.
type GeneralPayload struct {
	Body string `json:"body" validate:"max=4096"`
}

func (GeneralPayload) TicketType() TicketType { return TicketTypeGeneral }

// LoginConfirmPayload asks an approver to confirm a login attempt.
type LoginConfirmPayload struct {
	LoginIP       string    `json:"apply_login_ip" validate:"required,ip"`
	LoginCity     string    `json:"apply_login_city" validate:"max=128"`
	LoginDatetime time.Time `json:"apply_login_datetime" validate:"required"`
}

func (LoginConfirmPayload) TicketType() TicketType { return TicketTypeLoginConfirm }

// ApplyAssetPayload requests access to assets.
type ApplyAssetPayload struct {
	Nodes       []string   `json:"apply_nodes" validate:"dive,required"`
	Assets      []string   `json:"apply_assets" validate:"dive,required"`
	Accounts    []string   `json:"apply_accounts" validate:"dive,required"`
	Actions     []string   `json:"apply_actions" validate:"dive,oneof=all connect upload download copy paste delete share"`
	DateStart   *time.Time `json:"apply_date_start"`
	DateExpired *time.Time `json:"apply_date_expired"`
}

func (ApplyAssetPayload) TicketType() TicketType { return TicketTypeApplyAsset }

// Relations exposes the requested nodes, assets and accounts.
func (p ApplyAssetPayload) Relations() map[string]any {
	return map[string]any{
		"apply_nodes":    p.Nodes,
		"apply_assets":   p.Assets,
		"apply_accounts": p.Accounts,
	}
}

func (p ApplyAssetPayload) check() error {
	if len(p.Nodes) == 0 && len(p.Assets) == 0 {
		return errors.New("apply_nodes or apply_assets required")
	}
	if p.DateStart != nil && p.DateExpired != nil && !p.DateExpired.After(*p.DateStart) {
		return errors.New("apply_date_expired must be after apply_date_start")
	}
	return nil
}

// CommandConfirmPayload asks an approver to allow a filtered command.
type CommandConfirmPayload struct {
	Command       string `json:"apply_run_command" validate:"required,max=4096"`
	RunAsset      string `json:"apply_run_asset" validate:"required"`
	RunAccount    string `json:"apply_run_account"`
	Session       string `json:"apply_from_session_id" validate:"required"`
	CmdFilterRule string `json:"apply_from_cmd_filter_rule_id"`
}

func (CommandConfirmPayload) TicketType() TicketType { return TicketTypeCommandConfirm }

type checker interface {
	check() error
}

// PayloadRegistry maps each ticket type to the schema of its payload.
type PayloadRegistry struct {
	factories map[TicketType]func() Payload
	validate  *validator.Validate
}

// NewPayloadRegistry returns a registry with the built-in ticket types.
func NewPayloadRegistry() *PayloadRegistry {
	r := &PayloadRegistry{
		factories: make(map[TicketType]func() Payload),
		validate:  validator.New(),
	}
	r.Register(TicketTypeGeneral, func() Payload { return &GeneralPayload{} })
	r.Register(TicketTypeLoginConfirm, func() Payload { return &LoginConfirmPayload{} })
	r.Register(TicketTypeApplyAsset, func() Payload { return &ApplyAssetPayload{} })
	r.Register(TicketTypeCommandConfirm, func() Payload { return &CommandConfirmPayload{} })
	return r
}

// Register adds or replaces the payload schema for a ticket type.
func (r *PayloadRegistry) Register(ticketType TicketType, factory func() Payload) {
	r.factories[ticketType] = factory
}

// Supports reports whether ticketType has a registered schema.
func (r *PayloadRegistry) Supports(ticketType TicketType) bool {
	_, ok := r.factories[ticketType]
	return ok
}

// Types lists registered ticket types.
func (r *PayloadRegistry) Types() []TicketType {
	types := make([]TicketType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Decode parses and validates raw as the payload of ticketType. An
// empty raw decodes to the zero payload before validation.
func (r *PayloadRegistry) Decode(ticketType TicketType, raw json.RawMessage) (Payload, error) {
	factory, ok := r.factories[ticketType]
	if !ok {
		return nil, apperrors.NewUnsupportedPayload(string(ticketType))
	}
	payload := factory()
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(payload); err != nil {
			return nil, apperrors.NewValidationError("invalid ticket meta", map[string]any{"error": err.Error()})
		}
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket meta", validationDetails(err))
	}
	if c, ok := payload.(checker); ok {
		if err := c.check(); err != nil {
			return nil, apperrors.NewValidationError("invalid ticket meta", map[string]any{"error": err.Error()})
		}
	}
	return payload, nil
}

func validationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]any{"error": err.Error()}
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return details
}
