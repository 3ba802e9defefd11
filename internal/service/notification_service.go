package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-approval/internal/config"
	"github.com/spec-kit/ticket-approval/internal/events"
)

// NotificationService turns ticket events into outbound notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to ticket events. Each event goes through
// enqueue when given, otherwise it is delivered inline.
func (n *NotificationService) RegisterHandlers(enqueue events.EventHandler) {
	if n.dispatcher == nil {
		return
	}
	if enqueue == nil {
		enqueue = n.Deliver
	}
	for _, et := range []events.EventType{
		events.EventTicketStateChanged,
		events.EventTicketStepStateChanged,
		events.EventTicketCommentAdded,
		events.EventAssetPermissionGranted,
		events.EventConfirmationDecided,
	} {
		n.dispatcher.Subscribe(et, enqueue)
	}
}

// Deliver sends the notification for one event.
func (n *NotificationService) Deliver(ctx context.Context, event events.Event) error {
	switch p := event.Payload.(type) {
	case events.TicketStateChangedPayload:
		n.logger.Info("TicketStateChanged",
			zap.String("ticket_id", event.TicketID),
			zap.String("serial_num", p.SerialNum),
			zap.String("state", string(p.State)))
		n.sendEmailNotificationStub(ctx, event, p.ApplicantID)
		n.sendWebhookNotificationStub(ctx, event)
	case events.TicketStepStateChangedPayload:
		n.logger.Info("TicketStepStateChanged",
			zap.String("ticket_id", event.TicketID),
			zap.Int("level", p.Level),
			zap.String("state", string(p.State)))
		n.sendEmailNotificationStub(ctx, event, p.ApplicantID)
	case events.TicketCommentAddedPayload:
		n.logger.Info("TicketCommentAdded", zap.String("ticket_id", event.TicketID), zap.String("comment_id", p.CommentID))
		n.sendWebhookNotificationStub(ctx, event)
	case events.AssetPermissionGrantedPayload:
		n.logger.Info("AssetPermissionGranted", zap.String("ticket_id", event.TicketID), zap.String("name", p.Name))
		n.sendEmailNotificationStub(ctx, event, p.ApplicantID)
		n.sendWebhookNotificationStub(ctx, event)
	case events.ConfirmationDecidedPayload:
		n.logger.Info("ConfirmationDecided", zap.String("ticket_id", event.TicketID), zap.Bool("allowed", p.Allowed))
		n.sendWebhookNotificationStub(ctx, event)
	default:
		n.logger.Debug("ignoring event", zap.String("event_type", string(event.Type)))
	}
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, recipientID string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || recipientID == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("recipient_id", recipientID),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
