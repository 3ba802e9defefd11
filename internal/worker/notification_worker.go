package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-approval/internal/config"
	"github.com/spec-kit/ticket-approval/internal/events"
	"github.com/spec-kit/ticket-approval/internal/service"
)

// ErrQueueFull is returned when an event arrives faster than the
// workers drain the queue.
var ErrQueueFull = errors.New("notification queue full")

// NotificationWorker delivers notifications off the request path.
type NotificationWorker struct {
	deliver events.EventHandler
	queue   chan events.Event
	workers int
	logger  *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewNotificationWorker builds an idle worker pool around deliver.
func NewNotificationWorker(deliver events.EventHandler, cfg config.NotificationConfig, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &NotificationWorker{
		deliver: deliver,
		queue:   make(chan events.Event, size),
		workers: workers,
		logger:  logger,
	}
}

// Enqueue hands event to the pool without blocking.
func (w *NotificationWorker) Enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrQueueFull
	}
	select {
	case w.queue <- event:
		return nil
	default:
		w.logger.Warn("dropping notification", zap.String("ticket_id", event.TicketID), zap.String("event_type", string(event.Type)))
		return ErrQueueFull
	}
}

// Start launches the workers. They exit when Stop is called.
func (w *NotificationWorker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for event := range w.queue {
				if err := w.deliver(context.WithoutCancel(ctx), event); err != nil {
					w.logger.Warn("notification delivery failed",
						zap.String("ticket_id", event.TicketID),
						zap.String("event_type", string(event.Type)),
						zap.Error(err))
				}
			}
		}()
	}
}

// Stop refuses new events, drains the queue and waits for the workers.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}

// StartNotificationWorker registers notification handlers behind a
// started worker pool.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, cfg config.NotificationConfig, logger *zap.Logger) *NotificationWorker {
	if notificationService == nil {
		return nil
	}
	w := NewNotificationWorker(notificationService.Deliver, cfg, logger)
	notificationService.RegisterHandlers(w.Enqueue)
	w.Start(ctx)
	return w
}
