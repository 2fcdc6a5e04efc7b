// Package notify fans committed row changes out to viewers. Delivery is best effort:
// nothing here can block or fail a ledger operation.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/metrics"
	"termledger/backend/services/ledger-service/internal/models"
)

const defaultBufferSize = 256

// Publisher delivers one change event to the transport.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// TransportError wraps a failed delivery.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notify: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Dispatcher queues events from the ledger and hands them to a Publisher on its own goroutine.
type Dispatcher struct {
	events    chan models.ChangeEvent
	publisher Publisher
	logger    *zap.Logger
}

// NewDispatcher builds a dispatcher with a bounded queue.
func NewDispatcher(publisher Publisher, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher{
		events:    make(chan models.ChangeEvent, bufferSize),
		publisher: publisher,
		logger:    logger,
	}
}

// Notify enqueues the event, dropping it when the queue is full.
func (d *Dispatcher) Notify(event models.ChangeEvent) {
	select {
	case d.events <- event:
	default:
		metrics.BusEvents.WithLabelValues("dropped").Inc()
		d.logger.Warn("change event dropped, queue full",
			zap.String("entity", string(event.Entity)),
			zap.String("op", string(event.Op)),
		)
	}
}

// Run publishes queued events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-d.events:
			d.publish(ctx, event)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event models.ChangeEvent) {
	if err := d.publisher.Publish(ctx, event); err != nil {
		metrics.BusEvents.WithLabelValues("failed").Inc()
		d.logger.Warn("change event not delivered",
			zap.String("entity", string(event.Entity)),
			zap.String("op", string(event.Op)),
			zap.Error(err),
		)
		return
	}
	metrics.BusEvents.WithLabelValues("published").Inc()
}
