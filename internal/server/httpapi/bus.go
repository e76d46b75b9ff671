package httpapi

import (
	"context"
	"time"

	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
)

// Bus is the outbound channel towards the smart-home authority. Emit is
// fire-and-forget; events queue in a bounded buffer until a connected
// worker polls them off.
type Bus struct {
	events chan models.Envelope
	log    logging.Logger
}

func NewBus(buffer int, log logging.Logger) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		events: make(chan models.Envelope, buffer),
		log:    log.With("module", "authority_bus"),
	}
}

// Emit queues an event for the authority. A full buffer drops the event
// rather than blocking the core.
func (b *Bus) Emit(event string, payload any) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		b.log.Error(context.Background(), "cannot build authority event", "type", event, "error", err)
		return
	}
	select {
	case b.events <- env:
	default:
		b.log.Warn(context.Background(), "authority event dropped, buffer full", "type", event)
	}
}

// Next blocks up to wait for the next queued event. The boolean is false
// when the wait or the caller's context ran out first.
func (b *Bus) Next(ctx context.Context, wait time.Duration) (models.Envelope, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case env := <-b.events:
		return env, true
	case <-timer.C:
		return models.Envelope{}, false
	case <-ctx.Done():
		return models.Envelope{}, false
	}
}
