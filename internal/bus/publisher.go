package bus

import (
	"context"

	"go.uber.org/multierr"
)

// Publisher publishes through a bus with a fixed default mode.
type Publisher struct {
	bus  *Bus
	mode Mode
}

// NewPublisher creates a Publisher that uses mode for Publish.
func NewPublisher(b *Bus, mode Mode) *Publisher {
	return &Publisher{bus: b, mode: mode}
}

// Publish sends message in the publisher's mode.
func (p *Publisher) Publish(ctx context.Context, message any) error {
	return p.bus.Publish(ctx, message, p.mode)
}

// PublishAll sends every message in order. It keeps going after a failure
// and returns all errors combined. A cancelled ctx stops the batch.
func (p *Publisher) PublishAll(ctx context.Context, messages ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, m := range messages {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, p.bus.Publish(ctx, m, p.mode))
	}
	return errs
}

// Mode returns the publisher's mode.
func (p *Publisher) Mode() Mode {
	return p.mode
}

// Bus returns the underlying bus.
func (p *Publisher) Bus() *Bus {
	return p.bus
}
