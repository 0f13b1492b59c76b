package mailbox

import (
	"time"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
)

// DefaultMaxPending bounds each inbox when no option overrides it.
const DefaultMaxPending = 500

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithBus attaches an event bus. When set, a session_notification event is
// published for every target of every send.
func WithBus(bus *event.Bus) Option {
	return func(m *Mailbox) {
		m.bus = bus
	}
}

// WithDeliverer enables push delivery in addition to the inbox.
func WithDeliverer(d Deliverer) Option {
	return func(m *Mailbox) {
		m.deliverer = d
	}
}

// WithMaxPending caps each inbox. The oldest notifications are dropped
// first. Zero or negative values are ignored.
func WithMaxPending(n int) Option {
	return func(m *Mailbox) {
		if n > 0 {
			m.maxPending = n
		}
	}
}

// WithConcurrency bounds parallel pushes. Zero or negative values are ignored.
func WithConcurrency(n int) Option {
	return func(m *Mailbox) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the time source notifications are stamped with.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the notification ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Mailbox) {
		if gen != nil {
			m.newID = gen
		}
	}
}
