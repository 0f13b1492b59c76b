// Package testutil provides shared helpers for gateway tests.
package testutil

import (
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

// Epoch is a fixed instant tests build timelines from.
var Epoch = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// EventCollector records every event published on a bus.
type EventCollector struct {
	mu     sync.Mutex
	events []event.Event
}

// CollectEvents subscribes a collector to every event on bus and
// unsubscribes it when the test ends.
func CollectEvents(t *testing.T, bus *event.Bus) *EventCollector {
	t.Helper()
	c := &EventCollector{}
	id := bus.SubscribeAll(c.handle)
	t.Cleanup(func() { bus.Unsubscribe(id) })
	return c
}

func (c *EventCollector) handle(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// All returns a copy of every collected event in publish order.
func (c *EventCollector) All() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

// ByType returns the collected events with the given type.
func (c *EventCollector) ByType(eventType string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of eventType were collected.
func (c *EventCollector) Count(eventType string) int {
	return len(c.ByType(eventType))
}

// Last returns the most recent event of eventType, or nil.
func (c *EventCollector) Last(eventType string) event.Event {
	matches := c.ByType(eventType)
	if len(matches) == 0 {
		return nil
	}
	return matches[len(matches)-1]
}

// Reset discards collected events.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// SkipIfNoGolangciLint skips the test if golangci-lint is not installed.
func SkipIfNoGolangciLint(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}
}
