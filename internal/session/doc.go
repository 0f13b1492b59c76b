// Package session tracks the assistant sessions connected to the gateway.
//
// The registry is process-local. It records who is connected, from where,
// and in which state, and exposes the totals the health report needs.
// Coordination state (locks, notifications, operations) lives elsewhere
// and is keyed by the same session IDs.
package session
