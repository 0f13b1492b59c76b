package conflict

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
)

// DefaultWindow is how close two writes must be to count as concurrent.
const DefaultWindow = time.Second

// Detector runs the conflict checks for a write. It holds no per-key state;
// callers serialize detection and apply for a key themselves.
type Detector struct {
	window atomic.Int64 // nanoseconds
	newID  func() string
	now    func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithWindow overrides the concurrent-modification window.
func WithWindow(d time.Duration) Option {
	return func(det *Detector) {
		det.window.Store(int64(d))
	}
}

// WithClock sets the clock used to stamp DetectedAt.
func WithClock(now func() time.Time) Option {
	return func(det *Detector) {
		if now != nil {
			det.now = now
		}
	}
}

// WithIDGenerator replaces the conflict ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(det *Detector) {
		if gen != nil {
			det.newID = gen
		}
	}
}

// NewDetector creates a Detector using DefaultWindow unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		newID: uuid.NewString,
		now:   time.Now,
	}
	d.window.Store(int64(DefaultWindow))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Window returns the current concurrent-modification window.
func (d *Detector) Window() time.Duration {
	return time.Duration(d.window.Load())
}

// SetWindow changes the window for subsequent detections.
func (d *Detector) SetWindow(w time.Duration) {
	if w > 0 {
		d.window.Store(int64(w))
	}
}

// Detect compares a candidate write against the stored entry for the same
// key. A nil existing entry never conflicts. The two checks are independent,
// so zero, one or two conflicts may be returned.
func (d *Detector) Detect(conversationID string, existing *Version, candidate Version) []Conflict {
	if existing == nil {
		return nil
	}

	var out []Conflict
	if d.concurrent(*existing, candidate) {
		out = append(out, d.build(conversationID, *existing, candidate,
			ConcurrentModification, SeverityMedium, AutoMerge))
	}
	if corrupted(*existing, candidate) {
		out = append(out, d.build(conversationID, *existing, candidate,
			DataCorruption, SeverityCritical, ManualResolve))
	}
	return out
}

func (d *Detector) concurrent(existing, candidate Version) bool {
	if existing.ModifiedBy == candidate.ModifiedBy {
		return false
	}
	gap := candidate.Timestamp.Sub(existing.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	return gap <= d.Window()
}

func corrupted(existing, candidate Version) bool {
	return existing.Checksum == candidate.Checksum &&
		!payload.Equal(existing.Value, candidate.Value)
}

func (d *Detector) build(conversationID string, existing, candidate Version, t Type, sev Severity, strat Strategy) Conflict {
	return Conflict{
		ID:             d.newID(),
		ConversationID: conversationID,
		Key:            candidate.Key,
		Type:           t,
		Existing:       cloneVersion(existing),
		Candidate:      cloneVersion(candidate),
		DetectedAt:     d.now(),
		Severity:       sev,
		Strategy:       strat,
	}
}

func cloneVersion(v Version) Version {
	v.Value = payload.Clone(v.Value)
	return v
}
