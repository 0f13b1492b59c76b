// Package conflict classifies concurrent writes to the same context key
// and decides how each class of conflict may be resolved.
package conflict

import (
	"encoding/json"
	"time"
)

// Type classifies a conflict.
type Type string

const (
	// ConcurrentModification means two different writers touched the key
	// within the concurrency window.
	ConcurrentModification Type = "concurrent-modification"
	// DataCorruption means two different values share a checksum.
	DataCorruption Type = "data-corruption"
)

// Severity ranks how urgently a conflict needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (unknown) to 4 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Strategy names how a conflict is expected to be resolved.
type Strategy string

const (
	// AutoMerge conflicts are settled by a sync without human input.
	AutoMerge Strategy = "auto-merge"
	// ManualResolve conflicts stay queued until a caller supplies a value
	// or rolls the conversation back.
	ManualResolve Strategy = "manual-resolve"
)

// Version is one side of a conflict: the stored entry or the candidate write.
type Version struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Version    int             `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
	ModifiedBy string          `json:"lastModifiedBy"`
	Checksum   string          `json:"checksum"`
}

// Conflict is a detected disagreement between the stored entry and a write.
type Conflict struct {
	ID             string    `json:"conflictId"`
	ConversationID string    `json:"conversationId"`
	Key            string    `json:"contextKey"`
	Type           Type      `json:"conflictType"`
	Existing       Version   `json:"existing"`
	Candidate      Version   `json:"candidate"`
	DetectedAt     time.Time `json:"detectedAt"`
	Severity       Severity  `json:"severity"`
	Strategy       Strategy  `json:"resolutionStrategy"`
}

// HighestSeverity returns the most severe level among conflicts.
func HighestSeverity(conflicts []Conflict) Severity {
	var top Severity
	for _, c := range conflicts {
		if c.Severity.Rank() > top.Rank() {
			top = c.Severity
		}
	}
	return top
}

// AllAutoMerge reports whether every conflict can be settled by a sync.
func AllAutoMerge(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Strategy != AutoMerge {
			return false
		}
	}
	return true
}
