package conflict

import (
	"encoding/json"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
)

// Resolver settles a conflict by producing the value that should be
// installed for the key. ok is false when the conflict cannot be settled
// without a caller-supplied value.
type Resolver interface {
	Resolve(c Conflict, current json.RawMessage) (value json.RawMessage, ok bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(c Conflict, current json.RawMessage) (json.RawMessage, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(c Conflict, current json.RawMessage) (json.RawMessage, bool) {
	return f(c, current)
}

// MergeResolver settles auto-merge conflicts. When both the current stored
// value and the candidate are objects they are shallow-merged with the
// candidate's keys winning; otherwise the candidate replaces the stored
// value. Manual-resolve conflicts are never settled.
type MergeResolver struct{}

// Resolve implements Resolver.
func (MergeResolver) Resolve(c Conflict, current json.RawMessage) (json.RawMessage, bool) {
	if c.Strategy != AutoMerge {
		return nil, false
	}
	if merged, ok, err := payload.MergeObjects(current, c.Candidate.Value); err == nil && ok {
		return merged, true
	}
	return payload.Clone(c.Candidate.Value), true
}
