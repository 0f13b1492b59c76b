package contextsync

import (
	"context"
	"time"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

// HandoffScope controls how much context a handoff carries.
type HandoffScope string

const (
	// ScopeFull carries every entry.
	ScopeFull HandoffScope = "full"
	// ScopeFocused carries only the requested keys.
	ScopeFocused HandoffScope = "focused"
	// ScopeMinimal carries keys, versions and checksums without values.
	ScopeMinimal HandoffScope = "minimal"
)

// Valid reports whether s is a known scope.
func (s HandoffScope) Valid() bool {
	switch s {
	case ScopeFull, ScopeFocused, ScopeMinimal:
		return true
	}
	return false
}

// HandoffRequest transfers a conversation's context from one agent to
// another.
type HandoffRequest struct {
	ConversationID string
	From           string
	To             string
	Scope          HandoffScope
	Keys           []string
}

// HandoffPackage is what the receiving agent gets.
type HandoffPackage struct {
	ConversationID string                  `json:"conversationId"`
	SyncID         string                  `json:"syncId"`
	From           string                  `json:"fromAgent"`
	To             string                  `json:"toAgent"`
	Scope          HandoffScope            `json:"scope"`
	Version        int                     `json:"version"`
	Entries        map[string]ContextEntry `json:"entries"`
	CreatedAt      time.Time               `json:"createdAt"`
	Delivered      bool                    `json:"delivered"`
	DeliveryError  string                  `json:"deliveryError,omitempty"`
}

// Handoff adds req.To as a participant and pushes the scoped context to it.
// A failed push is reported on the package rather than returned.
func (s *Synchronizer) Handoff(ctx context.Context, req HandoffRequest) (HandoffPackage, error) {
	log := s.logger.WithConversation(req.ConversationID).With("from", req.From, "to", req.To)

	if req.Scope == "" {
		req.Scope = ScopeFull
	}
	if err := validateHandoff(req); err != nil {
		log.Failure("handoff rejected", err)
		return HandoffPackage{}, err
	}

	s.mu.Lock()
	state, err := s.load(req.ConversationID)
	if err != nil {
		s.mu.Unlock()
		log.Failure("handoff rejected", err)
		return HandoffPackage{}, err
	}
	if !state.Context.IsParticipant(req.From) {
		s.mu.Unlock()
		verr := gwerrors.NewValidationError("agent is not a participant").
			WithField("fromAgent").WithValue(req.From).WithCause(gwerrors.ErrNotParticipant)
		log.Failure("handoff rejected", verr)
		return HandoffPackage{}, verr
	}
	if state.Context.addParticipant(req.To) {
		s.repo.Save(state)
		s.refresh(state)
	}
	scoped := state.Context.Clone()
	scoped.Entries = scopeEntries(state.Context.Entries, req.Scope, req.Keys)
	s.mu.Unlock()

	pkg := HandoffPackage{
		ConversationID: req.ConversationID,
		SyncID:         scoped.SyncID,
		From:           req.From,
		To:             req.To,
		Scope:          req.Scope,
		Version:        scoped.Version,
		Entries:        scoped.Entries,
		CreatedAt:      s.now(),
	}
	if err := s.deliverOne(ctx, req.To, scoped.Clone()); err != nil {
		pkg.DeliveryError = err.Error()
		log.Failure("handoff delivery failed", err)
	} else {
		pkg.Delivered = true
	}

	log.Info("context handed off", "scope", string(req.Scope), "entries", len(pkg.Entries), "delivered", pkg.Delivered)
	s.publish(event.NewContextHandedOffEvent(req.ConversationID, req.From, req.To,
		string(req.Scope), len(pkg.Entries), pkg.Delivered))
	return pkg, nil
}

func validateHandoff(req HandoffRequest) error {
	switch {
	case req.To == "":
		return gwerrors.NewValidationError("target agent is required").WithField("toAgent")
	case req.From == req.To:
		return gwerrors.NewValidationError("cannot hand off to the same agent").WithField("toAgent").WithValue(req.To)
	case !req.Scope.Valid():
		return gwerrors.NewValidationError("unknown handoff scope").WithField("scope").WithValue(req.Scope)
	case req.Scope == ScopeFocused && len(req.Keys) == 0:
		return gwerrors.NewValidationError("focused handoff needs at least one key").WithField("keys")
	}
	return nil
}

func scopeEntries(entries map[string]ContextEntry, scope HandoffScope, keys []string) map[string]ContextEntry {
	switch scope {
	case ScopeFocused:
		out := make(map[string]ContextEntry, len(keys))
		for _, k := range keys {
			if e, ok := entries[k]; ok {
				out[k] = e.Clone()
			}
		}
		return out
	case ScopeMinimal:
		out := make(map[string]ContextEntry, len(entries))
		for k, e := range entries {
			out[k] = ContextEntry{
				Key:            e.Key,
				Version:        e.Version,
				Timestamp:      e.Timestamp,
				LastModifiedBy: e.LastModifiedBy,
				Checksum:       e.Checksum,
			}
		}
		return out
	default:
		return cloneEntries(entries)
	}
}
