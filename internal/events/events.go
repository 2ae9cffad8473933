// Package events provides the registry of reserved fallback flows.
//
// Ten reserved event kinds exist purely as fallback behaviors the engine
// redirects into: cancel, cannot-handle, chit-chat, clarify, human
// handoff, completed, continue-interrupted, correction, internal-error
// and skip-question. Each resolves to a caller-supplied override when
// one is tagged with the kind, and to a built-in canned-reply flow
// otherwise, so embedding applications can customize tone and wording
// without touching engine logic.
package events

import (
	"log/slog"

	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
)

// Registry maps every reserved event kind to a flow, read-only after
// construction and safe to share across sessions.
type Registry struct {
	byKind map[models.EventKind]*flow.Flow
	byName map[string]*flow.Flow
}

// NewRegistry builds the registry from the built-in defaults, replaced
// by any supplied flow tagged as overriding an event kind.
func NewRegistry(overrides ...*flow.Flow) *Registry {
	r := &Registry{
		byKind: make(map[models.EventKind]*flow.Flow),
		byName: make(map[string]*flow.Flow),
	}
	for _, kind := range models.EventKinds() {
		r.byKind[kind] = defaultFlow(kind)
	}
	for _, f := range overrides {
		if f.Overrides == "" {
			continue
		}
		if _, ok := r.byKind[f.Overrides]; !ok {
			slog.Warn("Flow overrides unknown event kind", "flow", f.Name, "kind", f.Overrides)
			continue
		}
		r.byKind[f.Overrides] = f
	}
	for _, f := range r.byKind {
		r.byName[f.Name] = f
	}
	return r
}

// Flow returns the flow registered for an event kind.
func (r *Registry) Flow(kind models.EventKind) *flow.Flow {
	return r.byKind[kind]
}

// FlowByName resolves an event flow by its flow name, as needed when a
// persisted queue entry or CallFlow action references one.
func (r *Registry) FlowByName(name string) (*flow.Flow, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Flows returns every registered event flow.
func (r *Registry) Flows() []*flow.Flow {
	out := make([]*flow.Flow, 0, len(r.byKind))
	for _, kind := range models.EventKinds() {
		out = append(out, r.byKind[kind])
	}
	return out
}
