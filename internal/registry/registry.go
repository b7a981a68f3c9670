// Package registry owns the identity -> representation mapping and the scene
// attach/detach side effects that keep the scene host in agreement with it.
//
// A Registry is not safe for concurrent use. Exactly one goroutine (the
// reconcile loop's writer) may touch it; everyone else goes through
// reconcile.Loop.Inspect.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/surfacectl/internal/scene"
	"github.com/danmuck/surfacectl/internal/surface"
)

var (
	ErrNilRepresentation = errors.New("registry: representation is nil")
	ErrIdentityMismatch  = errors.New("registry: representation identity mismatch")
)

// Outcome reports what an Upsert did.
type Outcome uint8

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeReplaced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Registry holds at most one attached representation per identity.
type Registry struct {
	host   scene.Host
	parent string
	items  map[surface.Identity]*surface.Representation
}

func New(host scene.Host, parent string) *Registry {
	return &Registry{
		host:   host,
		parent: parent,
		items:  make(map[surface.Identity]*surface.Representation),
	}
}

func (r *Registry) Parent() string {
	return r.parent
}

// Upsert installs rep for id. A previous representation is detached before
// the new one is attached, so the scene never shows both or neither.
func (r *Registry) Upsert(id surface.Identity, rep *surface.Representation) (Outcome, error) {
	if rep == nil {
		return 0, ErrNilRepresentation
	}
	if rep.ID != id {
		return 0, fmt.Errorf("%w: key %s, representation %s", ErrIdentityMismatch, id, rep.ID)
	}

	outcome := OutcomeCreated
	rep.Generation = 1
	if old, ok := r.items[id]; ok {
		r.host.Detach(old)
		rep.Generation = old.Generation + 1
		outcome = OutcomeReplaced
	}
	r.items[id] = rep
	r.host.Attach(r.parent, rep)
	return outcome, nil
}

// Remove detaches and forgets id. Unknown identities are a no-op.
func (r *Registry) Remove(id surface.Identity) bool {
	rep, ok := r.items[id]
	if !ok {
		return false
	}
	r.host.Detach(rep)
	delete(r.items, id)
	return true
}

func (r *Registry) Get(id surface.Identity) (*surface.Representation, bool) {
	rep, ok := r.items[id]
	return rep, ok
}

func (r *Registry) Len() int {
	return len(r.items)
}

// IDs returns identities in byte order.
func (r *Registry) IDs() []surface.Identity {
	ids := make([]surface.Identity, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Snapshot returns value copies in identity order. Meshes are shared; callers
// must treat them as read-only.
func (r *Registry) Snapshot() []surface.Representation {
	ids := r.IDs()
	out := make([]surface.Representation, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.items[id])
	}
	return out
}

// Clear detaches every representation and empties the registry.
func (r *Registry) Clear() int {
	n := 0
	for _, id := range r.IDs() {
		if r.Remove(id) {
			n++
		}
	}
	return n
}
