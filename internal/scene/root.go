package scene

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/surface"
)

// Root is an in-memory scene graph: named parent entities with attached
// representations as children.
type Root struct {
	mu       sync.RWMutex
	parents  map[*surface.Representation]string
	children map[string]map[*surface.Representation]struct{}
	attaches atomic.Uint64
	detaches atomic.Uint64
}

func NewRoot() *Root {
	return &Root{
		parents:  make(map[*surface.Representation]string),
		children: make(map[string]map[*surface.Representation]struct{}),
	}
}

func (r *Root) Attach(parent string, rep *surface.Representation) {
	if rep == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.parents[rep]; ok {
		log.Warn().
			Str("component", "scene").
			Stringer("surface", rep.ID).
			Str("parent", current).
			Msg("attach ignored, representation already attached")
		return
	}
	kids, ok := r.children[parent]
	if !ok {
		kids = make(map[*surface.Representation]struct{})
		r.children[parent] = kids
	}
	kids[rep] = struct{}{}
	r.parents[rep] = parent
	r.attaches.Add(1)
}

func (r *Root) Detach(rep *surface.Representation) {
	if rep == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.parents[rep]
	if !ok {
		log.Warn().
			Str("component", "scene").
			Stringer("surface", rep.ID).
			Msg("detach ignored, representation not attached")
		return
	}
	delete(r.parents, rep)
	delete(r.children[parent], rep)
	if len(r.children[parent]) == 0 {
		delete(r.children, parent)
	}
	r.detaches.Add(1)
}

// Len counts attached representations across all parents.
func (r *Root) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parents)
}

// Children returns copies of the representations under parent.
func (r *Root) Children(parent string) []surface.Representation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]surface.Representation, 0, len(r.children[parent]))
	for rep := range r.children[parent] {
		out = append(out, *rep)
	}
	sortByID(out)
	return out
}

// Representations returns copies of everything attached.
func (r *Root) Representations() []surface.Representation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]surface.Representation, 0, len(r.parents))
	for rep := range r.parents {
		out = append(out, *rep)
	}
	sortByID(out)
	return out
}

// Counters returns lifetime attach and detach totals.
func (r *Root) Counters() (attaches, detaches uint64) {
	return r.attaches.Load(), r.detaches.Load()
}

func sortByID(reps []surface.Representation) {
	sort.Slice(reps, func(i, j int) bool {
		return bytes.Compare(reps[i].ID[:], reps[j].ID[:]) < 0
	})
}
