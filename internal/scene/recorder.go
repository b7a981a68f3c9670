// Package scene holds scene host adapters: an in-memory scene graph, a
// call-recording decorator and a top-down snapshot renderer.
//
// Hosts here are safe for concurrent reads; writes are expected from the
// single registry owner.
package scene

import (
	"sync"

	"github.com/danmuck/surfacectl/internal/surface"
)

// Host reflects registry state. Calls are fire-and-forget and always arrive
// from the registry's owning goroutine.
type Host interface {
	Attach(parent string, rep *surface.Representation)
	Detach(rep *surface.Representation)
}

type Op string

const (
	OpAttach Op = "attach"
	OpDetach Op = "detach"
)

// Call is one recorded host call.
type Call struct {
	Op         Op
	Parent     string
	ID         surface.Identity
	Generation uint64
	Rep        *surface.Representation
}

// Recorder keeps an ordered log of host calls and forwards them to next.
type Recorder struct {
	mu       sync.Mutex
	next     Host
	calls    []Call
	attached map[*surface.Representation]string
}

// NewRecorder wraps next; next may be nil.
func NewRecorder(next Host) *Recorder {
	return &Recorder{
		next:     next,
		attached: make(map[*surface.Representation]string),
	}
}

func (r *Recorder) Attach(parent string, rep *surface.Representation) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: OpAttach, Parent: parent, ID: rep.ID, Generation: rep.Generation, Rep: rep})
	r.attached[rep] = parent
	r.mu.Unlock()
	if r.next != nil {
		r.next.Attach(parent, rep)
	}
}

func (r *Recorder) Detach(rep *surface.Representation) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: OpDetach, ID: rep.ID, Generation: rep.Generation, Rep: rep})
	delete(r.attached, rep)
	r.mu.Unlock()
	if r.next != nil {
		r.next.Detach(rep)
	}
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor filters the log to one identity.
func (r *Recorder) CallsFor(id surface.Identity) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range r.calls {
		if c.ID == id {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Attached counts currently attached representations per identity.
func (r *Recorder) Attached() map[surface.Identity]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[surface.Identity]int, len(r.attached))
	for rep := range r.attached {
		out[rep.ID]++
	}
	return out
}

// IsAttached reports whether this exact representation is attached.
func (r *Recorder) IsAttached(rep *surface.Representation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.attached[rep]
	return ok
}
