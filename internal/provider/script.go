package provider

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/surfacectl/internal/surface"
)

// Step is one scripted event, emitted Delay after the previous step.
type Step struct {
	Delay time.Duration
	Event surface.Event
}

// Script is a timed event list. It serves as a provider directly and as the
// source behind an Endpoint.
type Script struct {
	Steps []Step
}

func (s *Script) Name() string {
	return "script"
}

func (s *Script) Len() int {
	return len(s.Steps)
}

func (s *Script) Events() []surface.Event {
	out := make([]surface.Event, len(s.Steps))
	for i, step := range s.Steps {
		out[i] = step.Event
	}
	return out
}

// Play emits every step in order, honouring delays, until emit fails or ctx
// ends.
func (s *Script) Play(ctx context.Context, emit func(context.Context, surface.Event) error) error {
	for _, step := range s.Steps {
		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := emit(ctx, step.Event); err != nil {
			return err
		}
	}
	return nil
}

func (s *Script) Start(ctx context.Context) (<-chan surface.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(chan surface.Event)
	go func() {
		defer close(out)
		_ = s.Play(ctx, func(ctx context.Context, ev surface.Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return out, nil
}

// RoomScanOptions shapes a synthetic room scan.
type RoomScanOptions struct {
	Seed int64
	// Interval separates consecutive events.
	Interval time.Duration
	// Refinements is the number of growing updates per surface after its
	// first detection.
	Refinements int
	Tables      int
	// Clutter adds an unclassified surface that is later removed, a surface
	// with an unrecognised category, a degenerate update and a removal for an
	// identity the provider never announced.
	Clutter bool
}

func DefaultRoomScanOptions() RoomScanOptions {
	return RoomScanOptions{
		Seed:        1,
		Interval:    50 * time.Millisecond,
		Refinements: 3,
		Tables:      1,
		Clutter:     true,
	}
}

type plannedSurface struct {
	id        surface.Identity
	category  surface.Category
	alignment surface.Alignment
	pose      surface.Transform
	outline   func(scale float32) []surface.Vec3
}

// RoomScan generates a deterministic scan of a box room: floor, ceiling, four
// walls and tables, discovered partially and refined round by round.
func RoomScan(opts RoomScanOptions) *Script {
	if opts.Refinements < 0 {
		opts.Refinements = 0
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	newID := func() surface.Identity {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return surface.NewIdentity()
		}
		return surface.Identity(id)
	}

	width := 4 + rng.Float32()*4
	depth := 3 + rng.Float32()*3
	height := 2.4 + rng.Float32()*0.6

	planned := []plannedSurface{
		{
			id: newID(), category: surface.CategoryFloor, alignment: surface.AlignmentHorizontal,
			pose: surface.IdentityTransform(), outline: rect(width, depth),
		},
		{
			id: newID(), category: surface.CategoryCeiling, alignment: surface.AlignmentHorizontal,
			pose: surface.Translation(0, height, 0), outline: rect(width, depth),
		},
	}
	walls := []struct {
		x, z   float32
		angle  float64
		length float32
	}{
		{0, -depth / 2, 0, width},
		{0, depth / 2, math.Pi, width},
		{width / 2, 0, -math.Pi / 2, depth},
		{-width / 2, 0, math.Pi / 2, depth},
	}
	for _, w := range walls {
		planned = append(planned, plannedSurface{
			id:        newID(),
			category:  surface.CategoryWall,
			alignment: surface.AlignmentVertical,
			pose:      surface.Translation(w.x, 0, w.z).Mul(surface.RotationY(w.angle)).Mul(surface.RotationX(-math.Pi / 2)),
			outline:   upright(w.length, height),
		})
	}
	for i := 0; i < opts.Tables; i++ {
		tw, td := 0.8+rng.Float32()*0.8, 0.6+rng.Float32()*0.4
		x := (rng.Float32() - 0.5) * (width - 2)
		z := (rng.Float32() - 0.5) * (depth - 2)
		planned = append(planned, plannedSurface{
			id:        newID(),
			category:  surface.CategoryTable,
			alignment: surface.AlignmentHorizontal,
			pose:      surface.Translation(x, 0.72, z).Mul(surface.RotationY(rng.Float64() * math.Pi)),
			outline:   rect(tw, td),
		})
	}
	var rug, odd plannedSurface
	if opts.Clutter {
		rug = plannedSurface{
			id: newID(), category: surface.CategoryOther, alignment: surface.AlignmentHorizontal,
			pose: surface.Translation(0, 0.01, 0), outline: rect(1.2, 0.8),
		}
		odd = plannedSurface{
			id: newID(), category: surface.Category(17), alignment: surface.AlignmentHorizontal,
			pose: surface.Translation(-width/4, 0.45, depth/4), outline: rect(0.5, 0.5),
		}
		planned = append(planned, rug, odd)
	}

	script := &Script{}
	emit := func(ev surface.Event) {
		script.Steps = append(script.Steps, Step{Delay: opts.Interval, Event: ev})
	}
	describe := func(p plannedSurface, scale float32) surface.Descriptor {
		return surface.Descriptor{
			ID:        p.id,
			Category:  p.category,
			Alignment: p.alignment,
			Outline:   p.outline(scale),
			Pose:      p.pose,
		}
	}

	rounds := opts.Refinements + 1
	for round := 0; round < rounds; round++ {
		order := rng.Perm(len(planned))
		scale := float32(round+1) / float32(rounds)
		for _, i := range order {
			d := describe(planned[i], scale)
			if round == 0 {
				emit(surface.Added(d))
			} else {
				emit(surface.Updated(d))
			}
		}
	}

	if opts.Clutter {
		degenerate := describe(planned[0], 1)
		degenerate.Outline = []surface.Vec3{{X: 0}, {X: 1}, {X: 2}}
		emit(surface.Updated(degenerate))
		emit(surface.Removed(rug.id))
		emit(surface.Removed(newID()))
	}
	return script
}

func rect(w, d float32) func(float32) []surface.Vec3 {
	return func(scale float32) []surface.Vec3 {
		hw, hd := w*scale/2, d*scale/2
		return []surface.Vec3{
			{X: -hw, Z: -hd}, {X: hw, Z: -hd}, {X: hw, Z: hd}, {X: -hw, Z: hd},
		}
	}
}

func upright(length, height float32) func(float32) []surface.Vec3 {
	return func(scale float32) []surface.Vec3 {
		hl, h := length*scale/2, height*scale
		return []surface.Vec3{
			{X: -hl}, {X: hl}, {X: hl, Z: h}, {X: -hl, Z: h},
		}
	}
}
