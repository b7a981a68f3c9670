// Package geometry builds renderable meshes from surface descriptors.
//
// A build either returns a complete mesh or an *Error matching ErrGeometry.
// Builders hold no mutable state and are safe to call from any goroutine.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/surfacectl/internal/surface"
)

var ErrGeometry = errors.New("geometry: build failed")

// Error describes why one surface's mesh could not be built.
type Error struct {
	ID     surface.Identity
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("geometry: surface %s: %s", e.ID, e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == ErrGeometry
}

// Limits bound the outlines a builder accepts.
type Limits struct {
	MaxVertices int
	// MinArea is the smallest accepted polygon area in square meters.
	MinArea float32
}

func DefaultLimits() Limits {
	return Limits{
		MaxVertices: 4096,
		MinArea:     1e-4,
	}
}

// PolygonBuilder triangulates a descriptor's outline in the anchor's XZ plane.
type PolygonBuilder struct {
	limits Limits
}

func NewPolygonBuilder(limits Limits) *PolygonBuilder {
	def := DefaultLimits()
	if limits.MaxVertices <= 0 {
		limits.MaxVertices = def.MaxVertices
	}
	if limits.MinArea <= 0 {
		limits.MinArea = def.MinArea
	}
	return &PolygonBuilder{limits: limits}
}

func (b *PolygonBuilder) Build(d surface.Descriptor) (surface.Mesh, error) {
	fail := func(format string, args ...any) (surface.Mesh, error) {
		return surface.Mesh{}, &Error{ID: d.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if n := len(d.Outline); n < 3 {
		return fail("outline has %d vertices, need at least 3", n)
	} else if n > b.limits.MaxVertices {
		return fail("outline has %d vertices, limit is %d", n, b.limits.MaxVertices)
	}
	for i, v := range d.Outline {
		if !v.IsFinite() {
			return fail("outline vertex %d is not finite", i)
		}
	}

	pts := simplify(d.Outline)
	if len(pts) < 3 {
		return fail("outline collapses to %d distinct vertices", len(pts))
	}
	area := signedArea(pts)
	if float32(math.Abs(float64(area))) < b.limits.MinArea {
		return fail("degenerate outline (area %.6f)", area)
	}
	if area < 0 {
		reverse(pts)
		area = -area
	}

	if selfIntersects(pts) {
		return fail("outline is not a simple polygon")
	}
	indices, ok := earClip(pts)
	if !ok {
		return fail("outline is not a simple polygon")
	}

	mesh := surface.Mesh{
		Vertices: pts,
		Indices:  indices,
		Area:     area,
	}
	mesh.Min, mesh.Max = bounds(pts)
	return mesh, nil
}

// simplify drops repeated points, the closing duplicate and collinear points.
func simplify(in []surface.Vec3) []surface.Vec3 {
	pts := make([]surface.Vec3, 0, len(in))
	for _, v := range in {
		if len(pts) > 0 && samePoint(pts[len(pts)-1], v) {
			continue
		}
		pts = append(pts, v)
	}
	for len(pts) > 1 && samePoint(pts[0], pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}

	for removed := true; removed && len(pts) >= 3; {
		removed = false
		for i := 0; i < len(pts) && len(pts) >= 3; i++ {
			prev := pts[(i+len(pts)-1)%len(pts)]
			next := pts[(i+1)%len(pts)]
			if collinear(prev, pts[i], next) {
				pts = append(pts[:i], pts[i+1:]...)
				removed = true
				i--
			}
		}
	}
	return pts
}

// earClip triangulates a counter-clockwise simple polygon.
func earClip(pts []surface.Vec3) ([]uint32, bool) {
	n := len(pts)
	ring := make([]int, n)
	for i := range ring {
		ring[i] = i
	}
	indices := make([]uint32, 0, 3*(n-2))

	for len(ring) > 3 {
		clipped := false
		for i := 0; i < len(ring); i++ {
			a := ring[(i+len(ring)-1)%len(ring)]
			b := ring[i]
			c := ring[(i+1)%len(ring)]
			if !isEar(pts, ring, a, b, c) {
				continue
			}
			indices = append(indices, uint32(a), uint32(b), uint32(c))
			ring = append(ring[:i], ring[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, false
		}
	}
	indices = append(indices, uint32(ring[0]), uint32(ring[1]), uint32(ring[2]))
	return indices, true
}

// selfIntersects reports whether any two non-adjacent edges touch.
func selfIntersects(pts []surface.Vec3) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		p1, p2 := pts[i], pts[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsTouch(p1, p2, pts[j], pts[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

func segmentsTouch(p1, p2, q1, q2 surface.Vec3) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if straddles(d1, d2) && straddles(d3, d4) {
		return true
	}
	return (math.Abs(d1) <= epsilon && onSegment(q1, q2, p1)) ||
		(math.Abs(d2) <= epsilon && onSegment(q1, q2, p2)) ||
		(math.Abs(d3) <= epsilon && onSegment(p1, p2, q1)) ||
		(math.Abs(d4) <= epsilon && onSegment(p1, p2, q2))
}

func straddles(a, b float64) bool {
	return (a > epsilon && b < -epsilon) || (a < -epsilon && b > epsilon)
}

// onSegment assumes p is collinear with a-b.
func onSegment(a, b, p surface.Vec3) bool {
	return p.X >= min(a.X, b.X)-epsilon && p.X <= max(a.X, b.X)+epsilon &&
		p.Z >= min(a.Z, b.Z)-epsilon && p.Z <= max(a.Z, b.Z)+epsilon
}

func isEar(pts []surface.Vec3, ring []int, a, b, c int) bool {
	pa, pb, pc := pts[a], pts[b], pts[c]
	if cross(pa, pb, pc) <= 0 {
		return false
	}
	for _, idx := range ring {
		if idx == a || idx == b || idx == c {
			continue
		}
		p := pts[idx]
		if samePoint(p, pa) || samePoint(p, pb) || samePoint(p, pc) {
			continue
		}
		if inTriangle(p, pa, pb, pc) {
			return false
		}
	}
	return true
}

const epsilon = 1e-7

// cross is the z of (b-a)x(c-a) in the XZ plane; positive turns left.
func cross(a, b, c surface.Vec3) float64 {
	return float64(b.X-a.X)*float64(c.Z-a.Z) - float64(b.Z-a.Z)*float64(c.X-a.X)
}

func collinear(a, b, c surface.Vec3) bool {
	return math.Abs(cross(a, b, c)) <= epsilon
}

func inTriangle(p, a, b, c surface.Vec3) bool {
	return cross(a, b, p) >= -epsilon && cross(b, c, p) >= -epsilon && cross(c, a, p) >= -epsilon
}

func samePoint(a, b surface.Vec3) bool {
	return math.Abs(float64(a.X-b.X)) <= epsilon && math.Abs(float64(a.Z-b.Z)) <= epsilon
}

func signedArea(pts []surface.Vec3) float32 {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += float64(pts[i].X)*float64(pts[j].Z) - float64(pts[j].X)*float64(pts[i].Z)
	}
	return float32(sum / 2)
}

func reverse(pts []surface.Vec3) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

func bounds(pts []surface.Vec3) (surface.Vec3, surface.Vec3) {
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo.X = min(lo.X, p.X)
		lo.Y = min(lo.Y, p.Y)
		lo.Z = min(lo.Z, p.Z)
		hi.X = max(hi.X, p.X)
		hi.Y = max(hi.Y, p.Y)
		hi.Z = max(hi.Z, p.Z)
	}
	return lo, hi
}
