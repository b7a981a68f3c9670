package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/danmuck/surfacectl/internal/surface"
)

func descriptor(outline ...surface.Vec3) surface.Descriptor {
	return surface.Descriptor{
		ID:       surface.NewIdentity(),
		Category: surface.CategoryFloor,
		Outline:  outline,
		Pose:     surface.IdentityTransform(),
	}
}

func xz(x, z float32) surface.Vec3 {
	return surface.Vec3{X: x, Z: z}
}

func TestBuildSquare(t *testing.T) {
	b := NewPolygonBuilder(DefaultLimits())
	mesh, err := b.Build(descriptor(xz(0, 0), xz(1, 0), xz(1, 1), xz(0, 1)))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if mesh.TriangleCount() != 2 {
		t.Fatalf("expected 2 triangles, got %d", mesh.TriangleCount())
	}
	if !closeTo(mesh.Area, 1) {
		t.Fatalf("unexpected area: %f", mesh.Area)
	}
	if mesh.Min != xz(0, 0) || mesh.Max != xz(1, 1) {
		t.Fatalf("unexpected bounds: %+v %+v", mesh.Min, mesh.Max)
	}
	assertTrianglesCoverArea(t, mesh)
}

func TestBuildClockwiseConcaveOutline(t *testing.T) {
	// L shape, clockwise, with a closing duplicate and a collinear midpoint.
	b := NewPolygonBuilder(DefaultLimits())
	mesh, err := b.Build(descriptor(
		xz(0, 0), xz(0, 2), xz(1, 2), xz(1, 1), xz(2, 1), xz(2, 0), xz(1, 0), xz(0, 0),
	))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(mesh.Vertices) != 6 {
		t.Fatalf("expected 6 vertices after simplify, got %d", len(mesh.Vertices))
	}
	if mesh.TriangleCount() != 4 {
		t.Fatalf("expected 4 triangles, got %d", mesh.TriangleCount())
	}
	if !closeTo(mesh.Area, 3) {
		t.Fatalf("unexpected area: %f", mesh.Area)
	}
	assertTrianglesCoverArea(t, mesh)
}

func TestBuildFailures(t *testing.T) {
	b := NewPolygonBuilder(Limits{MaxVertices: 8})
	nan := float32(math.NaN())
	cases := map[string]surface.Descriptor{
		"too few":        descriptor(xz(0, 0), xz(1, 0)),
		"too many":       descriptor(xz(0, 0), xz(1, 0), xz(2, 0), xz(3, 0), xz(3, 1), xz(2, 1), xz(1, 1), xz(0, 1), xz(0, 0.5)),
		"not finite":     descriptor(xz(0, 0), xz(nan, 0), xz(1, 1)),
		"collinear":      descriptor(xz(0, 0), xz(1, 0), xz(2, 0)),
		"repeated":       descriptor(xz(0, 0), xz(0, 0), xz(0, 0), xz(0, 0)),
		"bowtie":         descriptor(xz(0, 0), xz(1, 1), xz(1, 0), xz(0, 1)),
		"crossing edges": descriptor(xz(0, 0), xz(4, 3), xz(4, 0), xz(0, 1)),
		"touching edges": descriptor(xz(0, 0), xz(4, 0), xz(4, 4), xz(2, 0), xz(0, 4)),
		"below minimum":  descriptor(xz(0, 0), xz(0.001, 0), xz(0.001, 0.001)),
	}
	for name, d := range cases {
		_, err := b.Build(d)
		if !errors.Is(err, ErrGeometry) {
			t.Fatalf("%s: expected ErrGeometry, got %v", name, err)
		}
		var gerr *Error
		if !errors.As(err, &gerr) || gerr.ID != d.ID {
			t.Fatalf("%s: error does not carry identity: %v", name, err)
		}
	}
}

func TestBuildDoesNotAliasDescriptor(t *testing.T) {
	d := descriptor(xz(0, 0), xz(1, 0), xz(1, 1), xz(0, 1))
	mesh, err := NewPolygonBuilder(Limits{}).Build(d)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	d.Outline[0].X = 42
	for _, v := range mesh.Vertices {
		if v.X == 42 {
			t.Fatalf("mesh aliases descriptor outline")
		}
	}
}

func assertTrianglesCoverArea(t *testing.T, mesh surface.Mesh) {
	t.Helper()
	var total float64
	for i := 0; i < len(mesh.Indices); i += 3 {
		a := mesh.Vertices[mesh.Indices[i]]
		b := mesh.Vertices[mesh.Indices[i+1]]
		c := mesh.Vertices[mesh.Indices[i+2]]
		area := cross(a, b, c) / 2
		if area <= 0 {
			t.Fatalf("triangle %d has non-positive winding: %f", i/3, area)
		}
		total += area
	}
	if !closeTo(float32(total), mesh.Area) {
		t.Fatalf("triangles cover %f, polygon area %f", total, mesh.Area)
	}
}

func closeTo(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}
