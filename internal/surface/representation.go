package surface

// Mesh is triangulated surface geometry in anchor-local coordinates.
type Mesh struct {
	Vertices []Vec3
	// Indices holds triangles wound with positive area in the XZ plane.
	Indices []uint32
	Min     Vec3
	Max     Vec3
	Area    float32
}

func (m Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Representation is the engine-owned renderable proxy for one identity. It is
// immutable once installed; updates install a new one.
type Representation struct {
	ID    Identity
	Mesh  Mesh
	Style StyleToken
	Pose  Transform
	// Generation is 1 on creation and increases by one per replacement.
	Generation uint64
}

// WorldVertices maps the mesh into the pose's parent space.
func (r *Representation) WorldVertices() []Vec3 {
	out := make([]Vec3, len(r.Mesh.Vertices))
	for i, v := range r.Mesh.Vertices {
		out[i] = r.Pose.Apply(v)
	}
	return out
}
