package surface

import "math"

// Vec3 is a point or direction in meters.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Transform is a rigid transform stored as a column-major 4x4 matrix, the
// layout anchor providers report originFromAnchor in.
type Transform [16]float32

func IdentityTransform() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func Translation(x, y, z float32) Transform {
	t := IdentityTransform()
	t[12], t[13], t[14] = x, y, z
	return t
}

// RotationY returns a rotation about the up axis by radians.
func RotationY(radians float64) Transform {
	s, c := float32(math.Sin(radians)), float32(math.Cos(radians))
	t := IdentityTransform()
	t[0], t[2] = c, -s
	t[8], t[10] = s, c
	return t
}

// RotationX returns a rotation about the X axis by radians. Providers tilt
// vertical planes this way so their local Y is the horizontal normal.
func RotationX(radians float64) Transform {
	s, c := float32(math.Sin(radians)), float32(math.Cos(radians))
	t := IdentityTransform()
	t[5], t[6] = c, s
	t[9], t[10] = -s, c
	return t
}

// Mul returns t*o, applying o first.
func (t Transform) Mul(o Transform) Transform {
	var out Transform
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += t[k*4+row] * o[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

func (t Transform) Position() Vec3 {
	return Vec3{X: t[12], Y: t[13], Z: t[14]}
}

// Apply maps a local point into the transform's parent space.
func (t Transform) Apply(v Vec3) Vec3 {
	return Vec3{
		X: t[0]*v.X + t[4]*v.Y + t[8]*v.Z + t[12],
		Y: t[1]*v.X + t[5]*v.Y + t[9]*v.Z + t[13],
		Z: t[2]*v.X + t[6]*v.Y + t[10]*v.Z + t[14],
	}
}

func (t Transform) IsFinite() bool {
	for _, v := range t {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
