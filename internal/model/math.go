package model

import "math"

// Vec3 is a position or direction in world space
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum of v and o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v multiplied by a scalar
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Cross returns the cross product of v and o
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Quat is a rotation quaternion. The zero value is not a valid rotation;
// use IdentityQuat for "no rotation".
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuat returns the identity rotation
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// Magnitude returns the quaternion's length
func (q Quat) Magnitude() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// IsFinite reports whether every component is a finite number
func (q Quat) IsFinite() bool {
	for _, c := range [4]float64{q.X, q.Y, q.Z, q.W} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Normalized returns q scaled to unit length.
// The caller must ensure the magnitude is non-zero.
func (q Quat) Normalized() Quat {
	m := q.Magnitude()
	return Quat{X: q.X / m, Y: q.Y / m, Z: q.Z / m, W: q.W / m}
}

// RotateVector applies the rotation to v using the optimized form of
// q * v * q^-1: v + 2*cross(q.xyz, cross(q.xyz, v) + w*v)
func (q Quat) RotateVector(v Vec3) Vec3 {
	qv := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	c := qv.Cross(qv.Cross(v).Add(v.Scale(q.W)))
	return v.Add(c.Scale(2))
}

// Forward returns the rotation applied to the canonical +Z forward axis
func (q Quat) Forward() Vec3 {
	return q.RotateVector(Vec3{Z: 1})
}
