package render

import (
	"math"

	"github.com/echoflaresat/orbitview/vectors"
)

// hitEpsilon rejects self-intersections at the ray origin.
const hitEpsilon = 1e-9

// surfaceHit is an intersection expressed in a geometry's local frame.
type surfaceHit struct {
	T      float64
	Normal vectors.Vec3 // unit, local
	U, V   float64      // texture coordinates, V measured from the top
}

// Geometry is a shape in its own local frame. Rays handed to intersect are
// not normalized so that T is shared with the world-space ray.
type Geometry interface {
	intersect(o, d vectors.Vec3) (surfaceHit, bool)
}

// SphereGeometry is a sphere centered at the local origin.
type SphereGeometry struct {
	Radius float64
}

// BoxGeometry is an axis-aligned box centered at the local origin.
type BoxGeometry struct {
	Width, Height, Depth float64
}

// RingGeometry is a flat annulus in the local XY plane facing +Z.
type RingGeometry struct {
	Inner, Outer float64
}

func (g SphereGeometry) intersect(o, d vectors.Vec3) (surfaceHit, bool) {
	t := intersectSphere(o, d, g.Radius)
	if t < 0 {
		return surfaceHit{}, false
	}
	n := o.Add(d.Scale(t)).Scale(1.0 / g.Radius)
	u, v := sphereUV(n)
	return surfaceHit{T: t, Normal: n, U: u, V: v}, true
}

// sphereUV maps a unit normal onto the equirectangular layout: the seam sits
// on -X, u grows toward +Z and v=0 is the +Y pole.
func sphereUV(n vectors.Vec3) (float64, float64) {
	phi := math.Atan2(n.Z, -n.X)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	theta := math.Acos(math.Max(-1, math.Min(1, n.Y)))
	return phi / (2 * math.Pi), theta / math.Pi
}

// intersectSphere calculates the intersection of a ray (O + t*D) with a sphere
// of radius r at the origin. Returns the closest positive t, or -1.0 if there is none.
func intersectSphere(O, D vectors.Vec3, r float64) float64 {
	a := D.Dot(D)
	b := 2.0 * O.Dot(D)
	c := O.Dot(O) - r*r

	discriminant := b*b - 4.0*a*c
	if discriminant < 0 || a == 0 {
		return -1.0
	}

	sqrtDisc := math.Sqrt(discriminant)
	t1 := (-b - sqrtDisc) / (2.0 * a)
	t2 := (-b + sqrtDisc) / (2.0 * a)

	if t1 > hitEpsilon {
		return t1
	}
	if t2 > hitEpsilon {
		return t2
	}
	return -1.0
}

func (g BoxGeometry) intersect(o, d vectors.Vec3) (surfaceHit, bool) {
	half := vectors.New(g.Width/2, g.Height/2, g.Depth/2)

	tNear, tFar := math.Inf(-1), math.Inf(1)
	nearAxis, nearSign := -1, 0.0
	farAxis, farSign := -1, 0.0
	for axis := 0; axis < 3; axis++ {
		oa, da, ha := o.Component(axis), d.Component(axis), half.Component(axis)
		if math.Abs(da) < 1e-15 {
			if oa < -ha || oa > ha {
				return surfaceHit{}, false
			}
			continue
		}
		t0 := (-ha - oa) / da
		t1 := (ha - oa) / da
		s0, s1 := -1.0, 1.0
		if t0 > t1 {
			t0, t1 = t1, t0
			s0, s1 = s1, s0
		}
		if t0 > tNear {
			tNear, nearAxis, nearSign = t0, axis, s0
		}
		if t1 < tFar {
			tFar, farAxis, farSign = t1, axis, s1
		}
		if tNear > tFar {
			return surfaceHit{}, false
		}
	}

	t, axis, sign := tNear, nearAxis, nearSign
	if t <= hitEpsilon {
		t, axis, sign = tFar, farAxis, farSign
	}
	if t <= hitEpsilon || axis < 0 {
		return surfaceHit{}, false
	}
	return surfaceHit{T: t, Normal: axisNormal(axis, sign)}, true
}

func axisNormal(axis int, sign float64) vectors.Vec3 {
	switch axis {
	case 0:
		return vectors.New(sign, 0, 0)
	case 1:
		return vectors.New(0, sign, 0)
	default:
		return vectors.New(0, 0, sign)
	}
}

func (g RingGeometry) intersect(o, d vectors.Vec3) (surfaceHit, bool) {
	if math.Abs(d.Z) < 1e-15 {
		return surfaceHit{}, false
	}
	t := -o.Z / d.Z
	if t <= hitEpsilon {
		return surfaceHit{}, false
	}
	p := o.Add(d.Scale(t))
	r := math.Hypot(p.X, p.Y)
	if r < g.Inner || r > g.Outer {
		return surfaceHit{}, false
	}
	return surfaceHit{
		T:      t,
		Normal: vectors.New(0, 0, 1),
		U:      (r - g.Inner) / (g.Outer - g.Inner),
		V:      0.5,
	}, true
}
