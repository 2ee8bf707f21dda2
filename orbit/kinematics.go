package orbit

import (
	"math"

	"github.com/echoflaresat/orbitview/vectors"
)

// EarthRange is the radius of earth's orbit around the sun.
const EarthRange = 4.75

// Self-rotation per rendered frame, in radians. Not scaled by frame time.
const (
	SunSpin   = 0.005
	EarthSpin = 0.04
	MoonSpin  = 0.03
)

var (
	moonBase = vectors.New(1.0, -0.8, 0.0).Normalize()
	moonAxis = moonBase.Cross(vectors.New(0, 0, -1)).Normalize()
)

// EarthPosition is earth's place on its orbit t seconds in: a circle of
// radius EarthRange in the XZ plane at 1 rad/s.
func EarthPosition(t float64) vectors.Vec3 {
	return vectors.New(math.Cos(t)*EarthRange, 0, -math.Sin(t)*EarthRange)
}

// MoonOffset is the unit vector from earth to moon at time t. The tilted
// base vector turns about its tangent axis at π/2 rad/s.
func MoonOffset(t float64) vectors.Vec3 {
	return moonBase.RotateAxisAngle(moonAxis, math.Pi*t/2)
}

func MoonPosition(t float64) vectors.Vec3 {
	return EarthPosition(t).Add(MoonOffset(t))
}
