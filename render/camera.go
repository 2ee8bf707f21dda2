package render

import (
	"math"

	"github.com/echoflaresat/orbitview/vectors"
)

// Camera is a perspective pinhole camera. It looks along Forward with Up as
// the screen's vertical; Right completes the right-handed basis.
type Camera struct {
	FOVDeg   float64 // vertical field of view
	Aspect   float64 // width / height
	Near     float64
	Far      float64
	Position vectors.Vec3
	Forward  vectors.Vec3
	Right    vectors.Vec3
	Up       vectors.Vec3

	tanHalfFOV float64
}

// NewCamera returns a camera at the origin looking down -Z with +Y up.
func NewCamera(fovDeg, aspect, near, far float64) *Camera {
	return &Camera{
		FOVDeg:     fovDeg,
		Aspect:     aspect,
		Near:       near,
		Far:        far,
		Forward:    vectors.New(0, 0, -1),
		Right:      vectors.New(1, 0, 0),
		Up:         vectors.New(0, 1, 0),
		tanHalfFOV: math.Tan(fovDeg * math.Pi / 360.0),
	}
}

// SetAspect updates the projection after the output surface changed shape.
func (c *Camera) SetAspect(aspect float64) {
	c.Aspect = aspect
}

// LookAt turns the camera toward target, keeping world +Y as the up hint.
// A target equal to the camera position leaves the orientation unchanged.
func (c *Camera) LookAt(target vectors.Vec3) {
	fwd := target.Sub(c.Position).Normalize()
	if fwd.Norm() == 0 {
		return
	}

	globalUp := vectors.New(0, 1, 0)
	right := fwd.Cross(globalUp)
	if right.Norm() < 1e-6 {
		// looking straight up or down
		right = fwd.Cross(vectors.New(0, 0, 1))
	}
	right = right.Normalize()

	c.Forward = fwd
	c.Right = right
	c.Up = right.Cross(fwd).Normalize()
}

// Depth returns the distance of p in front of the camera along Forward.
func (c *Camera) Depth(p vectors.Vec3) float64 {
	return p.Sub(c.Position).Dot(c.Forward)
}

// ComputeRay returns the normalized viewing direction through pixel (i,j)
// given the image dimensions (width,height). i,j can be fractional (for supersampling).
func (c *Camera) ComputeRay(i, j float64, width, height int) vectors.Vec3 {
	w := float64(width)
	h := float64(height)

	// NDC in [-1, +1] through pixel centers, flip Y to make +up in screen space.
	xNDC := 2.0*(i+0.5)/w - 1.0
	yNDC := 1.0 - 2.0*(j+0.5)/h

	xPlane := xNDC * c.tanHalfFOV * c.Aspect
	yPlane := yNDC * c.tanHalfFOV

	dir := c.Right.Scale(xPlane).
		Add(c.Up.Scale(yPlane)).
		Add(c.Forward)

	return dir.Normalize()
}
