package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/echoflaresat/orbitview/colors"
	"github.com/echoflaresat/orbitview/vectors"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidSize = errors.New("render: surface size must be positive")

// Frame is one finished image. Frames are never modified after publication.
type Frame struct {
	Seq   uint64
	Image *image.NRGBA
}

// Renderer draws a scene through a camera onto its own output surface.
type Renderer struct {
	Name        string
	ClearColor  colors.Color4
	Supersample int // samples per pixel along each axis
	Workers     int // concurrent rows; <= 0 means GOMAXPROCS

	width, height int
	seq           uint64
	frame         atomic.Pointer[Frame]
}

func NewRenderer(name string, width, height int) (*Renderer, error) {
	r := &Renderer{
		Name:        name,
		ClearColor:  colors.Black(),
		Supersample: 1,
	}
	if err := r.SetSize(width, height); err != nil {
		return nil, err
	}
	return r, nil
}

// SetSize resizes the output surface. The next Render uses the new size.
func (r *Renderer) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	r.width, r.height = width, height
	return nil
}

func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// Frame returns the most recently rendered frame, or nil before the first.
func (r *Renderer) Frame() *Frame {
	return r.frame.Load()
}

// GenerateSupersamplingOffsets returns n×n offsets in [-0.5, +0.5] for
// supersampling, as pairs (dx, dy) with pixel-center spacing.
func GenerateSupersamplingOffsets(n int) [][2]float64 {
	if n <= 0 {
		return nil
	}
	step := 1.0 / float64(n)
	out := make([][2]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx := (float64(i)+0.5)*step - 0.5
			dy := (float64(j)+0.5)*step - 0.5
			out = append(out, [2]float64{dx, dy})
		}
	}
	return out
}

// Render ray traces scene through camera and publishes the result as the
// renderer's current frame. Rows are traced concurrently; the scene must not
// be mutated until Render returns.
func (r *Renderer) Render(ctx context.Context, scene *Scene, camera *Camera) (*Frame, error) {
	W, H := r.width, r.height
	offsets := GenerateSupersamplingOffsets(max(r.Supersample, 1))
	invN := 1.0 / float64(len(offsets))

	t := tracer{
		objects: scene.flatten(),
		lights:  scene.lights,
		camera:  camera,
		clear:   r.ClearColor,
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	img := image.NewNRGBA(image.Rect(0, 0, W, H))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y := 0; y < H; y++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < W; x++ {
				accum := colors.Color4{}
				for _, off := range offsets {
					dir := camera.ComputeRay(float64(x)+off[0], float64(y)+off[1], W, H)
					accum = accum.Add(t.trace(dir))
				}
				img.SetNRGBA(x, y, accum.Scale(invN).ToNRGBA())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.seq++
	f := &Frame{Seq: r.seq, Image: img}
	r.frame.Store(f)
	return f, nil
}

// tracer holds the per-pass state shared by all rows.
type tracer struct {
	objects []placed
	lights  []Light
	camera  *Camera
	clear   colors.Color4
}

type worldHit struct {
	obj    *placed
	t      float64
	normal vectors.Vec3
	u, v   float64
}

// trace returns the color seen along dir from the camera position: the
// nearest opaque surface with transparent surfaces in front of it blended
// back to front.
func (tr *tracer) trace(dir vectors.Vec3) colors.Color4 {
	origin := tr.camera.Position
	depthScale := dir.Dot(tr.camera.Forward)

	var opaque *worldHit
	var glass []worldHit
	for i := range tr.objects {
		obj := &tr.objects[i]
		hit, ok := tr.intersect(obj, origin, dir)
		if !ok {
			continue
		}
		depth := hit.t * depthScale
		if depth < tr.camera.Near || depth > tr.camera.Far {
			continue
		}
		if obj.mesh.Material.Transparent {
			glass = append(glass, hit)
			continue
		}
		if opaque == nil || hit.t < opaque.t {
			h := hit
			opaque = &h
		}
	}

	c := tr.clear
	if opaque != nil {
		c = tr.shade(opaque)
	}

	sort.Slice(glass, func(i, j int) bool { return glass[i].t > glass[j].t })
	for i := range glass {
		if opaque != nil && glass[i].t >= opaque.t {
			continue
		}
		c = tr.shade(&glass[i]).Over(c, glass[i].obj.mesh.Material.Opacity)
	}
	return c.WithAlpha(1)
}

func (tr *tracer) intersect(obj *placed, origin, dir vectors.Vec3) (worldHit, bool) {
	w := obj.world
	// into the local frame; t is preserved because d is not renormalized
	o := obj.inv.Apply(origin.Sub(w.T)).Scale(1 / w.S)
	d := obj.inv.Apply(dir).Scale(1 / w.S)

	local, ok := obj.mesh.Geometry.intersect(o, d)
	if !ok {
		return worldHit{}, false
	}
	n := w.R.Apply(local.Normal)
	if n.Dot(dir) > 0 {
		if !obj.mesh.Material.DoubleSide {
			return worldHit{}, false
		}
		n = n.Scale(-1)
	}
	return worldHit{obj: obj, t: local.T, normal: n, u: local.U, v: local.V}, true
}

func (tr *tracer) shade(h *worldHit) colors.Color4 {
	mat := h.obj.mesh.Material
	base := mat.Color
	if mat.Map != nil {
		base = base.Mul(mat.Map.Sample(h.u, h.v))
	}
	if !mat.Lit {
		return base
	}

	light := colors.Color4{}
	for _, l := range tr.lights {
		light = light.Add(l.Illuminate(h.normal))
	}
	return colors.Color4{
		R: base.R * light.R,
		G: base.G * light.G,
		B: base.B * light.B,
		A: base.A,
	}
}
