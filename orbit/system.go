package orbit

import (
	"context"
	"fmt"
	"math"

	"github.com/echoflaresat/orbitview/config"
	"github.com/echoflaresat/orbitview/render"
	"github.com/echoflaresat/orbitview/texture"
)

// Body identifies one of the three textured spheres.
type Body int

const (
	Sun Body = iota
	Earth
	Moon
)

func (b Body) String() string {
	switch b {
	case Sun:
		return "sun"
	case Earth:
		return "earth"
	case Moon:
		return "moon"
	}
	return fmt.Sprintf("Body(%d)", int(b))
}

// System is the whole diagram: the scene graph, both camera rigs and the two
// output surfaces. It is not safe for concurrent use; one goroutine owns it.
type System struct {
	Scene *render.Scene

	Sun, Earth, Moon *render.Mesh
	Buildings        []*render.Mesh // children of Earth
	Rings            []*render.Mesh

	Camera    *render.Camera // primary, fixed pose
	Satellite *render.Camera // rides the moon, looks at earth

	Primary   *render.Renderer
	Secondary *render.Renderer
}

// Frames are the two images produced by one call to Frame.
type Frames struct {
	Primary   *render.Frame
	Satellite *render.Frame
}

// Build assembles the scene once. The only failure is an invalid cfg.
func Build(cfg config.Config, tex Textures) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}

	primary, err := newRenderer("primary", cfg.Primary, cfg.Render)
	if err != nil {
		return nil, err
	}
	secondary, err := newRenderer("satellite", cfg.Secondary, cfg.Render)
	if err != nil {
		return nil, err
	}

	s := &System{
		Scene:     render.NewScene(),
		Primary:   primary,
		Secondary: secondary,
	}

	s.Sun = body(Sun, cfg, cfg.Sun, tex.Sun)
	s.Earth = body(Earth, cfg, cfg.Earth, tex.Earth)
	s.Moon = body(Moon, cfg, cfg.Moon, tex.Moon)
	// moon starts above earth, then follows its own orbit
	s.Moon.Position = s.Earth.Position.Add(cfg.Moon.Position.Vec3())

	for i, b := range cfg.Buildings {
		size := cfg.BuildingSize
		m := render.NewMesh(
			fmt.Sprintf("building-%d", i),
			render.BoxGeometry{Width: size, Height: size, Depth: size},
			render.LambertMaterial(b.Color.Color4),
		)
		m.Position = b.Position.Vec3()
		s.Earth.Add(m)
		s.Buildings = append(s.Buildings, m)
	}

	s.Scene.Add(s.Sun)
	s.Scene.Add(s.Earth)
	s.Scene.Add(s.Moon)

	ringMat := render.BasicMaterial(cfg.Rings.Color.Color4)
	ringMat.Transparent = true
	ringMat.Opacity = cfg.Rings.Opacity
	ringMat.DoubleSide = true
	ring := render.NewMesh("ring", render.RingGeometry{
		Inner: EarthRange - cfg.Rings.HalfWidth,
		Outer: EarthRange + cfg.Rings.HalfWidth,
	}, ringMat)
	ring.Rotation.X = math.Pi / 2
	for i, scale := range cfg.Rings.Scales {
		r := ring.Clone()
		r.Name = fmt.Sprintf("ring-%d", i)
		r.Scale = scale
		s.Scene.Add(r)
		s.Rings = append(s.Rings, r)
	}

	s.Scene.AddLight(&render.DirectionalLight{
		Color:     cfg.DirectionalLight.Color.Color4,
		Intensity: cfg.DirectionalLight.Intensity,
		Position:  cfg.DirectionalLight.Position.Vec3(),
	})
	s.Scene.AddLight(&render.AmbientLight{
		Color:     cfg.AmbientLight.Color.Color4,
		Intensity: cfg.AmbientLight.Intensity,
	})

	w, h := primary.Size()
	cam := cfg.Camera
	s.Camera = render.NewCamera(cam.FOV, float64(w)/float64(h), cam.Near, cam.Far)
	s.Camera.Position = cam.Position.Vec3()
	s.Camera.LookAt(cam.LookAt.Vec3())

	sat := cfg.Satellite
	s.Satellite = render.NewCamera(sat.FOV, sat.Aspect, sat.Near, sat.Far)
	s.Satellite.Position = s.Moon.Position.Add(sat.Offset.Vec3())

	return s, nil
}

func newRenderer(name string, surface config.SurfaceConfig, rc config.RenderConfig) (*render.Renderer, error) {
	r, err := render.NewRenderer(name, surface.Width, surface.Height)
	if err != nil {
		return nil, fmt.Errorf("%s surface: %w", name, err)
	}
	r.ClearColor = surface.ClearColor.Color4
	r.Supersample = rc.Supersample
	r.Workers = rc.Workers
	return r, nil
}

func body(id Body, cfg config.Config, bc config.BodyConfig, tex *texture.Texture) *render.Mesh {
	mat := render.LambertMaterial(cfg.MaterialColor.Color4)
	mat.Map = tex
	m := render.NewMesh(id.String(), render.SphereGeometry{Radius: 1}, mat)
	m.Position = bc.Position.Vec3()
	m.Scale = bc.Scale
	return m
}

// Update advances the diagram to t seconds since the loop started. Spin
// accumulates once per call; every position is a pure function of t.
func (s *System) Update(t float64) {
	s.Sun.Rotation.Y += SunSpin
	s.Earth.Rotation.Y += EarthSpin
	s.Moon.Rotation.Y += MoonSpin

	s.Earth.Position = EarthPosition(t)
	s.Moon.Position = s.Earth.Position.Add(MoonOffset(t))

	s.Satellite.Position = s.Moon.Position
	s.Satellite.LookAt(s.Earth.Position)
}

// Frame updates to t and renders both views: the primary camera onto the
// primary surface, then the satellite camera onto the secondary one.
func (s *System) Frame(ctx context.Context, t float64) (Frames, error) {
	s.Update(t)

	primary, err := s.Primary.Render(ctx, s.Scene, s.Camera)
	if err != nil {
		return Frames{}, fmt.Errorf("render %s: %w", s.Primary.Name, err)
	}
	satellite, err := s.Secondary.Render(ctx, s.Scene, s.Satellite)
	if err != nil {
		return Frames{}, fmt.Errorf("render %s: %w", s.Secondary.Name, err)
	}
	return Frames{Primary: primary, Satellite: satellite}, nil
}

// Resize changes the primary surface and the primary camera aspect. The
// satellite view keeps its fixed size.
func (s *System) Resize(width, height int) error {
	if err := s.Primary.SetSize(width, height); err != nil {
		return err
	}
	s.Camera.SetAspect(float64(width) / float64(height))
	return nil
}
