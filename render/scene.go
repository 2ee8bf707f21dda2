package render

import (
	"github.com/echoflaresat/orbitview/colors"
	"github.com/echoflaresat/orbitview/vectors"
)

// Light contributes illumination to a lit surface with world normal n.
type Light interface {
	Illuminate(n vectors.Vec3) colors.Color4
}

// DirectionalLight shines from Position toward the origin with no falloff.
type DirectionalLight struct {
	Color     colors.Color4
	Intensity float64
	Position  vectors.Vec3
}

func (l *DirectionalLight) Illuminate(n vectors.Vec3) colors.Color4 {
	lambert := n.Dot(l.Position.Normalize())
	if lambert <= 0 {
		return colors.Color4{}
	}
	return l.Color.ScaleRGB(l.Intensity * lambert)
}

// AmbientLight lights every surface uniformly.
type AmbientLight struct {
	Color     colors.Color4
	Intensity float64
}

func (l *AmbientLight) Illuminate(vectors.Vec3) colors.Color4 {
	return l.Color.ScaleRGB(l.Intensity)
}

// Scene is the root of the scene graph.
type Scene struct {
	meshes []*Mesh
	lights []Light
}

func NewScene() *Scene {
	return &Scene{}
}

func (s *Scene) Add(m *Mesh) {
	s.meshes = append(s.meshes, m)
}

func (s *Scene) AddLight(l Light) {
	s.lights = append(s.lights, l)
}

func (s *Scene) Meshes() []*Mesh {
	return s.meshes
}

func (s *Scene) Lights() []Light {
	return s.lights
}

// placed is a mesh with its world transform resolved for one render pass.
type placed struct {
	mesh  *Mesh
	world transform
	inv   vectors.Mat3 // inverse rotation
}

// flatten resolves world transforms for every mesh in the graph.
func (s *Scene) flatten() []placed {
	var out []placed
	var walk func(m *Mesh, parent transform)
	walk = func(m *Mesh, parent transform) {
		world := parent.then(m.local())
		out = append(out, placed{mesh: m, world: world, inv: world.R.Transpose()})
		for _, c := range m.children {
			walk(c, world)
		}
	}
	for _, m := range s.meshes {
		walk(m, identityTransform())
	}
	return out
}
