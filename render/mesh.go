package render

import (
	"github.com/echoflaresat/orbitview/colors"
	"github.com/echoflaresat/orbitview/texture"
	"github.com/echoflaresat/orbitview/vectors"
)

// Material describes how a surface responds to light.
type Material struct {
	Color       colors.Color4
	Map         *texture.Texture // optional, multiplied with Color
	Lit         bool             // Lambert shading when true, flat color otherwise
	Transparent bool
	Opacity     float64
	DoubleSide  bool
}

// LambertMaterial is a diffuse, lit, opaque material.
func LambertMaterial(color colors.Color4) Material {
	return Material{Color: color, Lit: true, Opacity: 1}
}

// BasicMaterial ignores lights.
func BasicMaterial(color colors.Color4) Material {
	return Material{Color: color, Opacity: 1}
}

// Mesh is a node of the scene graph. Children inherit its transform.
type Mesh struct {
	Name     string
	Geometry Geometry
	Material Material
	Position vectors.Vec3
	Rotation vectors.Vec3 // Euler angles in radians, applied X then Y then Z
	Scale    float64      // uniform

	children []*Mesh
}

func NewMesh(name string, geometry Geometry, material Material) *Mesh {
	return &Mesh{
		Name:     name,
		Geometry: geometry,
		Material: material,
		Scale:    1,
	}
}

// Add attaches child below m.
func (m *Mesh) Add(child *Mesh) {
	m.children = append(m.children, child)
}

func (m *Mesh) Children() []*Mesh {
	return m.children
}

// Clone copies the node and its transform. Geometry, material and children
// are shared with the original.
func (m *Mesh) Clone() *Mesh {
	c := *m
	c.children = append([]*Mesh(nil), m.children...)
	return &c
}

// transform maps local points to the parent frame: T + R*(S*p).
type transform struct {
	R vectors.Mat3
	S float64
	T vectors.Vec3
}

func identityTransform() transform {
	return transform{R: vectors.Identity(), S: 1}
}

func (m *Mesh) local() transform {
	return transform{
		R: vectors.Euler(m.Rotation.X, m.Rotation.Y, m.Rotation.Z),
		S: m.Scale,
		T: m.Position,
	}
}

// then returns the transform that applies child first and tr second.
func (tr transform) then(child transform) transform {
	return transform{
		R: tr.R.Mul(child.R),
		S: tr.S * child.S,
		T: tr.T.Add(tr.R.Apply(child.T.Scale(tr.S))),
	}
}

// Apply maps a local point into the outer frame.
func (tr transform) Apply(p vectors.Vec3) vectors.Vec3 {
	return tr.T.Add(tr.R.Apply(p.Scale(tr.S)))
}

// WorldPosition returns where the local origin of m ends up under parent.
func (m *Mesh) WorldPosition(parents ...*Mesh) vectors.Vec3 {
	tr := identityTransform()
	for _, p := range parents {
		tr = tr.then(p.local())
	}
	return tr.then(m.local()).Apply(vectors.Zero())
}
