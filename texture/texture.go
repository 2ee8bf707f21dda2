package texture

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/echoflaresat/orbitview/colors"
	"github.com/echoflaresat/orbitview/texture/tiff"
	fulltiff "github.com/echoflaresat/tiff"

	_ "image/jpeg" // register JPEG format with image.Decode
	_ "image/png"  // register PNG format with image.Decode
)

// Texture is a raster image sampled with normalized (u, v) coordinates.
type Texture struct {
	Width  int
	Height int
	img    image.Image
	closer io.Closer
}

// AssetLoadError reports a texture that could not be loaded. Scene
// construction never starts when one is returned.
type AssetLoadError struct {
	Path string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load texture %s: %v", e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}

// FromImage wraps an already decoded image.
func FromImage(img image.Image) *Texture {
	b := img.Bounds()
	return &Texture{
		Width:  b.Dx(),
		Height: b.Dy(),
		img:    img,
	}
}

// Load reads a texture from disk. Uncompressed or deflated TIFFs are memory
// mapped; anything else is decoded into memory. Failures are *AssetLoadError.
func Load(path string) (*Texture, error) {
	mapped, err := tiff.Open(path)
	if err == nil {
		t := FromImage(mapped)
		t.closer = mapped
		return t, nil
	}

	img, err := decode(path, err)
	if err != nil {
		return nil, &AssetLoadError{Path: path, Err: err}
	}
	return FromImage(img), nil
}

// Image is the underlying raster. For a mapped TIFF it stays readable only
// until Close.
func (t *Texture) Image() image.Image {
	return t.img
}

func decode(path string, mapErr error) (image.Image, error) {
	if errors.Is(mapErr, tiff.ErrCorrupt) {
		return nil, mapErr
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !errors.Is(mapErr, tiff.ErrInvalidTiffHeader) {
		// a TIFF the mapped readers can't handle (e.g. LZW strips)
		slog.Warn("falling back to full TIFF decode", "component", "texture", "path", path, "error", mapErr)
		return fulltiff.Decode(f)
	}

	img, _, err := image.Decode(f)
	return img, err
}

// Close releases the file mapping, if any.
func (t *Texture) Close() error {
	if t == nil || t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// Sample returns the nearest texel for (u, v). u wraps around horizontally;
// v runs from 0 at the top row to 1 at the bottom row and is clamped.
func (t *Texture) Sample(u, v float64) colors.Color4 {
	u -= math.Floor(u)
	x := int(u * float64(t.Width))
	y := int(v * float64(t.Height))

	if x < 0 {
		x = 0
	} else if x >= t.Width {
		x = t.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= t.Height {
		y = t.Height - 1
	}

	b := t.img.Bounds()
	return colors.FromStandardColor(t.img.At(b.Min.X+x, b.Min.Y+y))
}
