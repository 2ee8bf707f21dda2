package tiff

import (
	"image"
	"image/color"

	"golang.org/x/exp/mmap"
)

type stripedTiff struct {
	header Header
	reader *mmap.ReaderAt
}

func (t *stripedTiff) Header() Header {
	return t.header
}

func (t *stripedTiff) Close() error {
	return t.reader.Close()
}

func (t *stripedTiff) ColorModel() color.Model {
	return color.RGBAModel
}

func (t *stripedTiff) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.header.Width, t.header.Height)
}

// At returns transparent black outside the image or if the mapping can no
// longer be read.
func (t *stripedTiff) At(x, y int) color.Color {
	h := t.header
	if !(image.Point{x, y}.In(t.Bounds())) {
		return color.RGBA{}
	}

	strip := y / h.RowsPerStrip
	localY := y % h.RowsPerStrip
	idx := h.StripOffsets[strip] + (localY*h.Width+x)*h.SamplesPerPixel

	var buf [3]byte
	px := buf[:h.SamplesPerPixel]
	if _, err := t.reader.ReadAt(px, int64(idx)); err != nil {
		return color.RGBA{}
	}
	return pixel(h.Photometric, px)
}

// pixel converts one packed 8-bit sample group into a color.
func pixel(photometric int, px []byte) color.RGBA {
	if photometric == PhotometricBlackIsZero {
		return color.RGBA{R: px[0], G: px[0], B: px[0], A: 255}
	}
	return color.RGBA{R: px[0], G: px[1], B: px[2], A: 255}
}
