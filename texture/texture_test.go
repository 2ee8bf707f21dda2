package texture

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/echoflaresat/orbitview/colors"
	"github.com/echoflaresat/orbitview/texture/tiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadrants is a 2x2 image: red, green / blue, white.
func quadrants() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 255, 0, 255})
	img.SetNRGBA(0, 1, color.NRGBA{0, 0, 255, 255})
	img.SetNRGBA(1, 1, color.NRGBA{255, 255, 255, 255})
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// ifdEntry is one TIFF directory entry; typ is 3 (SHORT) or 4 (LONG).
type ifdEntry struct {
	tag, typ uint16
	values   []uint32
}

func short(tag uint16, values ...uint32) ifdEntry { return ifdEntry{tag, 3, values} }
func long(tag uint16, values ...uint32) ifdEntry { return ifdEntry{tag, 4, values} }

func (e ifdEntry) size() int {
	if e.typ == 3 {
		return 2 * len(e.values)
	}
	return 4 * len(e.values)
}

// buildTIFF lays out a little-endian TIFF: header, one IFD, out-of-line
// entry values, then data. entries receives the offset data will land at.
func buildTIFF(entries func(dataStart uint32) []ifdEntry, data []byte) []byte {
	probe := entries(0)
	extra := 0
	for _, e := range probe {
		if e.size() > 4 {
			extra += e.size()
		}
	}
	extraStart := 8 + 2 + 12*len(probe) + 4
	dataStart := uint32(extraStart + extra)

	le := binary.LittleEndian
	put := func(w *bytes.Buffer, typ uint16, v uint32) {
		if typ == 3 {
			binary.Write(w, le, uint16(v))
		} else {
			binary.Write(w, le, v)
		}
	}

	var buf, extraBuf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))

	es := entries(dataStart)
	binary.Write(&buf, le, uint16(len(es)))
	for _, e := range es {
		binary.Write(&buf, le, e.tag)
		binary.Write(&buf, le, e.typ)
		binary.Write(&buf, le, uint32(len(e.values)))
		if e.size() > 4 {
			binary.Write(&buf, le, uint32(extraStart+extraBuf.Len()))
			for _, v := range e.values {
				put(&extraBuf, e.typ, v)
			}
			continue
		}
		var inline bytes.Buffer
		for _, v := range e.values {
			put(&inline, e.typ, v)
		}
		inline.Write(make([]byte, 4-inline.Len()))
		buf.Write(inline.Bytes())
	}
	binary.Write(&buf, le, uint32(0)) // no next IFD
	buf.Write(extraBuf.Bytes())
	buf.Write(data)
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func rgb8(img *image.NRGBA, x, y int) []byte {
	if !(image.Point{x, y}.In(img.Bounds())) {
		return []byte{0, 0, 0}
	}
	c := img.NRGBAAt(x, y)
	return []byte{c.R, c.G, c.B}
}

// stripedTIFF encodes img as uncompressed 8-bit RGB strips of rowsPerStrip rows.
func stripedTIFF(img *image.NRGBA, rowsPerStrip int) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var data []byte
	var sizes []uint32
	for y0 := 0; y0 < h; y0 += rowsPerStrip {
		n := 0
		for y := y0; y < min(y0+rowsPerStrip, h); y++ {
			for x := 0; x < w; x++ {
				data = append(data, rgb8(img, x, y)...)
				n += 3
			}
		}
		sizes = append(sizes, uint32(n))
	}

	return buildTIFF(func(dataStart uint32) []ifdEntry {
		offsets := make([]uint32, len(sizes))
		off := dataStart
		for i, n := range sizes {
			offsets[i] = off
			off += n
		}
		return []ifdEntry{
			short(256, uint32(w)),
			short(257, uint32(h)),
			short(258, 8, 8, 8),
			short(259, 1),
			short(262, 2),
			long(273, offsets...),
			short(277, 3),
			short(278, uint32(rowsPerStrip)),
			long(279, sizes...),
		}
	}, data)
}

// writeStripedTIFF writes a minimal uncompressed, single-strip RGB TIFF.
func writeStripedTIFF(t *testing.T, dir, name string, img *image.NRGBA) string {
	t.Helper()
	return writeFile(t, dir, name, stripedTIFF(img, img.Bounds().Dy()))
}

// tiledTIFF encodes img as tileW x tileH RGB tiles, zero padded at the right
// and bottom edges, optionally deflated. shrink drops that many bytes from
// the last tile before it is stored.
func tiledTIFF(t *testing.T, img *image.NRGBA, tileW, tileH int, deflate bool, shrink int) []byte {
	t.Helper()
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	across := (w + tileW - 1) / tileW
	down := (h + tileH - 1) / tileH

	var data []byte
	var sizes []uint32
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			var tile []byte
			for y := 0; y < tileH; y++ {
				for x := 0; x < tileW; x++ {
					tile = append(tile, rgb8(img, tx*tileW+x, ty*tileH+y)...)
				}
			}
			if ty == down-1 && tx == across-1 {
				tile = tile[:len(tile)-shrink]
			}
			if deflate {
				var z bytes.Buffer
				zw := zlib.NewWriter(&z)
				_, err := zw.Write(tile)
				require.NoError(t, err)
				require.NoError(t, zw.Close())
				tile = z.Bytes()
			}
			data = append(data, tile...)
			sizes = append(sizes, uint32(len(tile)))
		}
	}

	compression := uint32(1)
	if deflate {
		compression = 8
	}
	return buildTIFF(func(dataStart uint32) []ifdEntry {
		offsets := make([]uint32, len(sizes))
		off := dataStart
		for i, n := range sizes {
			offsets[i] = off
			off += n
		}
		return []ifdEntry{
			short(256, uint32(w)),
			short(257, uint32(h)),
			short(258, 8, 8, 8),
			short(259, compression),
			short(262, 2),
			short(277, 3),
			short(322, uint32(tileW)),
			short(323, uint32(tileH)),
			long(324, offsets...),
			long(325, sizes...),
		}
	}, data)
}

// gradient is a w x h image with a distinct color per pixel.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(40 * x), uint8(40 * y), 200, 255})
		}
	}
	return img
}

func assertQuadrants(t *testing.T, tex *Texture) {
	t.Helper()
	assert.Equal(t, 2, tex.Width)
	assert.Equal(t, 2, tex.Height)

	cases := []struct {
		name string
		u, v float64
		want color.NRGBA
	}{
		{"top left", 0.1, 0.1, color.NRGBA{255, 0, 0, 255}},
		{"top right", 0.9, 0.1, color.NRGBA{0, 255, 0, 255}},
		{"bottom left", 0.1, 0.9, color.NRGBA{0, 0, 255, 255}},
		{"bottom right", 0.9, 0.9, color.NRGBA{255, 255, 255, 255}},
		{"u wraps", 1.1, 0.1, color.NRGBA{255, 0, 0, 255}},
		{"negative u wraps", -0.1, 0.1, color.NRGBA{0, 255, 0, 255}},
		{"v clamps at 1", 0.1, 1.0, color.NRGBA{0, 0, 255, 255}},
		{"v clamps below 0", 0.9, -0.5, color.NRGBA{0, 255, 0, 255}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, tex.Sample(c.u, c.v).ToNRGBA())
		})
	}
}

func TestLoadPNG(t *testing.T) {
	path := writePNG(t, t.TempDir(), "earth.png", quadrants())
	tex, err := Load(path)
	require.NoError(t, err)
	defer tex.Close()
	assertQuadrants(t, tex)
}

func TestLoadMappedTIFF(t *testing.T) {
	path := writeStripedTIFF(t, t.TempDir(), "earth.tif", quadrants())
	tex, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, tex.closer, "expected the memory-mapped reader")
	defer tex.Close()
	assertQuadrants(t, tex)
}

func TestLoadMissingFileIsAssetLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moon.jpg")
	_, err := Load(path)
	require.Error(t, err)

	var loadErr *AssetLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadGarbageIsAssetLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sun.jpg")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an image"), 0o644))

	_, err := Load(path)
	var loadErr *AssetLoadError
	require.True(t, errors.As(err, &loadErr))
}

func TestLoadAllKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	small := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	paths := []string{
		writePNG(t, dir, "sun.png", small),
		writePNG(t, dir, "earth.png", quadrants()),
		writePNG(t, dir, "moon.png", image.NewNRGBA(image.Rect(0, 0, 3, 1))),
	}

	texs, err := LoadAll(context.Background(), paths...)
	require.NoError(t, err)
	require.Len(t, texs, 3)
	assert.Equal(t, 1, texs[0].Width)
	assert.Equal(t, 2, texs[1].Width)
	assert.Equal(t, 3, texs[2].Width)
}

func TestLoadAllReportsFailingAsset(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "moon.jpg")
	_, err := LoadAll(context.Background(),
		writePNG(t, dir, "sun.png", quadrants()),
		missing,
	)

	var loadErr *AssetLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, missing, loadErr.Path)
}

func TestLoadAllHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadAll(ctx, writePNG(t, t.TempDir(), "sun.png", quadrants()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadRejectsInconsistentStrips(t *testing.T) {
	full := stripedTIFF(quadrants(), 2)
	oneRowStrips := stripedTIFF(quadrants(), 1)

	cases := []struct {
		name string
		data []byte
	}{
		{"truncated pixel data", full[:len(full)-4]},
		{"strip past end of file", oneRowStrips[:len(oneRowStrips)-6]},
		{"one strip for two rows", buildTIFF(func(dataStart uint32) []ifdEntry {
			return []ifdEntry{
				short(256, 2), short(257, 2), short(258, 8, 8, 8), short(259, 1), short(262, 2),
				long(273, dataStart), short(277, 3), short(278, 1), long(279, 12),
			}
		}, make([]byte, 12))},
		{"short strip byte count", buildTIFF(func(dataStart uint32) []ifdEntry {
			return []ifdEntry{
				short(256, 2), short(257, 2), short(258, 8, 8, 8), short(259, 1), short(262, 2),
				long(273, dataStart), short(277, 3), short(278, 2), long(279, 6),
			}
		}, make([]byte, 12))},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "earth.tif", c.data)
			_, err := Load(path)

			var loadErr *AssetLoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, path, loadErr.Path)
			assert.ErrorIs(t, err, tiff.ErrCorrupt)
		})
	}
}

func TestLoadMultiStripTIFF(t *testing.T) {
	img := gradient(3, 5)
	tex, err := Load(writeFile(t, t.TempDir(), "earth.tif", stripedTIFF(img, 2)))
	require.NoError(t, err)
	defer tex.Close()

	for y := 0; y < 5; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, img.NRGBAAt(x, y), color.NRGBAModel.Convert(tex.Image().At(x, y)), "pixel (%d,%d)", x, y)
		}
	}
}

func TestLoadTiledTIFF(t *testing.T) {
	img := gradient(5, 3)
	for _, deflate := range []bool{false, true} {
		name := "uncompressed"
		if deflate {
			name = "deflate"
		}
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "earth.tif", tiledTIFF(t, img, 2, 2, deflate, 0))
			tex, err := Load(path)
			require.NoError(t, err)
			defer tex.Close()

			mapped, ok := tex.Image().(tiff.Image)
			require.True(t, ok, "expected the memory-mapped reader")
			assert.True(t, mapped.Header().Tiled())
			assert.Equal(t, 5, tex.Width)
			assert.Equal(t, 3, tex.Height)

			// twice, so the second pass is served from the tile cache
			for pass := 0; pass < 2; pass++ {
				for y := 0; y < 3; y++ {
					for x := 0; x < 5; x++ {
						assert.Equal(t, img.NRGBAAt(x, y), color.NRGBAModel.Convert(mapped.At(x, y)), "pixel (%d,%d)", x, y)
					}
				}
			}
			assert.Equal(t, colors.FromStandardColor(img.NRGBAAt(4, 2)), tex.Sample(0.95, 0.95))
			assert.Equal(t, color.RGBA{}, mapped.At(5, 0))
		})
	}
}

func TestLoadRejectsShortTiles(t *testing.T) {
	for _, deflate := range []bool{false, true} {
		data := tiledTIFF(t, gradient(4, 4), 2, 2, deflate, 3)
		path := writeFile(t, t.TempDir(), "moon.tif", data)

		_, err := Load(path)
		var loadErr *AssetLoadError
		require.ErrorAs(t, err, &loadErr, "deflate=%v", deflate)
		assert.ErrorIs(t, err, tiff.ErrCorrupt, "deflate=%v", deflate)
	}
}

func TestLoadRejectsMissingTiles(t *testing.T) {
	data := buildTIFF(func(dataStart uint32) []ifdEntry {
		return []ifdEntry{
			short(256, 4), short(257, 4), short(258, 8, 8, 8), short(259, 1), short(262, 2),
			short(277, 3), short(322, 2), short(323, 2),
			long(324, dataStart, dataStart+12, dataStart+24),
			long(325, 12, 12, 12),
		}
	}, make([]byte, 36))

	_, err := Load(writeFile(t, t.TempDir(), "moon.tif", data))
	assert.ErrorIs(t, err, tiff.ErrCorrupt)
}

func TestLoadSixteenBitTIFFFallsBackToFullDecoder(t *testing.T) {
	src := quadrants()
	var pixels []byte
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			c := src.NRGBAAt(x, y)
			for _, v := range []uint8{c.R, c.G, c.B} {
				pixels = binary.LittleEndian.AppendUint16(pixels, uint16(v)*257)
			}
		}
	}
	data := buildTIFF(func(dataStart uint32) []ifdEntry {
		return []ifdEntry{
			short(256, 2), short(257, 2), short(258, 16, 16, 16), short(259, 1), short(262, 2),
			long(273, dataStart), short(277, 3), short(278, 2), long(279, uint32(len(pixels))),
		}
	}, pixels)

	tex, err := Load(writeFile(t, t.TempDir(), "sun.tif", data))
	require.NoError(t, err)
	assert.Nil(t, tex.closer, "16-bit samples are decoded into memory")
	assertQuadrants(t, tex)
}

func TestCloseReleasesMapping(t *testing.T) {
	tex, err := Load(writeStripedTIFF(t, t.TempDir(), "earth.tif", quadrants()))
	require.NoError(t, err)

	img := tex.Image()
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.At(0, 0))
	require.NoError(t, tex.Close())
	assert.Equal(t, color.RGBA{}, img.At(0, 0))
}
