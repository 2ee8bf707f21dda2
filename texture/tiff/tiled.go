package tiff

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"io"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/exp/mmap"
)

// tileCacheSize bounds how many decompressed tiles stay resident.
const tileCacheSize = 200

type tiledTiff struct {
	header      Header
	reader      *mmap.ReaderAt
	tilesAcross int
	cache       *lru.Cache // tileIndex -> []byte
}

func newTiled(header Header, reader *mmap.ReaderAt) (*tiledTiff, error) {
	cache, err := lru.New(tileCacheSize)
	if err != nil {
		return nil, err
	}
	t := &tiledTiff{
		header:      header,
		reader:      reader,
		tilesAcross: (header.Width + header.TileWidth - 1) / header.TileWidth,
		cache:       cache,
	}

	// Every deflated tile must inflate to a full tile before Open succeeds.
	if header.Compression == CompressionDeflate {
		tilesDown := (header.Height + header.TileHeight - 1) / header.TileHeight
		for i := 0; i < t.tilesAcross*tilesDown; i++ {
			if _, err := t.loadTile(i); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *tiledTiff) Header() Header {
	return t.header
}

func (t *tiledTiff) Close() error {
	t.cache.Purge()
	return t.reader.Close()
}

func (t *tiledTiff) ColorModel() color.Model {
	return color.RGBAModel
}

func (t *tiledTiff) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.header.Width, t.header.Height)
}

// At returns transparent black for a tile that can no longer be read.
func (t *tiledTiff) At(x, y int) color.Color {
	h := t.header
	if !(image.Point{x, y}.In(t.Bounds())) {
		return color.RGBA{}
	}

	tileIndex := (y/h.TileHeight)*t.tilesAcross + x/h.TileWidth

	var tile []byte
	if val, ok := t.cache.Get(tileIndex); ok {
		tile = val.([]byte)
	} else {
		var err error
		if tile, err = t.loadTile(tileIndex); err != nil {
			return color.RGBA{}
		}
		t.cache.Add(tileIndex, tile)
	}

	localX := x % h.TileWidth
	localY := y % h.TileHeight
	rowStride := h.TileWidth * h.SamplesPerPixel
	pixOffset := localY*rowStride + localX*h.SamplesPerPixel

	return pixel(h.Photometric, tile[pixOffset:pixOffset+h.SamplesPerPixel])
}

// loadTile reads and, if needed, inflates one tile, checking that it holds
// a full TileWidth x TileHeight block of pixels.
func (t *tiledTiff) loadTile(index int) ([]byte, error) {
	h := t.header
	buf := make([]byte, h.TileByteCounts[index])
	if _, err := t.reader.ReadAt(buf, int64(h.TileOffsets[index])); err != nil {
		return nil, fmt.Errorf("read tile %d: %w", index, err)
	}

	tile := buf
	if h.Compression == CompressionDeflate {
		r, err := zlib.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("%w: tile %d: %v", ErrCorrupt, index, err)
		}
		defer r.Close()
		if tile, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("%w: tile %d: %v", ErrCorrupt, index, err)
		}
	}

	if len(tile) < h.tileBytes() {
		return nil, fmt.Errorf("%w: tile %d inflates to %d bytes, need %d", ErrCorrupt, index, len(tile), h.tileBytes())
	}
	return tile, nil
}
