package tiff

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/exp/mmap"
)

// Image is a lazily decoded, memory-mapped TIFF. Pixels are read from the
// mapping on demand, so very large equirectangular maps cost no heap.
type Image interface {
	image.Image
	io.Closer
	Header() Header
}

// Open maps the file at path and returns a striped or tiled reader depending
// on its layout. Files that are not TIFFs yield ErrInvalidTiffHeader; TIFFs
// this reader cannot handle yield an error wrapping ErrUnsupported, and
// TIFFs whose strips or tiles run past the end of the file wrap ErrCorrupt.
func Open(path string) (Image, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	header, err := parseHeader(reader)
	if err != nil {
		reader.Close()
		return nil, err
	}
	if header.RowsPerStrip <= 0 {
		header.RowsPerStrip = header.Height
	}
	if err := validate(header, int64(reader.Len())); err != nil {
		reader.Close()
		return nil, err
	}

	if header.Tiled() {
		tiled, err := newTiled(header, reader)
		if err != nil {
			reader.Close()
			return nil, err
		}
		return tiled, nil
	}
	return &stripedTiff{header: header, reader: reader}, nil
}

// validate checks that the header describes a layout the readers support and
// that every strip or tile the image needs lies inside a file of size bytes.
func validate(h Header, size int64) error {
	switch h.Photometric {
	case PhotometricBlackIsZero:
		if h.SamplesPerPixel != 1 {
			return fmt.Errorf("%w: grayscale with %d samples/pixel", ErrUnsupported, h.SamplesPerPixel)
		}
	case PhotometricRGB:
		if h.SamplesPerPixel != 3 {
			return fmt.Errorf("%w: RGB with %d samples/pixel", ErrUnsupported, h.SamplesPerPixel)
		}
	default:
		return fmt.Errorf("%w: photometric interpretation %d", ErrUnsupported, h.Photometric)
	}
	if len(h.BitsPerSample) == 0 || h.BitsPerSample[0] != 8 {
		return fmt.Errorf("%w: bits per sample %v", ErrUnsupported, h.BitsPerSample)
	}
	if h.PlanarConfig != 1 {
		return fmt.Errorf("%w: planar configuration %d", ErrUnsupported, h.PlanarConfig)
	}

	if h.Tiled() {
		return validateTiles(h, size)
	}
	return validateStrips(h, size)
}

func validateStrips(h Header, size int64) error {
	if h.Compression != CompressionNone {
		return fmt.Errorf("%w: striped compression %d", ErrUnsupported, h.Compression)
	}
	if len(h.StripOffsets) != len(h.StripByteCounts) {
		return fmt.Errorf("%w: %d strip offsets but %d byte counts", ErrCorrupt, len(h.StripOffsets), len(h.StripByteCounts))
	}
	strips := (h.Height + h.RowsPerStrip - 1) / h.RowsPerStrip
	if len(h.StripOffsets) < strips {
		return fmt.Errorf("%w: %d strips for %d rows of %d", ErrCorrupt, len(h.StripOffsets), h.Height, h.RowsPerStrip)
	}

	rowBytes := h.Width * h.SamplesPerPixel
	for i := 0; i < strips; i++ {
		rows := min(h.RowsPerStrip, h.Height-i*h.RowsPerStrip)
		need := rows * rowBytes
		if h.StripByteCounts[i] < need {
			return fmt.Errorf("%w: strip %d holds %d bytes, need %d", ErrCorrupt, i, h.StripByteCounts[i], need)
		}
		if err := inFile(h.StripOffsets[i], need, size); err != nil {
			return fmt.Errorf("strip %d: %w", i, err)
		}
	}
	return nil
}

func validateTiles(h Header, size int64) error {
	if h.Compression != CompressionNone && h.Compression != CompressionDeflate {
		return fmt.Errorf("%w: compression %d", ErrUnsupported, h.Compression)
	}
	if h.TileWidth <= 0 || h.TileHeight <= 0 {
		return fmt.Errorf("%w: tile size %dx%d", ErrCorrupt, h.TileWidth, h.TileHeight)
	}
	if len(h.TileOffsets) != len(h.TileByteCounts) {
		return fmt.Errorf("%w: %d tile offsets but %d byte counts", ErrCorrupt, len(h.TileOffsets), len(h.TileByteCounts))
	}
	across := (h.Width + h.TileWidth - 1) / h.TileWidth
	down := (h.Height + h.TileHeight - 1) / h.TileHeight
	if len(h.TileOffsets) < across*down {
		return fmt.Errorf("%w: %d tiles for a %dx%d grid", ErrCorrupt, len(h.TileOffsets), across, down)
	}

	for i := 0; i < across*down; i++ {
		count := h.TileByteCounts[i]
		if h.Compression == CompressionNone && count < h.tileBytes() {
			return fmt.Errorf("%w: tile %d holds %d bytes, need %d", ErrCorrupt, i, count, h.tileBytes())
		}
		if err := inFile(h.TileOffsets[i], count, size); err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
	}
	return nil
}

func inFile(offset, length int, size int64) error {
	if offset < 0 || length < 0 || int64(offset)+int64(length) > size {
		return fmt.Errorf("%w: bytes [%d, %d) past end of file (%d bytes)", ErrCorrupt, offset, offset+length, size)
	}
	return nil
}
