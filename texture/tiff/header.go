package tiff

import (
	"encoding/binary"
	"errors"
	"io"
)

type Header struct {
	ByteOrder       binary.ByteOrder
	Width, Height   int
	SamplesPerPixel int
	BitsPerSample   []int
	Photometric     int
	Compression     int
	PlanarConfig    int

	// Strip layout
	RowsPerStrip    int
	StripOffsets    []int
	StripByteCounts []int

	// Tile layout
	TileWidth      int
	TileHeight     int
	TileOffsets    []int
	TileByteCounts []int
}

// Tiled reports whether the image stores tiles rather than strips.
func (h Header) Tiled() bool {
	return len(h.TileOffsets) > 0
}

// tileBytes is the decoded size of one tile.
func (h Header) tileBytes() int {
	return h.TileWidth * h.TileHeight * h.SamplesPerPixel
}

// https://www.loc.gov/preservation/digital/formats/content/tiff_tags.shtml
const (
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagPlanarConfiguration       = 284
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
)

const typeShort = 3

const (
	CompressionNone    = 1
	CompressionDeflate = 8

	PhotometricBlackIsZero = 1
	PhotometricRGB         = 2
)

var (
	ErrInvalidTiffHeader = errors.New("invalid TIFF header")
	ErrUnsupported       = errors.New("unsupported TIFF layout")
	ErrCorrupt           = errors.New("corrupt TIFF")
)

func parseHeader(reader io.ReaderAt) (Header, error) {
	read := func(offset int64, size int) ([]byte, error) {
		buf := make([]byte, size)
		_, err := reader.ReadAt(buf, offset)
		return buf, err
	}

	// 8-byte preamble: byte order, magic, first IFD offset
	preamble, err := read(0, 8)
	if err != nil {
		return Header{}, ErrInvalidTiffHeader
	}

	var bo binary.ByteOrder
	switch string(preamble[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return Header{}, ErrInvalidTiffHeader
	}
	if bo.Uint16(preamble[2:4]) != 42 {
		return Header{}, ErrInvalidTiffHeader
	}
	ifdOffset := int64(bo.Uint32(preamble[4:8]))

	entryCountRaw, err := read(ifdOffset, 2)
	if err != nil {
		return Header{}, err
	}
	numEntries := int(bo.Uint16(entryCountRaw))
	entriesRaw, err := read(ifdOffset+2, numEntries*12)
	if err != nil {
		return Header{}, err
	}

	hdr := Header{
		ByteOrder:       bo,
		SamplesPerPixel: -1,
		Photometric:     -1,
		Compression:     CompressionNone,
		PlanarConfig:    1,
	}

	for i := 0; i < numEntries; i++ {
		entry := entriesRaw[i*12 : (i+1)*12]
		tag := bo.Uint16(entry[0:2])
		typ := bo.Uint16(entry[2:4])
		count := bo.Uint32(entry[4:8])
		valOffset := int64(bo.Uint32(entry[8:12]))

		// SHORT values are left-justified in the 4-byte value field.
		scalar := func() int {
			if typ == typeShort {
				return int(bo.Uint16(entry[8:10]))
			}
			return int(valOffset)
		}
		readArray := func() ([]int, error) {
			size := 4
			if typ == typeShort {
				size = 2
			}
			raw := entry[8:12]
			if int(count)*size > 4 {
				buf, err := read(valOffset, int(count)*size)
				if err != nil {
					return nil, err
				}
				raw = buf
			}
			out := make([]int, count)
			for i := range out {
				if size == 2 {
					out[i] = int(bo.Uint16(raw[i*2:]))
				} else {
					out[i] = int(bo.Uint32(raw[i*4:]))
				}
			}
			return out, nil
		}

		switch tag {
		case TagImageWidth:
			hdr.Width = scalar()
		case TagImageLength:
			hdr.Height = scalar()
		case TagBitsPerSample:
			hdr.BitsPerSample, err = readArray()
		case TagCompression:
			hdr.Compression = scalar()
		case TagPhotometricInterpretation:
			hdr.Photometric = scalar()
		case TagStripOffsets:
			hdr.StripOffsets, err = readArray()
		case TagSamplesPerPixel:
			hdr.SamplesPerPixel = scalar()
		case TagRowsPerStrip:
			hdr.RowsPerStrip = scalar()
		case TagStripByteCounts:
			hdr.StripByteCounts, err = readArray()
		case TagPlanarConfiguration:
			hdr.PlanarConfig = scalar()
		case TagTileWidth:
			hdr.TileWidth = scalar()
		case TagTileLength:
			hdr.TileHeight = scalar()
		case TagTileOffsets:
			hdr.TileOffsets, err = readArray()
		case TagTileByteCounts:
			hdr.TileByteCounts, err = readArray()
		}
		if err != nil {
			return Header{}, err
		}
	}

	if hdr.Width <= 0 || hdr.Height <= 0 {
		return Header{}, ErrInvalidTiffHeader
	}
	return hdr, nil
}
