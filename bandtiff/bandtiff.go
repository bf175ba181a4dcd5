/*Package bandtiff reads and writes multi-band scientific TIFF files.

A 2D frame is written as a single page, a band-first [B H W] frame as B
pages.  Pixels are stored as uncompressed IEEE float32, one sample per
pixel, photometric min-is-black.  The first page carries an ImageDescription
of the form {"shape": [B, H, W]} so that readers such as Python's tifffile
restore the original dimensions.

The reader accepts the same layout with 8, 16 or 32 bit unsigned integers
or 32/64 bit floats, in either byte order, with any strip arrangement.
Compressed and tiled stacks are rejected.  A single page of 8 or 16 bit
integers is handed to golang.org/x/image/tiff, so camera snapshots may be
compressed.  Sizes claimed by the file are checked against its length
before anything is allocated.
*/
package bandtiff

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/nasa-jpl/hsicap/frame"
)

// ErrFormat is returned when a file is not a TIFF this package understands
var ErrFormat = errors.New("bandtiff: unsupported format")

const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagTileWidth        = 322
	tagSampleFormat     = 339

	dtASCII = 2
	dtShort = 3
	dtLong  = 4

	sampleUint  = 1
	sampleFloat = 3
)

type entry struct {
	tag, typ uint16
	count    uint32
	value    uint32
}

// pages splits f into its 2D planes
func pages(f *frame.Frame) (h, w int, planes [][]float64, err error) {
	switch f.NDim() {
	case 2:
		return f.Shape[0], f.Shape[1], [][]float64{f.Data}, nil
	case 3:
		h, w = f.Shape[1], f.Shape[2]
		n := h * w
		for b := 0; b < f.Shape[0]; b++ {
			planes = append(planes, f.Data[b*n:(b+1)*n])
		}
		return h, w, planes, nil
	}
	return 0, 0, nil, fmt.Errorf("%w: cannot write %dD frame", ErrFormat, f.NDim())
}

// Encode writes f to w as a little-endian float32 TIFF
func Encode(w io.Writer, f *frame.Frame) error {
	h, wd, planes, err := pages(f)
	if err != nil {
		return err
	}
	if len(planes) == 0 || h == 0 || wd == 0 {
		return fmt.Errorf("%w: empty frame %v", ErrFormat, f.Shape)
	}
	desc, err := json.Marshal(struct {
		Shape []int `json:"shape"`
	}{f.Shape})
	if err != nil {
		return err
	}
	desc = append(desc, 0)
	descLen := uint32(len(desc))
	if descLen%2 == 1 {
		desc = append(desc, 0)
	}

	stripBytes := uint32(h * wd * 4)
	ifdSize := func(first bool) uint32 {
		n := uint32(11)
		if first {
			n++
		}
		return 2 + 12*n + 4
	}

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	var scratch [4]byte
	put16 := func(v uint16) {
		le.PutUint16(scratch[:2], v)
		bw.Write(scratch[:2])
	}
	put32 := func(v uint32) {
		le.PutUint32(scratch[:4], v)
		bw.Write(scratch[:4])
	}

	// header, then the description, then for each page its pixels followed
	// by its IFD
	descOff := uint32(8)
	off := descOff + uint32(len(desc))
	bw.WriteString("II")
	put16(42)
	put32(off + stripBytes)
	bw.Write(desc)

	for p, plane := range planes {
		first := p == 0
		for _, v := range plane {
			put32(math.Float32bits(float32(v)))
		}
		dataOff := off
		off += stripBytes
		next := uint32(0)
		if p < len(planes)-1 {
			next = off + ifdSize(first) + stripBytes
		}
		entries := []entry{
			{tagImageWidth, dtLong, 1, uint32(wd)},
			{tagImageLength, dtLong, 1, uint32(h)},
			{tagBitsPerSample, dtShort, 1, 32},
			{tagCompression, dtShort, 1, 1},
			{tagPhotometric, dtShort, 1, 1},
		}
		if first {
			entries = append(entries, entry{tagImageDescription, dtASCII, descLen, descOff})
		}
		entries = append(entries,
			entry{tagStripOffsets, dtLong, 1, dataOff},
			entry{tagSamplesPerPixel, dtShort, 1, 1},
			entry{tagRowsPerStrip, dtLong, 1, uint32(h)},
			entry{tagStripByteCounts, dtLong, 1, stripBytes},
			entry{tagPlanarConfig, dtShort, 1, 1},
			entry{tagSampleFormat, dtShort, 1, sampleFloat},
		)
		put16(uint16(len(entries)))
		for _, e := range entries {
			put16(e.tag)
			put16(e.typ)
			put32(e.count)
			if e.typ == dtShort {
				put16(uint16(e.value))
				put16(0)
			} else {
				put32(e.value)
			}
		}
		put32(next)
		off += ifdSize(first)
	}
	return bw.Flush()
}
