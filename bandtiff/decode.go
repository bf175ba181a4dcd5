package bandtiff

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/nasa-jpl/hsicap/frame"
	"golang.org/x/image/tiff"
)

type page struct {
	width, height  int
	bits, format   int
	compression    int
	spp            int
	offsets, sizes []uint32
	description    string
	tiled          bool
}

// Decode reads every page of a TIFF into a frame.  A single page yields
// [H W]; several pages yield [pages H W], unless the first page's
// description carries a shape with the same number of elements.
func Decode(r io.ReaderAt, size int64) (*frame.Frame, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrFormat, err)
	}
	var bo binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark %q", ErrFormat, hdr[:2])
	}
	if bo.Uint16(hdr[2:4]) != 42 {
		return nil, fmt.Errorf("%w: not a classic TIFF", ErrFormat)
	}

	var pages []page
	seen := map[int64]bool{}
	next := int64(bo.Uint32(hdr[4:8]))
	for next != 0 {
		if next >= size || len(pages) > 1<<16 {
			return nil, fmt.Errorf("%w: IFD offset %d outside file", ErrFormat, next)
		}
		if seen[next] {
			return nil, fmt.Errorf("%w: IFD chain loops at %d", ErrFormat, next)
		}
		seen[next] = true
		p, n, err := readIFD(r, bo, next, size)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
		next = n
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrFormat)
	}

	first := pages[0]
	if len(pages) == 1 && first.format == sampleUint && (first.bits == 8 || first.bits == 16) {
		return decodeGray(io.NewSectionReader(r, 0, size), first)
	}
	var data []float64
	for i, p := range pages {
		if p.width != first.width || p.height != first.height {
			return nil, fmt.Errorf("%w: page %d is %dx%d, page 0 is %dx%d", ErrFormat, i, p.height, p.width, first.height, first.width)
		}
		vals, err := readPixels(r, bo, p, size)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		data = append(data, vals...)
	}

	shape := []int{first.height, first.width}
	if len(pages) > 1 {
		shape = []int{len(pages), first.height, first.width}
	}
	if s := describedShape(first.description); s != nil {
		n := 1
		for _, v := range s {
			n *= v
		}
		if n == len(data) {
			shape = s
		}
	}
	return frame.FromSlice(data, shape...)
}

func describedShape(desc string) []int {
	if desc == "" {
		return nil
	}
	var d struct {
		Shape []int `json:"shape"`
	}
	if err := json.Unmarshal([]byte(desc), &d); err != nil {
		return nil
	}
	return d.Shape
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7:
		return 1
	case 3, 8:
		return 2
	case 4, 9, 11:
		return 4
	case 5, 10, 12:
		return 8
	}
	return 0
}

// decodeGray reads a single page of 8 or 16 bit unsigned integers, in any
// compression the tiff package supports
func decodeGray(r io.Reader, p page) (*frame.Frame, error) {
	if p.spp != 1 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrFormat, p.spp)
	}
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	b := img.Bounds()
	f := frame.New(b.Dy(), b.Dx())
	i := 0
	switch im := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				f.Data[i] = float64(im.GrayAt(x, y).Y)
				i++
			}
		}
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				f.Data[i] = float64(im.Gray16At(x, y).Y)
				i++
			}
		}
	default:
		return nil, fmt.Errorf("%w: %T is not grayscale", ErrFormat, img)
	}
	return f, nil
}

// scalar tags hold one value
var scalarTags = map[uint16]bool{
	tagImageWidth:      true,
	tagImageLength:     true,
	tagBitsPerSample:   true,
	tagCompression:     true,
	tagSamplesPerPixel: true,
	tagSampleFormat:    true,
}

func readIFD(r io.ReaderAt, bo binary.ByteOrder, off, size int64) (page, int64, error) {
	p := page{bits: 1, compression: 1, spp: 1, format: sampleUint}
	var nb [2]byte
	if _, err := r.ReadAt(nb[:], off); err != nil {
		return p, 0, fmt.Errorf("%w: IFD count: %v", ErrFormat, err)
	}
	n := int(bo.Uint16(nb[:]))
	if off+2+int64(12*n+4) > size {
		return p, 0, fmt.Errorf("%w: IFD at %d with %d entries runs past the end of the file", ErrFormat, off, n)
	}
	buf := make([]byte, 12*n+4)
	if _, err := r.ReadAt(buf, off+2); err != nil {
		return p, 0, fmt.Errorf("%w: IFD body: %v", ErrFormat, err)
	}
	for i := 0; i < n; i++ {
		e := buf[12*i : 12*i+12]
		tag := bo.Uint16(e[0:2])
		typ := bo.Uint16(e[2:4])
		count := bo.Uint32(e[4:8])
		ts := typeSize(typ)
		if ts == 0 {
			continue
		}
		if count == 0 && (scalarTags[tag] || tag == tagStripOffsets || tag == tagStripByteCounts) {
			return p, 0, fmt.Errorf("%w: tag %d has no values", ErrFormat, tag)
		}
		raw := e[8:12]
		if total := int64(ts) * int64(count); total > 4 {
			voff := int64(bo.Uint32(e[8:12]))
			if total > size || voff+total > size {
				return p, 0, fmt.Errorf("%w: tag %d claims %d bytes at %d, file is %d", ErrFormat, tag, total, voff, size)
			}
			raw = make([]byte, total)
			if _, err := r.ReadAt(raw, voff); err != nil {
				return p, 0, fmt.Errorf("%w: tag %d value: %v", ErrFormat, tag, err)
			}
		}
		ints := func() []uint32 {
			out := make([]uint32, count)
			for j := range out {
				switch ts {
				case 1:
					out[j] = uint32(raw[j])
				case 2:
					out[j] = uint32(bo.Uint16(raw[2*j:]))
				default:
					out[j] = bo.Uint32(raw[4*j:])
				}
			}
			return out
		}
		switch tag {
		case tagImageWidth:
			p.width = int(ints()[0])
		case tagImageLength:
			p.height = int(ints()[0])
		case tagBitsPerSample:
			p.bits = int(ints()[0])
		case tagCompression:
			p.compression = int(ints()[0])
		case tagSamplesPerPixel:
			p.spp = int(ints()[0])
		case tagSampleFormat:
			p.format = int(ints()[0])
		case tagStripOffsets:
			p.offsets = ints()
		case tagStripByteCounts:
			p.sizes = ints()
		case tagImageDescription:
			p.description = string(bytes.TrimRight(raw[:count], "\x00"))
		case tagTileWidth:
			p.tiled = true
		}
	}
	if p.width <= 0 || p.height <= 0 {
		return p, 0, fmt.Errorf("%w: page is %dx%d", ErrFormat, p.height, p.width)
	}
	return p, int64(bo.Uint32(buf[12*n:])), nil
}

func readPixels(r io.ReaderAt, bo binary.ByteOrder, p page, size int64) ([]float64, error) {
	if p.compression != 1 || p.tiled {
		return nil, fmt.Errorf("%w: compressed or tiled data", ErrFormat)
	}
	if p.spp != 1 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrFormat, p.spp)
	}
	if len(p.offsets) == 0 || len(p.offsets) != len(p.sizes) {
		return nil, fmt.Errorf("%w: strip tables missing", ErrFormat)
	}
	bps := p.bits / 8
	if bps == 0 || p.bits%8 != 0 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrFormat, p.bits)
	}
	if int64(p.height) > size || int64(p.width) > size/int64(bps)/int64(p.height) {
		return nil, fmt.Errorf("%w: %dx%d page of %d bit samples cannot fit in %d bytes", ErrFormat, p.height, p.width, p.bits, size)
	}
	n := p.width * p.height
	var total int64
	for i, off := range p.offsets {
		end := int64(off) + int64(p.sizes[i])
		if end > size {
			return nil, fmt.Errorf("%w: strip %d ends at %d, file is %d", ErrFormat, i, end, size)
		}
		total += int64(p.sizes[i])
	}
	if total > size {
		return nil, fmt.Errorf("%w: strips claim %d bytes, file is %d", ErrFormat, total, size)
	}
	raw := make([]byte, 0, total)
	for i, off := range p.offsets {
		chunk := make([]byte, p.sizes[i])
		if _, err := r.ReadAt(chunk, int64(off)); err != nil {
			return nil, fmt.Errorf("%w: strip %d: %v", ErrFormat, i, err)
		}
		raw = append(raw, chunk...)
	}
	if len(raw) < n*bps {
		return nil, fmt.Errorf("%w: %d bytes of pixel data, need %d", ErrFormat, len(raw), n*bps)
	}
	out := make([]float64, n)
	switch {
	case p.format == sampleFloat && p.bits == 32:
		for i := range out {
			out[i] = float64(math.Float32frombits(bo.Uint32(raw[4*i:])))
		}
	case p.format == sampleFloat && p.bits == 64:
		for i := range out {
			out[i] = math.Float64frombits(bo.Uint64(raw[8*i:]))
		}
	case p.format == sampleUint && p.bits == 8:
		for i := range out {
			out[i] = float64(raw[i])
		}
	case p.format == sampleUint && p.bits == 16:
		for i := range out {
			out[i] = float64(bo.Uint16(raw[2*i:]))
		}
	case p.format == sampleUint && p.bits == 32:
		for i := range out {
			out[i] = float64(bo.Uint32(raw[4*i:]))
		}
	default:
		return nil, fmt.Errorf("%w: sample format %d with %d bits", ErrFormat, p.format, p.bits)
	}
	return out, nil
}
