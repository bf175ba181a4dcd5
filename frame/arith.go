package frame

import (
	"fmt"
)

// SubtractDark returns signal - dark with negative results clamped to zero.
// The frames must have the same shape.
func SubtractDark(signal, dark *Frame) (*Frame, error) {
	if !signal.SameShape(dark) {
		return nil, fmt.Errorf("%w: signal %v, dark %v", ErrShape, signal.Shape, dark.Shape)
	}
	out := New(signal.Shape...)
	for i, v := range signal.Data {
		d := v - dark.Data[i]
		if d < 0 {
			d = 0
		}
		out.Data[i] = d
	}
	return out, nil
}

// ToBandFirst transposes an [H W B] cube to [B H W]
func ToBandFirst(f *Frame) (*Frame, error) {
	if f.NDim() != 3 {
		return nil, fmt.Errorf("%w: ToBandFirst needs [H W B], have %v", ErrShape, f.Shape)
	}
	h, w, b := f.Shape[0], f.Shape[1], f.Shape[2]
	out := New(b, h, w)
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * b
			dst := y*w + x
			for k := 0; k < b; k++ {
				out.Data[k*plane+dst] = f.Data[src+k]
			}
		}
	}
	return out, nil
}

// Rect is a pixel window, half open: columns [X0, X1) and rows [Y0, Y1).
// The zero Rect selects the whole frame.
type Rect struct {
	X0 int `koanf:"x0" yaml:"x0" json:"x0"`
	X1 int `koanf:"x1" yaml:"x1" json:"x1"`
	Y0 int `koanf:"y0" yaml:"y0" json:"y0"`
	Y1 int `koanf:"y1" yaml:"y1" json:"y1"`
}

// Empty is true for the zero Rect
func (r Rect) Empty() bool {
	return r == Rect{}
}

func (r Rect) check(h, w int) error {
	if r.X0 < 0 || r.Y0 < 0 || r.X1 > w || r.Y1 > h || r.X0 >= r.X1 || r.Y0 >= r.Y1 {
		return fmt.Errorf("%w: window %+v outside %dx%d", ErrShape, r, h, w)
	}
	return nil
}

// Crop cuts the window r out of the trailing two dimensions of f.  2D frames
// are cropped directly, 3D band-first frames plane by plane.
func Crop(f *Frame, r Rect) (*Frame, error) {
	if r.Empty() {
		return f, nil
	}
	var nb, h, w int
	switch f.NDim() {
	case 2:
		nb, h, w = 1, f.Shape[0], f.Shape[1]
	case 3:
		nb, h, w = f.Shape[0], f.Shape[1], f.Shape[2]
	default:
		return nil, fmt.Errorf("%w: cannot crop %v", ErrShape, f.Shape)
	}
	if err := r.check(h, w); err != nil {
		return nil, err
	}
	ch, cw := r.Y1-r.Y0, r.X1-r.X0
	shape := []int{ch, cw}
	if f.NDim() == 3 {
		shape = []int{nb, ch, cw}
	}
	out := New(shape...)
	for b := 0; b < nb; b++ {
		for y := 0; y < ch; y++ {
			src := b*h*w + (r.Y0+y)*w + r.X0
			dst := b*ch*cw + y*cw
			copy(out.Data[dst:dst+cw], f.Data[src:src+cw])
		}
	}
	return out, nil
}

// Average returns the elementwise mean of frames, which must share a shape.
func Average(frames []*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames to average", ErrShape)
	}
	var acc Accumulator
	for i, f := range frames {
		if err := acc.Add(f); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return acc.Mean(), nil
}

// Accumulator keeps a running elementwise mean so frames need not be held
// in memory.  A run of identical frames averages to exactly that frame.
type Accumulator struct {
	mean *Frame
	n    int
}

// Add folds f into the mean
func (a *Accumulator) Add(f *Frame) error {
	if a.mean == nil {
		a.mean = f.Clone()
		a.n = 1
		return nil
	}
	if !f.SameShape(a.mean) {
		return fmt.Errorf("%w: have %v, want %v", ErrShape, f.Shape, a.mean.Shape)
	}
	a.n++
	k := float64(a.n)
	for i, v := range f.Data {
		a.mean.Data[i] += (v - a.mean.Data[i]) / k
	}
	return nil
}

// N is the number of frames added
func (a *Accumulator) N() int {
	return a.n
}

// Mean returns the current mean, nil if nothing was added
func (a *Accumulator) Mean() *Frame {
	if a.mean == nil {
		return nil
	}
	return a.mean.Clone()
}
