/*Package frame holds the n-dimensional pixel arrays produced by the cameras
and the arithmetic applied to them between capture and disk.

A Frame is row-major.  Monochrome frames are [H W].  The hyperspectral camera
delivers [H W B] cubes, which are transposed to band-first [B H W] before
being written, so every 3D frame on disk is a stack of 2D planes.
*/
package frame

import (
	"errors"
	"fmt"
)

// ErrShape is returned when frame dimensions do not agree with an operation
var ErrShape = errors.New("frame: shape mismatch")

// Frame is a dense row-major array of float64 pixel values
type Frame struct {
	// Shape is the extent of each dimension, slowest varying first
	Shape []int

	// Data holds prod(Shape) values
	Data []float64
}

// New returns a zero-filled frame of the given shape
func New(shape ...int) *Frame {
	s := append([]int(nil), shape...)
	return &Frame{Shape: s, Data: make([]float64, size(s))}
}

// FromSlice wraps data as a frame, without copying.  len(data) must equal
// the product of shape.
func FromSlice(data []float64, shape ...int) (*Frame, error) {
	s := append([]int(nil), shape...)
	if len(data) != size(s) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), s)
	}
	return &Frame{Shape: s, Data: data}, nil
}

// FromUint16 converts camera counts to a frame
func FromUint16(buf []uint16, shape ...int) (*Frame, error) {
	data := make([]float64, len(buf))
	for i, v := range buf {
		data[i] = float64(v)
	}
	return FromSlice(data, shape...)
}

func size(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Len is the number of elements in the frame
func (f *Frame) Len() int {
	return len(f.Data)
}

// NDim is the number of dimensions
func (f *Frame) NDim() int {
	return len(f.Shape)
}

// Clone returns a deep copy of f
func (f *Frame) Clone() *Frame {
	return &Frame{
		Shape: append([]int(nil), f.Shape...),
		Data:  append([]float64(nil), f.Data...),
	}
}

// SameShape reports whether f and o have identical dimensions
func (f *Frame) SameShape(o *Frame) bool {
	if len(f.Shape) != len(o.Shape) {
		return false
	}
	for i := range f.Shape {
		if f.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Plane returns band i of a band-first [B H W] frame.  The returned frame
// shares memory with f.
func (f *Frame) Plane(i int) (*Frame, error) {
	if len(f.Shape) != 3 {
		return nil, fmt.Errorf("%w: Plane needs a 3D frame, have %v", ErrShape, f.Shape)
	}
	if i < 0 || i >= f.Shape[0] {
		return nil, fmt.Errorf("%w: plane %d out of range [0,%d)", ErrShape, i, f.Shape[0])
	}
	n := f.Shape[1] * f.Shape[2]
	return &Frame{Shape: []int{f.Shape[1], f.Shape[2]}, Data: f.Data[i*n : (i+1)*n]}, nil
}

// Stack concatenates 2D planes of identical shape into a [len(planes) H W] frame
func Stack(planes ...*Frame) (*Frame, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShape)
	}
	first := planes[0]
	if first.NDim() != 2 {
		return nil, fmt.Errorf("%w: Stack needs 2D planes, have %v", ErrShape, first.Shape)
	}
	out := New(len(planes), first.Shape[0], first.Shape[1])
	n := first.Len()
	for i, p := range planes {
		if !p.SameShape(first) {
			return nil, fmt.Errorf("%w: plane %d is %v, want %v", ErrShape, i, p.Shape, first.Shape)
		}
		copy(out.Data[i*n:], p.Data)
	}
	return out, nil
}
