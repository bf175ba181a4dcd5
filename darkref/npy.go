package darkref

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/nasa-jpl/hsicap/frame"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// ErrNPY is returned for .npy content this package cannot read
var ErrNPY = errors.New("darkref: unsupported npy data")

// MaxElements bounds the element count ReadNPY will allocate for
const MaxElements = 1 << 28

// WriteNPY writes f as a C-ordered .npy array of little-endian float64
func WriteNPY(w io.Writer, f *frame.Frame) error {
	if len(f.Shape) == 0 || len(f.Data) == 0 {
		return fmt.Errorf("%w: empty frame %v", ErrNPY, f.Shape)
	}
	switch len(f.Shape) {
	case 1:
		return npyio.Write(w, f.Data)
	case 2:
		return npyio.Write(w, mat.NewDense(f.Shape[0], f.Shape[1], f.Data))
	}
	// npyio takes the shape of nested arrays from their types
	typ := reflect.TypeOf(float64(0))
	for i := len(f.Shape) - 1; i >= 0; i-- {
		typ = reflect.ArrayOf(f.Shape[i], typ)
	}
	arr := reflect.New(typ)
	fill(arr.Elem(), f.Data)
	return npyio.Write(w, arr.Interface())
}

func fill(v reflect.Value, data []float64) []float64 {
	if v.Kind() != reflect.Array {
		v.SetFloat(data[0])
		return data[1:]
	}
	for i := 0; i < v.Len(); i++ {
		data = fill(v.Index(i), data)
	}
	return data
}

// ReadNPY reads a C-ordered .npy array of float or integer type
func ReadNPY(r io.Reader) (*frame.Frame, error) {
	rd, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNPY, err)
	}
	descr := rd.Header.Descr
	shape := descr.Shape
	if len(shape) == 0 {
		shape = []int{1}
	}
	if descr.Fortran && len(shape) > 1 {
		return nil, fmt.Errorf("%w: fortran order", ErrNPY)
	}
	n := 1
	for _, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("%w: negative dimension in shape %v", ErrNPY, shape)
		}
		if s > 0 && n > MaxElements/s {
			return nil, fmt.Errorf("%w: shape %v exceeds %d elements", ErrNPY, shape, MaxElements)
		}
		n *= s
	}

	data := make([]float64, 0, n)
	kind := strings.TrimLeft(descr.Type, "<>|=")
	switch kind {
	case "f8":
		if err := rd.Read(&data); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrNPY, err)
		}
	case "f4":
		data, err = readAs[float32](rd, data)
	case "u1":
		data, err = readAs[uint8](rd, data)
	case "u2":
		data, err = readAs[uint16](rd, data)
	case "u4":
		data, err = readAs[uint32](rd, data)
	case "i2":
		data, err = readAs[int16](rd, data)
	case "i4":
		data, err = readAs[int32](rd, data)
	case "i8":
		data, err = readAs[int64](rd, data)
	default:
		return nil, fmt.Errorf("%w: dtype %q", ErrNPY, descr.Type)
	}
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrNPY, len(data), shape)
	}
	return frame.FromSlice(data, shape...)
}

type number interface {
	~float32 | ~uint8 | ~uint16 | ~uint32 | ~int16 | ~int32 | ~int64
}

func readAs[T number](rd *npyio.Reader, out []float64) ([]float64, error) {
	var raw []T
	if err := rd.Read(&raw); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrNPY, err)
	}
	for _, v := range raw {
		out = append(out, float64(v))
	}
	return out, nil
}
