package imgrec

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
	"github.com/nasa-jpl/hsicap/frame"
)

// WriteFITS streams f to w as a float32 FITS image.  FITS axes run fastest
// first, so a row-major [B H W] frame becomes NAXIS1=W, NAXIS2=H, NAXIS3=B.
func WriteFITS(w io.Writer, f *frame.Frame, metadata ...fitsio.Card) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := make([]int, f.NDim())
	for i, s := range f.Shape {
		dims[len(dims)-1-i] = s
	}
	im := fitsio.NewImage(-32, dims)
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	buf := make([]float32, f.Len())
	for i, v := range f.Data {
		buf[i] = float32(v)
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// ReadFITS reads the primary image of a FITS stream into a frame
func ReadFITS(r io.Reader) (*frame.Frame, error) {
	fits, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer fits.Close()
	hdu := fits.HDU(0)
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("imgrec: primary HDU is %v, not an image", hdu.Type())
	}
	axes := img.Header().Axes()
	shape := make([]int, len(axes))
	n := 1
	for i, a := range axes {
		shape[len(shape)-1-i] = a
		n *= a
	}
	if len(axes) == 0 {
		n = 0
	}
	data := make([]float64, n)
	switch img.Header().Bitpix() {
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case -64:
		if err := img.Read(&data); err != nil {
			return nil, err
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("imgrec: unsupported BITPIX %d", img.Header().Bitpix())
	}
	return frame.FromSlice(data, shape...)
}
