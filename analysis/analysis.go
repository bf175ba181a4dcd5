// Package analysis holds the offline checks run on a captured dataset:
// region SNR, mean spectra, per channel statistics, correlation between
// frames, and dataset verification.
package analysis

import (
	"fmt"

	"github.com/nasa-jpl/hsicap/frame"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Bands, MinWavelength and MaxWavelength describe the hyperspectral camera's
// spectral axis, in nm
const (
	Bands         = 106
	MinWavelength = 450.
	MaxWavelength = 850.
)

// Wavelengths returns n evenly spaced wavelengths from lo to hi inclusive
func Wavelengths(n int, lo, hi float64) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// RegionSNR is the SNR of the pixels of f inside r.  A zero r is the whole
// frame.
func RegionSNR(f *frame.Frame, r frame.Rect) (float64, error) {
	c, err := frame.Crop(f, r)
	if err != nil {
		return 0, err
	}
	return frame.SNR(c.Data), nil
}

// MeanSpectrum averages each band of a [B H W] cube over the region r
func MeanSpectrum(cube *frame.Frame, r frame.Rect) ([]float64, error) {
	if cube.NDim() != 3 {
		return nil, fmt.Errorf("%w: spectrum needs [B H W], have %v", frame.ErrShape, cube.Shape)
	}
	c, err := frame.Crop(cube, r)
	if err != nil {
		return nil, err
	}
	out := make([]float64, c.Shape[0])
	for b := range out {
		p, _ := c.Plane(b)
		out[b] = stat.Mean(p.Data, nil)
	}
	return out, nil
}

// ChannelStat summarizes one plane of a stack
type ChannelStat struct {
	Channel int     `json:"channel"`
	Label   string  `json:"label"`
	Mean    float64 `json:"mean"`
	SNR     float64 `json:"snr"`
}

// ChannelStats computes the mean and SNR of every plane of a [C H W] stack.
// labels name the planes and may be shorter than C.
func ChannelStats(f *frame.Frame, labels ...string) ([]ChannelStat, error) {
	if f.NDim() != 3 {
		return nil, fmt.Errorf("%w: channel stats need [C H W], have %v", frame.ErrShape, f.Shape)
	}
	out := make([]ChannelStat, f.Shape[0])
	for i := range out {
		p, _ := f.Plane(i)
		out[i] = ChannelStat{Channel: i, Mean: stat.Mean(p.Data, nil), SNR: frame.SNR(p.Data)}
		if i < len(labels) {
			out[i].Label = labels[i]
		} else {
			out[i].Label = fmt.Sprint(i)
		}
	}
	return out, nil
}

// PolarLabels names the planes of a demosaiced polarization frame
func PolarLabels() []string {
	out := make([]string, 0, len(frame.PolarAngles)+1)
	for _, a := range frame.PolarAngles {
		out = append(out, fmt.Sprintf("%d deg", a))
	}
	return append(out, "raw")
}

// CorrelationMatrix returns the Pearson correlation between every pair of
// frames after subtracting dark from each (without clamping).  dark may be
// nil.
func CorrelationMatrix(frames []*frame.Frame, dark *frame.Frame) (*mat.SymDense, error) {
	n := len(frames)
	if n == 0 {
		return nil, fmt.Errorf("%w: no frames", frame.ErrShape)
	}
	data := make([][]float64, n)
	for i, f := range frames {
		if !f.SameShape(frames[0]) {
			return nil, fmt.Errorf("%w: frame %d is %v, frame 0 is %v", frame.ErrShape, i, f.Shape, frames[0].Shape)
		}
		d := append([]float64(nil), f.Data...)
		if dark != nil {
			if !dark.SameShape(f) {
				return nil, fmt.Errorf("%w: dark is %v, frames are %v", frame.ErrShape, dark.Shape, f.Shape)
			}
			floats.Sub(d, dark.Data)
		}
		data[i] = d
	}
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, stat.Correlation(data[i], data[j], nil))
		}
	}
	return m, nil
}
