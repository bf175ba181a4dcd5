package frame

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the pixel values of a frame
type Stats struct {
	Shape []int   `json:"shape"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	SNR   float64 `json:"snr"`
}

func (s Stats) String() string {
	return fmt.Sprintf("shape=%v max=%.4g min=%.4g avg=%.4g snr=%.4g", s.Shape, s.Max, s.Min, s.Mean, s.SNR)
}

// SNR is the mean divided by the population standard deviation of data.
// Data with no spread, or no data at all, has an SNR of zero.
func SNR(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if floats.Min(data) == floats.Max(data) {
		return 0
	}
	mean, std := stat.PopMeanStdDev(data, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}

// Describe computes Stats for f
func Describe(f *Frame) Stats {
	s := Stats{Shape: append([]int(nil), f.Shape...)}
	if f.Len() == 0 {
		return s
	}
	s.Min = floats.Min(f.Data)
	s.Max = floats.Max(f.Data)
	s.Mean, s.Std = stat.PopMeanStdDev(f.Data, nil)
	if s.Min == s.Max {
		s.Std = 0
	}
	s.SNR = SNR(f.Data)
	return s
}

// CountNaN returns the number of NaN values in f
func CountNaN(f *Frame) int {
	n := 0
	for _, v := range f.Data {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
