package frame

import (
	"errors"
	"math"
	"testing"
)

func TestSNRConstantIsZero(t *testing.T) {
	for _, v := range []float64{0, 1, 0.1, 7, -3.5, 65535} {
		data := []float64{v, v, v, v, v, v, v}
		if snr := SNR(data); snr != 0 {
			t.Errorf("SNR of constant %v: expected 0, got %v", v, snr)
		}
	}
}

func TestSNROneToFour(t *testing.T) {
	snr := SNR([]float64{1, 2, 3, 4})
	expected := 2.5 / math.Sqrt(1.25)
	if math.Abs(snr-expected) > 1e-12 {
		t.Errorf("expected %v, got %v", expected, snr)
	}
	if math.Abs(snr-2.236) > 1e-3 {
		t.Errorf("expected approximately 2.236, got %v", snr)
	}
}

func TestSNREmpty(t *testing.T) {
	if snr := SNR(nil); snr != 0 {
		t.Errorf("expected 0 for empty data, got %v", snr)
	}
}

func TestDescribe(t *testing.T) {
	f, err := FromSlice([]float64{1, 2, 3, 4}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	s := Describe(f)
	if s.Min != 1 || s.Max != 4 || s.Mean != 2.5 {
		t.Errorf("unexpected stats %+v", s)
	}
	if math.Abs(s.Std-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("expected population std, got %v", s.Std)
	}
}

func TestSubtractDarkClampsToZero(t *testing.T) {
	sig, _ := FromSlice([]float64{1, 5, 10, 0}, 2, 2)
	dark, _ := FromSlice([]float64{2, 50, 100, 1}, 2, 2)
	out, err := SubtractDark(sig, dark)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if v != 0 {
			t.Errorf("index %d: expected 0, got %v", i, v)
		}
	}
}

func TestSubtractDarkKeepsPositive(t *testing.T) {
	sig, _ := FromSlice([]float64{10, 5}, 2)
	dark, _ := FromSlice([]float64{3, 9}, 2)
	out, err := SubtractDark(sig, dark)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 7 || out.Data[1] != 0 {
		t.Errorf("expected [7 0], got %v", out.Data)
	}
	if sig.Data[0] != 10 {
		t.Error("SubtractDark modified its input")
	}
}

func TestSubtractDarkShapeMismatch(t *testing.T) {
	_, err := SubtractDark(New(2, 2), New(2, 3))
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestAverageConstantFrames(t *testing.T) {
	for _, v := range []float64{0.1, 3, 1.0 / 3} {
		frames := make([]*Frame, 7)
		for i := range frames {
			f := New(3, 4)
			for j := range f.Data {
				f.Data[j] = v
			}
			frames[i] = f
		}
		avg, err := Average(frames)
		if err != nil {
			t.Fatal(err)
		}
		for j, got := range avg.Data {
			if got != v {
				t.Fatalf("value %v index %d: got %v", v, j, got)
			}
		}
	}
}

func TestAverageMixed(t *testing.T) {
	a, _ := FromSlice([]float64{0, 10}, 2)
	b, _ := FromSlice([]float64{2, 20}, 2)
	avg, err := Average([]*Frame{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if avg.Data[0] != 1 || avg.Data[1] != 15 {
		t.Errorf("expected [1 15], got %v", avg.Data)
	}
}

func TestToBandFirst(t *testing.T) {
	// 1x2 pixels, 3 bands: pixel 0 = (1,2,3), pixel 1 = (4,5,6)
	cube, _ := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	out, err := ToBandFirst(cube)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 4, 2, 5, 3, 6}
	if out.Shape[0] != 3 || out.Shape[1] != 1 || out.Shape[2] != 2 {
		t.Fatalf("unexpected shape %v", out.Shape)
	}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out.Data)
		}
	}
}

func TestCrop3D(t *testing.T) {
	f := New(2, 4, 5)
	for i := range f.Data {
		f.Data[i] = float64(i)
	}
	out, err := Crop(f, Rect{X0: 1, X1: 3, Y0: 2, Y1: 4})
	if err != nil {
		t.Fatal(err)
	}
	if out.Shape[0] != 2 || out.Shape[1] != 2 || out.Shape[2] != 2 {
		t.Fatalf("unexpected shape %v", out.Shape)
	}
	// band 1, row 2, col 1 => 20 + 10 + 1
	if out.Data[4] != 31 {
		t.Errorf("expected 31 at band 1 origin, got %v", out.Data[4])
	}
}

func TestCropOutOfBounds(t *testing.T) {
	_, err := Crop(New(4, 4), Rect{X0: 0, X1: 5, Y0: 0, Y1: 2})
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestCropEmptyIsIdentity(t *testing.T) {
	f := New(3, 3)
	out, err := Crop(f, Rect{})
	if err != nil || out != f {
		t.Errorf("expected the same frame back, got %v %v", out, err)
	}
}

func TestDemosaicSeparatesAngles(t *testing.T) {
	// super-pixel layout 90 45 / 135 0
	vals := map[[2]int]float64{{0, 0}: 90, {0, 1}: 45, {1, 0}: 135, {1, 1}: 0}
	h, w := 6, 8
	raw := New(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			raw.Data[y*w+x] = vals[[2]int{y % 2, x % 2}] + 1
		}
	}
	out, err := DemosaicWithRaw(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Shape[0] != 5 {
		t.Fatalf("expected 5 planes, got %v", out.Shape)
	}
	for c, angle := range PolarAngles {
		p, _ := out.Plane(c)
		for i, v := range p.Data {
			if v != float64(angle)+1 {
				t.Fatalf("plane %d (%d deg) index %d: got %v", c, angle, i, v)
			}
		}
	}
	last, _ := out.Plane(4)
	for i := range raw.Data {
		if last.Data[i] != raw.Data[i] {
			t.Fatal("fifth plane is not the raw frame")
		}
	}
}

func TestDemosaicTooSmall(t *testing.T) {
	if _, err := Demosaic(New(1, 4)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}
