package frame

import "fmt"

// Polarization angles of the demosaiced planes, in output order
var PolarAngles = [4]int{0, 45, 90, 135}

// polarOffsets gives the (row, col) position of each PolarAngles entry in the
// 2x2 super-pixel of a polarization sensor:
//
//	90  45
//	135  0
var polarOffsets = [4][2]int{
	{1, 1}, // 0
	{0, 1}, // 45
	{0, 0}, // 90
	{1, 0}, // 135
}

// Demosaic splits a raw [H W] polarization sensor frame into four full
// resolution planes, one per entry of PolarAngles, and returns them as a
// [4 H W] frame.  Missing samples are bilinearly interpolated from the
// nearest neighbours of the same angle; border pixels use whichever
// neighbours are inside the frame.
func Demosaic(raw *Frame) (*Frame, error) {
	if raw.NDim() != 2 {
		return nil, fmt.Errorf("%w: Demosaic needs [H W], have %v", ErrShape, raw.Shape)
	}
	h, w := raw.Shape[0], raw.Shape[1]
	if h < 2 || w < 2 {
		return nil, fmt.Errorf("%w: %dx%d is smaller than one super-pixel", ErrShape, h, w)
	}
	out := New(4, h, w)
	plane := h * w
	for c, off := range polarOffsets {
		oy, ox := off[0], off[1]
		dst := out.Data[c*plane : (c+1)*plane]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum float64
				var n int
				for dy := -1; dy <= 1; dy++ {
					ny := y + dy
					if ny < 0 || ny >= h || ny%2 != oy {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := x + dx
						if nx < 0 || nx >= w || nx%2 != ox {
							continue
						}
						sum += raw.Data[ny*w+nx]
						n++
					}
				}
				dst[y*w+x] = sum / float64(n)
			}
		}
	}
	return out, nil
}

// DemosaicWithRaw demosaics raw and appends the raw frame as a fifth plane,
// giving [5 H W]: 0, 45, 90, 135 degrees, then the unfiltered sensor.
func DemosaicWithRaw(raw *Frame) (*Frame, error) {
	pol, err := Demosaic(raw)
	if err != nil {
		return nil, err
	}
	planes := make([]*Frame, 0, 5)
	for i := 0; i < 4; i++ {
		p, _ := pol.Plane(i)
		planes = append(planes, p)
	}
	planes = append(planes, raw)
	return Stack(planes...)
}
