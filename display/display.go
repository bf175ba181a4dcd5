/*Package display paces a capture session.

A sequencer's Next shows the next reference image (or simply waits for a
trigger) and returns the name the resulting capture pair is tagged with.
io.EOF ends the session.
*/
package display

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// Screen shows one image at a time
type Screen interface {
	// Present replaces what is on screen with img
	Present(img image.Image, title string) error

	// Size is the drawable area in pixels
	Size() (w, h int)
}

// FitRect is the largest rectangle with the aspect ratio of an iw x ih
// image that fits in w x h, centered
func FitRect(iw, ih, w, h int) image.Rectangle {
	if iw <= 0 || ih <= 0 {
		return image.Rectangle{}
	}
	scale := math.Min(float64(w)/float64(iw), float64(h)/float64(ih))
	nw := int(math.Round(float64(iw) * scale))
	nh := int(math.Round(float64(ih) * scale))
	x0 := w/2 - nw/2
	y0 := h/2 - nh/2
	return image.Rect(x0, y0, x0+nw, y0+nh)
}

// ScaleToFit draws src onto a black w x h canvas, scaled to fit with its
// aspect ratio kept and centered
func ScaleToFit(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	b := src.Bounds()
	r := FitRect(b.Dx(), b.Dy(), w, h)
	xdraw.CatmullRom.Scale(dst, r, src, b, xdraw.Over, nil)
	return dst
}

// Headless is a Screen with no display attached.  It logs each image and
// remembers the last one.
type Headless struct {
	W, H int
	Log  *slog.Logger

	mu    sync.Mutex
	last  image.Image
	title string
	count int
}

// Present implements Screen
func (s *Headless) Present(img image.Image, title string) error {
	s.mu.Lock()
	s.last, s.title = img, title
	s.count++
	s.mu.Unlock()
	if s.Log != nil {
		s.Log.Info("presenting image", "title", title)
	}
	return nil
}

// Size implements Screen
func (s *Headless) Size() (int, int) {
	return s.W, s.H
}

// Last returns the last image presented, its title and how many were shown
func (s *Headless) Last() (image.Image, string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.title, s.count
}
