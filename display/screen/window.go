// Package screen shows reference images in a desktop window, full screen on
// a chosen monitor.
package screen

import (
	"image"
	"image/draw"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/nasa-jpl/hsicap/util"
)

// Window is a display.Screen backed by an ebiten window.  Run must be
// called on the main goroutine; Present may be called from any goroutine.
type Window struct {
	w, h int

	mu      sync.Mutex
	pending *image.RGBA
	title   string
	closing bool

	img *ebiten.Image
}

// New returns a w x h window
func New(w, h int) *Window {
	return &Window{w: w, h: h, title: "hsicap"}
}

// Size implements display.Screen
func (win *Window) Size() (int, int) {
	return win.w, win.h
}

// Present implements display.Screen.  The image is shown on the next frame.
func (win *Window) Present(img image.Image, title string) error {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Bounds().Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	win.mu.Lock()
	win.pending = rgba
	win.title = title
	win.mu.Unlock()
	return nil
}

// Close ends Run at the next frame
func (win *Window) Close() {
	win.mu.Lock()
	win.closing = true
	win.mu.Unlock()
}

// Update implements ebiten.Game
func (win *Window) Update() error {
	win.mu.Lock()
	defer win.mu.Unlock()
	if win.closing {
		return ebiten.Termination
	}
	if win.pending != nil {
		b := win.pending.Bounds()
		if win.img == nil || win.img.Bounds().Dx() != b.Dx() || win.img.Bounds().Dy() != b.Dy() {
			if win.img != nil {
				win.img.Deallocate()
			}
			win.img = ebiten.NewImage(b.Dx(), b.Dy())
		}
		win.img.WritePixels(win.pending.Pix)
		win.pending = nil
		ebiten.SetWindowTitle(win.title)
	}
	return nil
}

// Draw implements ebiten.Game
func (win *Window) Draw(screen *ebiten.Image) {
	if win.img != nil {
		screen.DrawImage(win.img, nil)
	}
}

// Layout implements ebiten.Game
func (win *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return win.w, win.h
}

// Run opens the window and blocks until it is closed.  monitor selects the
// display, counting from zero, and is clamped to the displays present.
func (win *Window) Run(monitor int, fullscreen bool) error {
	mons := ebiten.AppendMonitors(nil)
	if len(mons) > 0 {
		ebiten.SetMonitor(mons[util.Clamp(monitor, 0, len(mons)-1)])
	}
	ebiten.SetWindowTitle(win.title)
	ebiten.SetWindowSize(win.w, win.h)
	ebiten.SetFullscreen(fullscreen)
	ebiten.SetTPS(30)
	err := ebiten.RunGame(win)
	if err == ebiten.Termination {
		return nil
	}
	return err
}
