package display

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFitRect(t *testing.T) {
	cases := []struct {
		iw, ih, w, h int
		want         image.Rectangle
	}{
		{640, 480, 1280, 720, image.Rect(160, 0, 1120, 720)},
		{1920, 1080, 1280, 720, image.Rect(0, 0, 1280, 720)},
		{100, 400, 1280, 720, image.Rect(550, 0, 730, 720)},
	}
	for _, c := range cases {
		if got := FitRect(c.iw, c.ih, c.w, c.h); got != c.want {
			t.Errorf("FitRect(%d, %d, %d, %d) = %v, expected %v", c.iw, c.ih, c.w, c.h, got, c.want)
		}
	}
}

func TestScaleToFitLetterbox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	dst := ScaleToFit(src, 8, 8)
	if c := dst.RGBAAt(4, 0); c != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("expected a black border, got %v", c)
	}
	if c := dst.RGBAAt(4, 4); c.R < 200 {
		t.Errorf("expected the image in the middle, got %v", c)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	fid, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	if err := png.Encode(fid, image.NewGray(image.Rect(0, 0, 6, 3))); err != nil {
		t.Fatal(err)
	}
}

func TestFolder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.png", "a.png", "c.PNG"} {
		writePNG(t, filepath.Join(dir, n))
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0666)
	scr := &Headless{W: 32, H: 16}
	f, err := NewFolder(dir, scr, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Warmup, f.Settle = 0, 0
	var got []string
	for {
		name, err := f.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, name)
	}
	if strings.Join(got, ",") != "a.png,b.png,c.PNG" {
		t.Errorf("unexpected order %v", got)
	}
	img, title, n := scr.Last()
	if n != 3 || title != "c.PNG" || img.Bounds().Dx() != 32 {
		t.Errorf("unexpected screen state %d %s %v", n, title, img.Bounds())
	}
}

func TestFolderEmpty(t *testing.T) {
	if _, err := NewFolder(t.TempDir(), &Headless{}, 0); err == nil {
		t.Error("expected an error for a folder without images")
	}
}

func TestFolderCancelDuringWarmup(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	f, _ := NewFolder(dir, &Headless{W: 2, H: 2}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the warmup to be cancelled, got %v", err)
	}
}

func TestCounter(t *testing.T) {
	c := &Counter{Start: 10, Limit: 3}
	var got []string
	for {
		name, err := c.Next(context.Background())
		if err == io.EOF {
			break
		}
		got = append(got, name)
	}
	if strings.Join(got, ",") != "10,11,12" {
		t.Errorf("unexpected names %v", got)
	}
}

func TestManual(t *testing.T) {
	m := &Manual{In: strings.NewReader("\nscene-b\nend\nignored\n")}
	ctx := context.Background()
	if name, err := m.Next(ctx); err != nil || name != "1" {
		t.Errorf("expected 1, got %q (%v)", name, err)
	}
	if name, err := m.Next(ctx); err != nil || name != "scene-b" {
		t.Errorf("expected scene-b, got %q (%v)", name, err)
	}
	if _, err := m.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF after end, got %v", err)
	}
}
