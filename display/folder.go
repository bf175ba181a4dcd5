package display

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	// decoders for the reference images
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/time/rate"
)

// Folder shows every .jpg, .jpeg and .png in a directory, in name order
type Folder struct {
	// Dir is the image folder
	Dir string

	// Screen receives the images
	Screen Screen

	// Warmup is waited once before the first image, for the monitor to
	// come up
	Warmup time.Duration

	// Settle is waited after each image is presented, before capture
	Settle time.Duration

	names   []string
	next    int
	limiter *rate.Limiter
}

// NewFolder lists dir.  interval is the minimum time between images; zero
// does not limit.
func NewFolder(dir string, s Screen, interval time.Duration) (*Folder, error) {
	names, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("display: no images in %s", dir)
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Folder{
		Dir:     dir,
		Screen:  s,
		Warmup:  2 * time.Second,
		Settle:  500 * time.Millisecond,
		names:   names,
		limiter: lim,
	}, nil
}

// ListImages returns the sorted image file names in dir
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			if !e.IsDir() {
				out = append(out, e.Name())
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len is the number of images
func (f *Folder) Len() int {
	return len(f.names)
}

// Skip advances past the first n images, for resuming a session
func (f *Folder) Skip(n int) {
	f.next += n
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Next presents the next image and returns its file name
func (f *Folder) Next(ctx context.Context) (string, error) {
	if f.next >= len(f.names) {
		return "", io.EOF
	}
	if f.next == 0 {
		if err := sleep(ctx, f.Warmup); err != nil {
			return "", err
		}
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	name := f.names[f.next]
	f.next++
	img, err := decode(filepath.Join(f.Dir, name))
	if err != nil {
		return "", err
	}
	w, h := f.Screen.Size()
	if err := f.Screen.Present(ScaleToFit(img, w, h), name); err != nil {
		return "", fmt.Errorf("present %s: %w", name, err)
	}
	if err := sleep(ctx, f.Settle); err != nil {
		return "", err
	}
	return name, nil
}

func decode(path string) (image.Image, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	img, _, err := image.Decode(fid)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
