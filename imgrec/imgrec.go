// Package imgrec contains the image recorder used to write one camera's half
// of a paired dataset to disk.
package imgrec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nasa-jpl/hsicap/bandtiff"
	"github.com/nasa-jpl/hsicap/frame"
)

// Format is an on-disk image format
type Format string

const (
	// TIFF writes float32 multi-page TIFF, one page per band
	TIFF Format = "tiff"

	// FITS writes a float32 FITS cube
	FITS Format = "fits"
)

// Ext is the file extension, without the dot
func (f Format) Ext() string {
	if f == FITS {
		return "fits"
	}
	return "tif"
}

// ParseFormat accepts "tiff", "tif" or "fits"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "tif", "tiff":
		return TIFF, nil
	case "fits", "fit":
		return FITS, nil
	}
	return "", fmt.Errorf("imgrec: unknown format %q", s)
}

// Recorder writes files named <index>_<Camera>.<ext> into Root.  Writes are
// atomic: data goes to a temporary file in Root that is renamed into place,
// so an interrupted write never leaves a partial dataset file behind.
// Distinct indices may be written concurrently.
type Recorder struct {
	// Root is the output folder
	Root string

	// Camera is the camera name used as the filename suffix
	Camera string

	// Format is the file format; TIFF if empty
	Format Format
}

// Path is the file the recorder uses for index
func (r *Recorder) Path(index int) string {
	return filepath.Join(r.Root, fmt.Sprintf("%d_%s.%s", index, r.Camera, r.Format.Ext()))
}

// Write encodes f and stores it for index, returning the path
func (r *Recorder) Write(index int, f *frame.Frame) (string, error) {
	if err := os.MkdirAll(r.Root, 0777); err != nil {
		return "", err
	}
	fn := r.Path(index)
	tmp, err := os.CreateTemp(r.Root, "."+filepath.Base(fn)+".*.partial")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	err = Encode(tmp, f, r.Format)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", fn, err)
	}
	if err := os.Rename(tmpName, fn); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return fn, nil
}

// Remove deletes the file for index.  A missing file is not an error.
func (r *Recorder) Remove(index int) error {
	err := os.Remove(r.Path(index))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether a file is present for index
func (r *Recorder) Exists(index int) bool {
	_, err := os.Stat(r.Path(index))
	return err == nil
}

// Read loads the frame stored for index
func (r *Recorder) Read(index int) (*frame.Frame, error) {
	return ReadFile(r.Path(index))
}

// Indices scans Root and returns the sorted indices that have a file.  A
// missing folder yields no indices.
func (r *Recorder) Indices() ([]int, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	suffix := "_" + r.Camera + "." + r.Format.Ext()
	var out []int
	for _, e := range entries {
		fn := e.Name()
		// skip directories, temporaries, and other cameras or formats
		if e.IsDir() || strings.HasPrefix(fn, ".") || !strings.HasSuffix(fn, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(fn, suffix))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Last returns the highest index on disk, or -1 if there are none
func (r *Recorder) Last() (int, error) {
	idx, err := r.Indices()
	if err != nil {
		return -1, err
	}
	if len(idx) == 0 {
		return -1, nil
	}
	return idx[len(idx)-1], nil
}

// Encode writes f to w in format
func Encode(w io.Writer, f *frame.Frame, format Format) error {
	if format == FITS {
		return WriteFITS(w, f)
	}
	return bandtiff.Encode(w, f)
}

// ReadFile loads a .tif/.tiff or .fits/.fit file, chosen by extension
func ReadFile(path string) (*frame.Frame, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit":
		return ReadFITS(fid)
	case ".tif", ".tiff":
		st, err := fid.Stat()
		if err != nil {
			return nil, err
		}
		return bandtiff.Decode(fid, st.Size())
	}
	return nil, fmt.Errorf("imgrec: unknown extension on %s", path)
}
