package imgrec

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/nasa-jpl/hsicap/frame"
)

func cube() *frame.Frame {
	f := frame.New(2, 3, 4)
	for i := range f.Data {
		f.Data[i] = float64(i) + 0.25
	}
	return f
}

func TestPathNaming(t *testing.T) {
	r := Recorder{Root: "out", Camera: "cubert"}
	if got := r.Path(31); got != filepath.Join("out", "31_cubert.tif") {
		t.Errorf("unexpected path %s", got)
	}
	r.Format = FITS
	if got := r.Path(31); got != filepath.Join("out", "31_cubert.fits") {
		t.Errorf("unexpected path %s", got)
	}
}

func TestWriteReadTIFF(t *testing.T) {
	r := &Recorder{Root: t.TempDir(), Camera: "thorlabs"}
	f := cube()
	fn, err := r.Write(7, f)
	if err != nil {
		t.Fatal(err)
	}
	if fn != r.Path(7) || !r.Exists(7) {
		t.Fatalf("expected file at %s", r.Path(7))
	}
	got, err := r.Read(7)
	if err != nil {
		t.Fatal(err)
	}
	if !got.SameShape(f) || got.Data[5] != f.Data[5] {
		t.Errorf("round trip changed the frame: %v", got.Shape)
	}
}

func TestWriteLeavesNoTemporaries(t *testing.T) {
	dir := t.TempDir()
	r := &Recorder{Root: dir, Camera: "cubert"}
	if _, err := r.Write(1, cube()); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected exactly one file, found %d", len(entries))
	}
}

func TestFITSCube(t *testing.T) {
	var buf bytes.Buffer
	f := cube()
	if err := WriteFITS(&buf, f); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFITS(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.SameShape(f) {
		t.Fatalf("expected shape %v, got %v", f.Shape, got.Shape)
	}
	for i := range f.Data {
		if got.Data[i] != f.Data[i] {
			t.Fatalf("index %d: expected %v, got %v", i, f.Data[i], got.Data[i])
		}
	}
}

func TestIndicesAndRemove(t *testing.T) {
	dir := t.TempDir()
	r := &Recorder{Root: dir, Camera: "thorlabs"}
	other := &Recorder{Root: dir, Camera: "cubert"}
	f := frame.New(2, 2)
	for _, i := range []int{3, 12, 5} {
		if _, err := r.Write(i, f); err != nil {
			t.Fatal(err)
		}
	}
	other.Write(40, f)
	os.WriteFile(filepath.Join(dir, "notes_thorlabs.tif"), []byte("x"), 0666)

	last, err := r.Last()
	if err != nil || last != 12 {
		t.Fatalf("expected last index 12, got %d (%v)", last, err)
	}
	if err := r.Remove(12); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(12); err != nil {
		t.Errorf("removing a missing file should not fail, got %v", err)
	}
	idx, _ := r.Indices()
	if len(idx) != 2 || idx[0] != 3 || idx[1] != 5 {
		t.Errorf("expected [3 5], got %v", idx)
	}
}

func TestLastEmpty(t *testing.T) {
	r := &Recorder{Root: filepath.Join(t.TempDir(), "missing"), Camera: "cubert"}
	last, err := r.Last()
	if err != nil || last != -1 {
		t.Errorf("expected -1, got %d (%v)", last, err)
	}
}
