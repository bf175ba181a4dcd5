package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/nasa-jpl/hsicap/bandtiff"
	"github.com/nasa-jpl/hsicap/catalog"
	"github.com/nasa-jpl/hsicap/darkref"
	"github.com/nasa-jpl/hsicap/frame"
)

func TestParseRect(t *testing.T) {
	r, err := parseRect("10, 20,5,15")
	if err != nil {
		t.Fatal(err)
	}
	if r != (frame.Rect{X0: 10, X1: 20, Y0: 5, Y1: 15}) {
		t.Errorf("got %+v", r)
	}
	if r, err := parseRect(""); err != nil || !r.Empty() {
		t.Errorf("expected the empty region, got %+v %v", r, err)
	}
	for _, bad := range []string{"1,2,3", "a,b,c,d"} {
		if _, err := parseRect(bad); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}
}

func TestDarkavgWritesLoadableMaster(t *testing.T) {
	dir := t.TempDir()
	for i, v := range []float64{1, 2, 6} {
		f := frame.New(2, 3, 4)
		for j := range f.Data {
			f.Data[j] = v + float64(j)
		}
		fid, err := os.Create(filepath.Join(dir, "dark_"+string(rune('a'+i))+".tif"))
		if err != nil {
			t.Fatal(err)
		}
		if err := bandtiff.Encode(fid, f); err != nil {
			t.Fatal(err)
		}
		fid.Close()
	}
	out := filepath.Join(t.TempDir(), "masterdark_cb_100ms.npy")
	darkavg([]string{dir, out})

	m, err := darkref.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if m.NDim() != 3 || m.Shape[0] != 2 || m.Shape[1] != 3 || m.Shape[2] != 4 {
		t.Fatalf("unexpected shape %v", m.Shape)
	}
	for j, v := range m.Data {
		if want := 3 + float64(j); v != want {
			t.Fatalf("index %d: expected %v, got %v", j, want, v)
		}
	}
}

func TestPrintCycles(t *testing.T) {
	sess := uuid.New()
	entries := []catalog.Entry{
		{Session: sess, Index: 0, Name: "a.png", Paired: true,
			Shots: []catalog.Shot{{Camera: "thorlabs", Attempts: 1, OK: true, SNR: 2}, {Camera: "cubert", Attempts: 3, OK: true, SNR: 1.5}}},
		{Session: sess, Index: 1, Name: "b.png",
			Shots: []catalog.Shot{{Camera: "thorlabs", Attempts: 1, OK: true}, {Camera: "cubert", Attempts: 15, Err: "no data"}}},
	}
	var buf bytes.Buffer
	if n := printCycles(&buf, entries); n != 1 {
		t.Errorf("expected 1 paired cycle, got %d", n)
	}
	out := buf.String()
	for _, want := range []string{"a.png", "UNPAIRED", "cubert x15", "(no data)", "2 cycles, 1 paired"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}
