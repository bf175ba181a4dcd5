package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/util"
)

// Report is the result of verifying a paired dataset
type Report struct {
	// Counts is the number of files per camera
	Counts map[string]int `json:"counts"`

	// Unpaired lists, per camera, indices with no file from the other camera
	Unpaired map[string][]int `json:"unpaired"`

	// NaN lists files that contain NaN values, with the count
	NaN map[string]int `json:"nan"`
}

// OK is true when the counts match and nothing is unpaired or NaN
func (r Report) OK() bool {
	var first = -1
	for _, n := range r.Counts {
		if first >= 0 && n != first {
			return false
		}
		first = n
	}
	for _, u := range r.Unpaired {
		if len(u) > 0 {
			return false
		}
	}
	return len(r.NaN) == 0
}

func (r Report) String() string {
	var b strings.Builder
	cams := make([]string, 0, len(r.Counts))
	for c := range r.Counts {
		cams = append(cams, c)
	}
	sort.Strings(cams)
	for _, c := range cams {
		fmt.Fprintf(&b, "%s: %d files", c, r.Counts[c])
		if u := r.Unpaired[c]; len(u) > 0 {
			fmt.Fprintf(&b, ", unpaired indices %s", util.IntSliceToCSV(u))
		}
		b.WriteString("\n")
	}
	paths := make([]string, 0, len(r.NaN))
	for p := range r.NaN {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&b, "%s contains %d NaN values\n", p, r.NaN[p])
	}
	return b.String()
}

// Verify checks that the recorders hold the same indices.  If checkNaN is
// true every file is read and scanned for NaN values.
func Verify(a, b *imgrec.Recorder, checkNaN bool) (Report, error) {
	rep := Report{Counts: map[string]int{}, Unpaired: map[string][]int{}, NaN: map[string]int{}}
	ia, err := a.Indices()
	if err != nil {
		return rep, err
	}
	ib, err := b.Indices()
	if err != nil {
		return rep, err
	}
	rep.Counts[a.Camera] = len(ia)
	rep.Counts[b.Camera] = len(ib)
	rep.Unpaired[a.Camera] = difference(ia, ib)
	rep.Unpaired[b.Camera] = difference(ib, ia)
	if !checkNaN {
		return rep, nil
	}
	for _, set := range []struct {
		rec *imgrec.Recorder
		idx []int
	}{{a, ia}, {b, ib}} {
		for _, i := range set.idx {
			f, err := set.rec.Read(i)
			if err != nil {
				return rep, err
			}
			if n := frame.CountNaN(f); n > 0 {
				rep.NaN[set.rec.Path(i)] = n
			}
		}
	}
	return rep, nil
}

// difference returns the elements of sorted a missing from sorted b
func difference(a, b []int) []int {
	var out []int
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j >= len(b) || b[j] != v {
			out = append(out, v)
		}
	}
	return out
}

// CropAll crops every file of rec in place to r.  It returns the number of
// files rewritten.
func CropAll(rec *imgrec.Recorder, r frame.Rect) (int, error) {
	idx, err := rec.Indices()
	if err != nil {
		return 0, err
	}
	for n, i := range idx {
		f, err := rec.Read(i)
		if err != nil {
			return n, err
		}
		c, err := frame.Crop(f, r)
		if err != nil {
			return n, fmt.Errorf("%s: %w", rec.Path(i), err)
		}
		if _, err := rec.Write(i, c); err != nil {
			return n, err
		}
	}
	return len(idx), nil
}
