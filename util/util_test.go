package util_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/nasa-jpl/hsicap/util"
)

func ExampleIntSliceToCSV() {
	fmt.Println(util.IntSliceToCSV([]int{1, 2, 3, 4, 5}))
	// Output: 1,2,3,4,5
}

func ExampleParseDuration() {
	d, _ := util.ParseDuration("0.25")
	fmt.Println(d)
	// Output: 250ms
}

func TestAllElementsNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"25", true},
		{"0.5", true},
		{"25ms", false},
		{"", false},
		{"-1", false},
	}
	for _, c := range cases {
		if got := util.AllElementsNumbers(c.in); got != c.want {
			t.Errorf("AllElementsNumbers(%q) = %v, expected %v", c.in, got, c.want)
		}
	}
}

func TestParseDurationUnits(t *testing.T) {
	d, err := util.ParseDuration("700ms")
	if err != nil || d != 700*time.Millisecond {
		t.Errorf("expected 700ms, got %v (%v)", d, err)
	}
	if _, err := util.ParseDuration("fast"); err == nil {
		t.Error("expected an error for a non duration")
	}
}

func TestMsToDuration(t *testing.T) {
	if d := util.MsToDuration(100); d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", d)
	}
	if d := util.SecsToDuration(1.5); d != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", d)
	}
}

func TestClamp(t *testing.T) {
	if util.Clamp(-3, 0, 10) != 0 || util.Clamp(30, 0, 10) != 10 || util.Clamp(4, 0, 10) != 4 {
		t.Error("clamp did not bound the value")
	}
}
