package acquire

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/camera/sim"
	"github.com/nasa-jpl/hsicap/catalog"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/metrics"
	"github.com/nasa-jpl/hsicap/retry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errUSB = errors.New("usb transfer failed")

type rig struct {
	tl, cb   *sim.Camera
	tlc, cbc *Channel
	dir      string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	dir := t.TempDir()
	r := &rig{dir: dir}
	r.tl = sim.New("thorlabs", 4, 6)
	r.cb = sim.New("cubert", 3, 4, 5)
	for _, c := range []*sim.Camera{r.tl, r.cb} {
		if err := c.Initialize(); err != nil {
			t.Fatal(err)
		}
	}
	pol := retry.Policy{MaxAttempts: 15}
	r.tlc = &Channel{
		Camera:       r.tl,
		Process:      ThorlabsPipeline(frame.Rect{}),
		Recorder:     &imgrec.Recorder{Root: filepath.Join(dir, "thorlabs"), Camera: "thorlabs"},
		SNRThreshold: 0.05,
		Retry:        pol,
	}
	r.cbc = &Channel{
		Camera:       r.cb,
		Process:      CubertPipeline(frame.Rect{}),
		Recorder:     &imgrec.Recorder{Root: filepath.Join(dir, "cubert"), Camera: "cubert"},
		SNRThreshold: 0.1,
		Retry:        pol,
	}
	return r
}

func (r *rig) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New([]*Channel{r.tlc, r.cbc}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestCyclePaired(t *testing.T) {
	r := newRig(t)
	o := r.orchestrator(t)
	res := o.Cycle(context.Background(), 0, "0.jpg")
	if !res.Paired {
		t.Fatalf("expected a pair, got %+v", res.Outcomes)
	}
	tl, err := r.tlc.Recorder.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if tl.Shape[0] != 5 || tl.Shape[1] != 4 || tl.Shape[2] != 6 {
		t.Errorf("expected [5 4 6] thorlabs file, got %v", tl.Shape)
	}
	cb, err := r.cbc.Recorder.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if cb.Shape[0] != 5 || cb.Shape[1] != 3 || cb.Shape[2] != 4 {
		t.Errorf("expected band first [5 3 4] cubert file, got %v", cb.Shape)
	}
}

func TestPartnerDeletedOnPermanentFailure(t *testing.T) {
	r := newRig(t)
	r.cb.Fail = sim.FailAlways(errUSB)
	r.cbc.Retry.MaxAttempts = 3
	m := metrics.New()
	o := r.orchestrator(t, WithMetrics(m))

	res := o.Cycle(context.Background(), 7, "7.jpg")
	if res.Paired {
		t.Fatal("expected the cycle to fail")
	}
	if r.tlc.Recorder.Exists(7) || r.cbc.Recorder.Exists(7) {
		t.Error("expected no file for either camera")
	}
	cb := res.Outcomes[1]
	if cb.Attempts != 3 || !errors.Is(cb.Err, errUSB) {
		t.Errorf("expected 3 attempts ending in the device error, got %d %v", cb.Attempts, cb.Err)
	}
	if !errors.Is(res.Outcomes[0].Err, ErrPartnerFailed) {
		t.Errorf("expected the thorlabs frame to be marked deleted, got %v", res.Outcomes[0].Err)
	}
	if v := testutil.ToFloat64(m.Orphans); v != 1 {
		t.Errorf("expected one orphan removal, got %v", v)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	r := newRig(t)
	r.tl.Fail = sim.FailFirst(14, errUSB)
	o := r.orchestrator(t)
	res := o.Cycle(context.Background(), 1, "")
	if !res.Paired {
		t.Fatalf("expected a pair, got %+v", res.Outcomes)
	}
	if res.Outcomes[0].Attempts != 15 {
		t.Errorf("expected 15 attempts, got %d", res.Outcomes[0].Attempts)
	}
	idx, _ := r.tlc.Recorder.Indices()
	if len(idx) != 1 || idx[0] != 1 {
		t.Errorf("expected exactly one thorlabs file, got %v", idx)
	}
}

func TestLowSNRRetried(t *testing.T) {
	r := newRig(t)
	r.cb.Noise = 0
	r.cbc.Retry.MaxAttempts = 4
	o := r.orchestrator(t)
	res := o.Cycle(context.Background(), 0, "")
	if res.Paired {
		t.Fatal("a constant cube has an SNR of zero and should be rejected")
	}
	if !errors.Is(res.Outcomes[1].Err, ErrLowSNR) || r.cb.Frames() != 4 {
		t.Errorf("expected 4 low SNR attempts, got %d: %v", r.cb.Frames(), res.Outcomes[1].Err)
	}

	r.cbc.SNRThreshold = 0
	res = o.Cycle(context.Background(), 1, "")
	if !res.Paired {
		t.Errorf("a zero threshold should disable the check: %v", res.Outcomes[1].Err)
	}
}

func TestDarkSubtracted(t *testing.T) {
	r := newRig(t)
	r.cb.Noise = 0
	r.cbc.SNRThreshold = 0
	dark := frame.New(3, 4, 5)
	for i := range dark.Data {
		dark.Data[i] = 400
	}
	r.cbc.Dark = dark
	o := r.orchestrator(t)
	if res := o.Cycle(context.Background(), 0, ""); !res.Paired {
		t.Fatalf("expected a pair, got %+v", res.Outcomes)
	}
	cb, err := r.cbc.Recorder.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if cb.Data[0] != 600 {
		t.Errorf("expected 1000-400=600, got %v", cb.Data[0])
	}
}

func TestResetOnError(t *testing.T) {
	r := newRig(t)
	r.tl.Fail = sim.FailFirst(2, errUSB)
	r.tlc.ResetOnError = true
	r.tlc.Setup = camera.Setup{Exposure: 50 * time.Millisecond, Poll: time.Millisecond}
	o := r.orchestrator(t)
	if res := o.Cycle(context.Background(), 0, ""); !res.Paired {
		t.Fatalf("expected a pair, got %+v", res.Outcomes)
	}
	if r.tl.Inits() != 3 {
		t.Errorf("expected two resets after the first initialize, got %d initializations", r.tl.Inits())
	}
	if exp, _ := r.tl.GetExposureTime(); exp != 50*time.Millisecond {
		t.Errorf("expected the reset to reapply the exposure, got %v", exp)
	}
}

func TestSequentialSkipsCubert(t *testing.T) {
	r := newRig(t)
	r.tl.Fail = sim.FailAlways(errUSB)
	r.tlc.Retry.MaxAttempts = 2
	o := r.orchestrator(t, WithSequential(true))
	res := o.Cycle(context.Background(), 0, "")
	if !res.Skipped || res.Result() != "skipped" {
		t.Fatalf("expected a skipped cycle, got %s", res.Result())
	}
	if r.cb.Frames() != 0 {
		t.Errorf("cubert should not have been triggered, got %d frames", r.cb.Frames())
	}
	r.tl.Fail = nil
	r.cb.Fail = sim.FailAlways(errUSB)
	r.cbc.Retry.MaxAttempts = 2
	res = o.Cycle(context.Background(), 1, "")
	if res.Paired || r.tlc.Recorder.Exists(1) {
		t.Error("expected the thorlabs file to be removed after cubert failed")
	}
}

// stubborn ignores cancellation, like a vendor call that cannot be interrupted
type stubborn struct {
	*sim.Camera
	delay time.Duration
}

func (s stubborn) GetFrame(ctx context.Context) (*frame.Frame, error) {
	time.Sleep(s.delay)
	return s.Camera.GetFrame(context.Background())
}

func TestCycleTimeoutLeavesNothing(t *testing.T) {
	r := newRig(t)
	r.cbc.Camera = stubborn{Camera: r.cb, delay: 150 * time.Millisecond}
	o := r.orchestrator(t, WithCycleTimeout(30*time.Millisecond))
	res := o.Cycle(context.Background(), 2, "")
	if res.Paired {
		t.Fatal("expected the cycle to time out")
	}
	if !errors.Is(res.Outcomes[1].Err, context.DeadlineExceeded) {
		t.Errorf("expected a deadline error for cubert, got %v", res.Outcomes[1].Err)
	}
	if r.tlc.Recorder.Exists(2) {
		t.Error("thorlabs file should have been removed")
	}
	// the abandoned capture finishes later and must clean up after itself
	time.Sleep(400 * time.Millisecond)
	if r.cbc.Recorder.Exists(2) {
		t.Error("late cubert file should have been removed by its own goroutine")
	}
}

type names []string

func (n *names) Next(ctx context.Context) (string, error) {
	if len(*n) == 0 {
		return "", io.EOF
	}
	s := (*n)[0]
	*n = (*n)[1:]
	return s, nil
}

func TestRunResumesAndCatalogs(t *testing.T) {
	r := newRig(t)
	if _, err := r.tlc.Recorder.Write(4, frame.New(2, 2)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(r.dir, "catalog.jsonl")
	store, err := catalog.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	o := r.orchestrator(t, WithCatalog(store))
	seq := &names{"a.jpg", "b.jpg", "c.jpg"}
	sum, err := o.Run(context.Background(), seq)
	if err != nil {
		t.Fatal(err)
	}
	store.Close()
	if sum.Cycles != 3 || sum.Paired != 3 {
		t.Errorf("unexpected summary %+v", sum)
	}
	for _, i := range []int{5, 6, 7} {
		if !r.tlc.Recorder.Exists(i) || !r.cbc.Recorder.Exists(i) {
			t.Errorf("missing pair %d", i)
		}
	}
	entries, err := catalog.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Index != 5 || entries[2].Name != "c.jpg" || entries[0].Session != o.Session() {
		t.Errorf("unexpected catalog %+v", entries)
	}
	last, ok := o.Last()
	if !ok || last.Index != 7 {
		t.Errorf("expected last index 7, got %+v", last)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := r.orchestrator(t, WithStartIndex(0))
	_, err := o.Run(ctx, &names{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if r.tlc.Recorder.Exists(0) || r.cbc.Recorder.Exists(0) {
		t.Error("a cancelled run should leave no files")
	}
}

func TestNewRejectsSharedOutput(t *testing.T) {
	r := newRig(t)
	r.cbc.Recorder = r.tlc.Recorder
	if _, err := New([]*Channel{r.tlc, r.cbc}); err == nil {
		t.Error("expected an error for channels writing the same files")
	}
}
