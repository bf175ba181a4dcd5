package camera_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/nasa-jpl/hsicap/camera/sim"
	httpcamera "github.com/nasa-jpl/hsicap/generichttp/camera"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/server/middleware/locker"
)

func setup(t *testing.T, rec *imgrec.Recorder) (*sim.Camera, *httptest.Server, *locker.Locker) {
	t.Helper()
	c := sim.New("thorlabs", 4, 4)
	c.Initialize()
	w := httpcamera.NewHTTPCamera(c, rec)
	l := locker.New()
	locker.Inject(w, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	w.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return c, srv, l
}

func TestExposureQueryAndJSON(t *testing.T) {
	c, srv, _ := setup(t, nil)
	resp, err := http.Post(srv.URL+"/exposure-time?exposureTime=0.5", "", nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("set exposure failed: %v %v", err, resp)
	}
	if d, _ := c.GetExposureTime(); d != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", d)
	}
	resp, err = http.Post(srv.URL+"/exposure-time", "application/json", strings.NewReader(`{"f64": 0.025}`))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("set exposure failed: %v %v", err, resp)
	}
	if d, _ := c.GetExposureTime(); d != 25*time.Millisecond {
		t.Errorf("expected 25ms, got %v", d)
	}
}

func TestImageIsFITS(t *testing.T) {
	dir := t.TempDir()
	rec := &imgrec.Recorder{Root: dir, Camera: "thorlabs"}
	_, srv, _ := setup(t, rec)
	resp, err := http.Get(srv.URL + "/image?exposureTime=50ms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/fits" {
		t.Errorf("expected image/fits, got %s", ct)
	}
	f, err := imgrec.ReadFITS(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if f.Shape[0] != 4 || f.Shape[1] != 4 {
		t.Errorf("unexpected shape %v", f.Shape)
	}
	if !rec.Exists(0) {
		t.Error("expected the served frame to be recorded as index 0")
	}
}

func TestLockedRejectsButLockRouteWorks(t *testing.T) {
	_, srv, l := setup(t, nil)
	l.Lock()
	resp, err := http.Get(srv.URL + "/exposure-time")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423, got %d", resp.StatusCode)
	}
	resp, err = http.Post(srv.URL+"/lock", "application/json", strings.NewReader(`{"bool": false}`))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock failed: %v %v", err, resp)
	}
	if l.Locked() {
		t.Error("expected the locker to be unlocked")
	}
}

func TestDistanceRoute(t *testing.T) {
	c, srv, _ := setup(t, nil)
	resp, err := http.Post(srv.URL+"/distance", "application/json", strings.NewReader(`{"f64": 850}`))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("set distance failed: %v %v", err, resp)
	}
	if c.Distance() != 850 {
		t.Errorf("expected 850, got %v", c.Distance())
	}
}

func TestReset(t *testing.T) {
	c, srv, _ := setup(t, nil)
	resp, err := http.Post(srv.URL+"/reset", "", nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("reset failed: %v %v", err, resp)
	}
	if c.Inits() != 2 {
		t.Errorf("expected a second initialize, got %d", c.Inits())
	}
}
