package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nasa-jpl/hsicap/acquire"
	"github.com/nasa-jpl/hsicap/metrics"
)

type source struct {
	id   uuid.UUID
	last *acquire.CycleResult
}

func (s source) Session() uuid.UUID { return s.id }

func (s source) Summary() acquire.Summary { return acquire.Summary{Cycles: 3, Paired: 2, Failed: 1} }

func (s source) Last() (acquire.CycleResult, bool) {
	if s.last == nil {
		return acquire.CycleResult{}, false
	}
	return *s.last, true
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestStatus(t *testing.T) {
	src := source{id: uuid.New(), last: &acquire.CycleResult{
		Index:    2,
		Name:     "2.jpg",
		Paired:   true,
		Time:     time.Now(),
		Outcomes: []acquire.Outcome{{Camera: "thorlabs", Path: "a.tif", Attempts: 1}},
	}}
	h := New(src, nil, "").Handler()
	w := get(t, h, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	st := Status{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Session != src.id || st.Summary.Paired != 2 {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Last == nil || st.Last.Index != 2 || len(st.Last.Shots) != 1 || !st.Last.Shots[0].OK {
		t.Errorf("unexpected last cycle %+v", st.Last)
	}
}

func TestStatusBeforeFirstCycle(t *testing.T) {
	w := get(t, New(source{id: uuid.New()}, nil, "").Handler(), "/status")
	if strings.Contains(w.Body.String(), `"last"`) {
		t.Errorf("expected no last cycle, got %s", w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.Cycle(4, "paired")
	w := get(t, New(source{}, m, "").Handler(), "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "hsicap_") {
		t.Errorf("expected hsicap metrics, got %d", w.Code)
	}
}

func TestFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "cubert"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "cubert", "0_cubert.tif"), []byte("cube"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := New(source{}, nil, root).Handler()

	w := get(t, h, "/file?path=cubert/0_cubert.tif")
	body, _ := io.ReadAll(w.Body)
	if w.Code != http.StatusOK || string(body) != "cube" {
		t.Errorf("expected the file, got %d %q", w.Code, body)
	}
	if w := get(t, h, "/file?path=cubert/1_cubert.tif"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing file, got %d", w.Code)
	}
	if w := get(t, h, "/file?path=../secret"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 outside the dataset, got %d", w.Code)
	}
}
