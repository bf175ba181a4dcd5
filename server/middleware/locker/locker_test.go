package locker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	l := New()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := l.Check(ok)

	cases := []struct {
		holder string
		locked bool
		path   string
		header string
		code   int
	}{
		{"", false, "/image", "", http.StatusOK},
		{"", true, "/image", "", http.StatusLocked},
		{"", true, "/cam/lock", "", http.StatusOK},
		{"", true, "/lock/other", "", http.StatusLocked},
		{"session-a", true, "/image", "session-a", http.StatusOK},
		{"session-a", true, "/image", "session-b", http.StatusLocked},
	}
	for _, c := range cases {
		if c.locked {
			l.LockFor(c.holder)
		} else {
			l.Unlock()
		}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, c.path, nil)
		if c.header != "" {
			req.Header.Set(HolderHeader, c.header)
		}
		h.ServeHTTP(rec, req)
		if rec.Code != c.code {
			t.Errorf("locked=%v holder=%q %s as %q: expected %d, got %d", c.locked, c.holder, c.path, c.header, c.code, rec.Code)
		}
	}
}

func post(l *Locker, body, header string) int {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(body))
	if header != "" {
		req.Header.Set(HolderHeader, header)
	}
	l.HTTPSet(rec, req)
	return rec.Code
}

func TestHTTPSetHolder(t *testing.T) {
	l := New()
	if code := post(l, `{"bool": true, "holder": "a"}`, ""); code != http.StatusOK {
		t.Fatalf("lock: got %d", code)
	}
	if code := post(l, `{"bool": false}`, ""); code != http.StatusConflict {
		t.Errorf("another client should not unlock, got %d", code)
	}
	if code := post(l, `{"bool": true, "holder": "b"}`, ""); code != http.StatusConflict {
		t.Errorf("another client should not take the lock, got %d", code)
	}
	if code := post(l, `{"bool": false}`, "a"); code != http.StatusOK || l.Locked() {
		t.Errorf("the holder should unlock, got %d locked=%v", code, l.Locked())
	}
	if code := post(l, `not json`, ""); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad body, got %d", code)
	}
}

func TestHTTPGet(t *testing.T) {
	l := New()
	l.LockFor("a")
	rec := httptest.NewRecorder()
	l.HTTPGet(rec, httptest.NewRequest(http.MethodGet, "/lock", nil))
	s := State{}
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if !s.Bool || s.Holder != "a" || s.Since == nil {
		t.Errorf("unexpected state %+v", s)
	}
}
