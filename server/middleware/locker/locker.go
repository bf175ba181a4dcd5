// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked).
//
// A lock may name a holder.  Requests carrying the holder in HolderHeader pass
// through, so a capture session can keep a camera server to itself while it
// runs.
package locker

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/hsicap/generichttp"
)

// HolderHeader identifies the client holding the lock
const HolderHeader = "X-Lock-Holder"

// Inject adds a lock route to a generichttp.HTTPer which is used to manipulate the locker
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// State is the JSON form of a Locker.  Bool is true when locked.
type State struct {
	Bool   bool       `json:"bool"`
	Holder string     `json:"holder,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of path suffixes to not protect
type Locker struct {
	mu     sync.RWMutex
	locked bool
	holder string
	since  time.Time

	// DoNotProtect is a list of path suffixes the lock does not apply to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "/lock"
func New() *Locker {
	return &Locker{DoNotProtect: []string{"/lock"}}
}

// Lock the locker with no holder; every protected request is refused
func (l *Locker) Lock() {
	l.LockFor("")
}

// LockFor locks the locker on behalf of holder
func (l *Locker) LockFor(holder string) {
	l.mu.Lock()
	l.locked, l.holder, l.since = true, holder, time.Now()
	l.mu.Unlock()
}

// Unlock the locker
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.locked, l.holder = false, ""
	l.mu.Unlock()
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locked
}

// State returns the lock state
func (l *Locker) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := State{Bool: l.locked}
	if l.locked {
		since := l.since
		s.Holder, s.Since = l.holder, &since
	}
	return s
}

func (l *Locker) allowed(r *http.Request) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.locked {
		return true
	}
	if l.holder != "" && r.Header.Get(HolderHeader) == l.holder {
		return true
	}
	for _, str := range l.DoNotProtect {
		if strings.HasSuffix(r.URL.Path, str) {
			return true
		}
	}
	return false
}

// Check is an HTTP middleware that returns http.StatusLocked if the request
// is not allowed through, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allowed(r) {
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks based on json:bool on the request body.  A lock
// held by someone else cannot be taken over, and replies 409.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	s := State{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cur := l.State()
	if cur.Bool && cur.Holder != "" && cur.Holder != s.Holder && r.Header.Get(HolderHeader) != cur.Holder {
		http.Error(w, "locked by "+cur.Holder, http.StatusConflict)
		return
	}
	if s.Bool {
		l.LockFor(s.Holder)
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns the State as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(l.State()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
