/*Package catalog keeps a record of every capture cycle: which files were
written for which displayed image, how many attempts each camera needed, and
whether the pair was kept.

Two stores are provided, a JSON lines file next to the dataset and a
Postgres table for labs that keep a shared database.
*/
package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Shot is one camera's half of a cycle
type Shot struct {
	Camera   string  `json:"camera"`
	Path     string  `json:"path,omitempty"`
	Attempts int     `json:"attempts"`
	SNR      float64 `json:"snr"`
	OK       bool    `json:"ok"`
	Err      string  `json:"err,omitempty"`
}

// Entry is the record of one cycle
type Entry struct {
	Session uuid.UUID `json:"session"`
	Index   int       `json:"index"`
	Name    string    `json:"name"`
	Shots   []Shot    `json:"shots"`
	Paired  bool      `json:"paired"`
	Time    time.Time `json:"time"`
}

// Store persists entries
type Store interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Sessions looks up the cycles of a past session
type Sessions interface {
	Session(ctx context.Context, id uuid.UUID) ([]Entry, error)
}

// Discard is a Store that drops everything
type Discard struct{}

// Record implements Store
func (Discard) Record(context.Context, Entry) error { return nil }

// Close implements Store
func (Discard) Close() error { return nil }

// File appends entries to a JSON lines file.  It is safe for concurrent use.
type File struct {
	mu  sync.Mutex
	fid *os.File
	enc *json.Encoder
}

// OpenFile opens (or creates) path for appending
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, err
	}
	fid, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, err
	}
	return &File{fid: fid, enc: json.NewEncoder(fid)}, nil
}

// Record implements Store
func (f *File) Record(ctx context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(e); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// Close implements Store
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fid.Close()
}

// ReadFile loads every entry of a JSON lines catalog
func ReadFile(path string) ([]Entry, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	var out []Entry
	scn := bufio.NewScanner(fid)
	scn.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scn.Scan() {
		line++
		if len(scn.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scn.Bytes(), &e); err != nil {
			return out, fmt.Errorf("catalog: %s line %d: %w", path, line, err)
		}
		out = append(out, e)
	}
	return out, scn.Err()
}

// FileSessions reads sessions back from the JSON lines catalog at its path
type FileSessions string

// Session implements Sessions.  Entries are ordered by index, and a later
// entry for an index replaces an earlier one, as Postgres.Record does.
func (path FileSessions) Session(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	all, err := ReadFile(string(path))
	if err != nil {
		return nil, err
	}
	byIndex := map[int]Entry{}
	for _, e := range all {
		if e.Session == id {
			byIndex[e.Index] = e
		}
	}
	out := make([]Entry, 0, len(byIndex))
	for _, e := range byIndex {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
