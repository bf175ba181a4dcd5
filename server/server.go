/*Package server exposes the state of a running capture session over HTTP.

Routes:
	GET /status   session id, cycle counts and the last cycle, as JSON
	GET /metrics  prometheus metrics
	GET /file     a dataset file, ?path= relative to the output root
*/
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/nasa-jpl/hsicap/acquire"
	"github.com/nasa-jpl/hsicap/catalog"
	"github.com/nasa-jpl/hsicap/generichttp"
	"github.com/nasa-jpl/hsicap/metrics"
)

// ReplyWithFile replies to the client request by serving the given file name
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	filePath, err := filepath.Abs(filepath.Join(fldr, fn))
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s %s", fldr, fn, err)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", fn)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.Error(w, fmt.Sprintf("not a file %s", fn), http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, filepath.Base(fn), stat.ModTime(), f)
}

// Source is the running session
type Source interface {
	Session() uuid.UUID
	Summary() acquire.Summary
	Last() (acquire.CycleResult, bool)
}

// Status is the body of GET /status
type Status struct {
	Session uuid.UUID       `json:"session"`
	Summary acquire.Summary `json:"summary"`
	Last    *catalog.Entry  `json:"last,omitempty"`
}

// Server serves a Source
type Server struct {
	Src     Source
	Metrics *metrics.Collector

	// Root is the dataset folder served by /file; /file is not bound if empty
	Root string

	RouteTable generichttp.RouteTable
}

// New returns a server for src
func New(src Source, m *metrics.Collector, root string) *Server {
	s := &Server{Src: src, Metrics: m, Root: root}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/status"}: s.HTTPStatus,
	}
	if m != nil {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/metrics"}] = m.Handler().ServeHTTP
	}
	if root != "" {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/file"}] = s.HTTPFile
	}
	s.RouteTable = rt
	return s
}

// RT satisfies generichttp.HTTPer
func (s *Server) RT() generichttp.RouteTable {
	return s.RouteTable
}

// Status collects the current status
func (s *Server) Status() Status {
	st := Status{Session: s.Src.Session(), Summary: s.Src.Summary()}
	if last, ok := s.Src.Last(); ok {
		e := last.Entry(st.Session)
		st.Last = &e
	}
	return st
}

// HTTPStatus replies with Status as JSON
func (s *Server) HTTPStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		fstr := fmt.Sprintf("error encoding status to json %q", err)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}

// HTTPFile serves the dataset file named by the path query parameter
func (s *Server) HTTPFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	clean := filepath.Clean(filepath.FromSlash(p))
	if p == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		http.Error(w, "path must name a file inside the dataset", http.StatusBadRequest)
		return
	}
	ReplyWithFile(w, r, clean, s.Root)
}

// Handler returns a chi router with the routes bound and request logging
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	s.RT().Bind(r)
	return r
}

// ListenAndServe serves h on addr until ctx is done, then shuts down
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errC := make(chan error, 1)
	go func() {
		log.Info("now listening for requests", "addr", addr)
		errC <- srv.ListenAndServe()
	}()
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errC; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
