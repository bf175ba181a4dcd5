// Package camera provides a generic HTTP interface to a camera.Camera, so a
// camera attached to one machine can be driven by the acquisition code on
// another.
package camera

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/generichttp"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/util"
)

// MetadataMaker can produce an array of FITS cards
type MetadataMaker interface {
	// CollectHeaderMetadata produces an array of FITS cards
	CollectHeaderMetadata() []fitsio.Card
}

// HTTPCamera wraps a camera in an HTTP interface.  Device access is
// serialized; the vendor SDKs are not safe for concurrent use.
type HTTPCamera struct {
	mu sync.Mutex

	Cam camera.Camera

	// Rec, if not nil, receives a copy of every frame served, under
	// consecutive indices
	Rec *imgrec.Recorder

	next int

	RouteTable generichttp.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper around c.  Optional routes are
// added for the optional interfaces c implements.
func NewHTTPCamera(c camera.Camera, rec *imgrec.Recorder) *HTTPCamera {
	w := &HTTPCamera{Cam: c, Rec: rec}
	if rec != nil {
		last, _ := rec.Last()
		w.next = last + 1
	}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/image"}:          w.GetFrame,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/exposure-time"}:  w.GetExposureTime,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure-time"}: w.SetExposureTime,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}:          w.GetState,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/initialize"}:    generichttp.Do(w.locked(c.Initialize)),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/finalize"}:      generichttp.Do(w.locked(c.Finalize)),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/reset"}:         w.Reset,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/name"}: generichttp.GetString(func() (string, error) {
			return c.Name(), nil
		}),
	}
	if ds, ok := c.(camera.DistanceSetter); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/distance"}] = generichttp.SetFloat(func(mm float64) error {
			w.mu.Lock()
			defer w.mu.Unlock()
			return ds.SetDistance(mm)
		})
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h *HTTPCamera) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h *HTTPCamera) locked(fcn func() error) func() error {
	return func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		return fcn()
	}
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.
func (h *HTTPCamera) SetExposureTime(w http.ResponseWriter, r *http.Request) {
	texp := r.URL.Query().Get("exposureTime")
	var d time.Duration
	var err error
	if texp == "" {
		f := generichttp.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		d = util.SecsToDuration(f.F64)
	} else {
		d, err = util.ParseDuration(texp)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	err = h.Cam.SetExposureTime(d)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetExposureTime returns the exposure time in seconds as {"f64": value}
func (h *HTTPCamera) GetExposureTime(w http.ResponseWriter, r *http.Request) {
	generichttp.GetFloat(func() (float64, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		d, err := h.Cam.GetExposureTime()
		return d.Seconds(), err
	})(w, r)
}

// GetState returns {"bool": true} when the camera is ready to capture.
// Cameras without a hardware state flag are always ready.
func (h *HTTPCamera) GetState(w http.ResponseWriter, r *http.Request) {
	generichttp.GetBool(func() (bool, error) {
		sr, ok := h.Cam.(camera.StateReporter)
		if !ok {
			return true, nil
		}
		return sr.Online(r.Context())
	})(w, r)
}

// Reset finalizes and reinitializes the camera, keeping its exposure time
func (h *HTTPCamera) Reset(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	exp, err := h.Cam.GetExposureTime()
	if err != nil {
		exp = 0
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()
	if err := camera.Reset(ctx, h.Cam, camera.Setup{Exposure: exp, Poll: 100 * time.Millisecond}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetFrame takes a picture and returns it as a FITS file on a GET request.
//
// the exposure time may be specified as a query parameter in any time-looking
// format, such as "25ms" or "10us".  If no unit is appended, seconds are
// assumed.  If no exposure time is provided, the existing value is used.
//
// A capture that produced no data replies 504 so clients can tell a device
// timeout from other failures.
func (h *HTTPCamera) GetFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.mu.Lock()
	if texp := q.Get("exposureTime"); texp != "" {
		T, err := util.ParseDuration(texp)
		if err != nil {
			h.mu.Unlock()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.Cam.SetExposureTime(T); err != nil {
			h.mu.Unlock()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	f, err := h.Cam.GetFrame(r.Context())
	cards := h.cards()
	index := -1
	if err == nil && h.Rec != nil {
		index = h.next
		h.next++
	}
	h.mu.Unlock()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, camera.ErrNoData) {
			code = http.StatusGatewayTimeout
		}
		http.Error(w, err.Error(), code)
		return
	}
	if index >= 0 {
		if _, err := h.Rec.Write(index, f); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeFrame(w, f, cards)
}

func writeFrame(w http.ResponseWriter, f *frame.Frame, cards []fitsio.Card) {
	hdr := w.Header()
	hdr.Set("Content-Type", "image/fits")
	hdr.Set("Content-Disposition", "attachment; filename=image.fits")
	w.WriteHeader(http.StatusOK)
	// headers are already sent, nothing more can be reported
	_ = imgrec.WriteFITS(w, f, cards...)
}

// cards collects header metadata; the caller holds the lock
func (h *HTTPCamera) cards() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "CAMERA", Value: h.Cam.Name(), Comment: "camera name"},
		{Name: "DATE", Value: time.Now().UTC().Format(time.RFC3339), Comment: "capture time"},
	}
	if d, err := h.Cam.GetExposureTime(); err == nil {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: d.Seconds(), Comment: "exposure time, seconds"})
	}
	if carder, ok := h.Cam.(MetadataMaker); ok {
		cards = append(cards, carder.CollectHeaderMetadata()...)
	}
	return cards
}
