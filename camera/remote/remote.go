/*Package remote provides a camera.Camera that drives a camera served over
HTTP by generichttp/camera, usually on the machine the vendor SDK is
installed on.

Frames travel as FITS.  Exposure times are sent as a query parameter in
time.ParseDuration syntax.
*/
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/generichttp"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/server/middleware/locker"
)

// Camera is a camera on the other end of an HTTP connection
type Camera struct {
	// Addr is the root URL of the camera server, e.g. http://cubert-pc:8000/cubert
	Addr string

	// CameraName is returned by Name
	CameraName string

	// CaptureTimeout bounds a single frame request beyond the exposure time
	CaptureTimeout time.Duration

	// Client is the HTTP client; a client without a timeout is used if nil
	Client *http.Client

	// Holder is sent with every request so a lock taken with Lock does not
	// shut this client out
	Holder string

	exposure time.Duration
}

// New returns a remote camera with a ten second capture timeout
func New(addr, name string) *Camera {
	return &Camera{
		Addr:           strings.TrimSuffix(addr, "/"),
		CameraName:     name,
		CaptureTimeout: 10 * time.Second,
		Client:         &http.Client{},
	}
}

func (c *Camera) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

func (c *Camera) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
		rdr = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Addr+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Holder != "" {
		req.Header.Set(locker.HolderHeader, c.Holder)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusGatewayTimeout {
			err = fmt.Errorf("%w: %v", camera.ErrNoData, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Camera) post(ctx context.Context, path string, body interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Name implements camera.Camera
func (c *Camera) Name() string {
	return c.CameraName
}

// Initialize implements camera.Camera
func (c *Camera) Initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return c.post(ctx, "/initialize", nil)
}

// Finalize implements camera.Camera
func (c *Camera) Finalize() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return c.post(ctx, "/finalize", nil)
}

// SetExposureTime implements camera.Camera
func (c *Camera) SetExposureTime(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.CaptureTimeout)
	defer cancel()
	err := c.post(ctx, "/exposure-time?exposureTime="+url.QueryEscape(d.String()), nil)
	if err == nil {
		c.exposure = d
	}
	return err
}

// GetExposureTime implements camera.Camera
func (c *Camera) GetExposureTime() (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.CaptureTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/exposure-time", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	f := generichttp.FloatT{}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return 0, err
	}
	d := time.Duration(f.F64 * float64(time.Second)).Round(time.Microsecond)
	c.exposure = d
	return d, nil
}

// Online implements camera.StateReporter
func (c *Camera) Online(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/state", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	b := generichttp.BoolT{}
	err = json.NewDecoder(resp.Body).Decode(&b)
	return b.Bool, err
}

// SetDistance implements camera.DistanceSetter
func (c *Camera) SetDistance(mm float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.CaptureTimeout)
	defer cancel()
	return c.post(ctx, "/distance", generichttp.FloatT{F64: mm})
}

// GetFrame implements camera.Camera.  The request is bounded by the
// capture timeout plus the last known exposure time.
func (c *Camera) GetFrame(ctx context.Context) (*frame.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.CaptureTimeout+c.exposure)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/image?fmt=fits", nil)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", camera.ErrNoData, err)
		}
		return nil, err
	}
	defer resp.Body.Close()
	return imgrec.ReadFITS(resp.Body)
}

// Lock locks the camera server for Holder, refusing every other client
// until Unlock
func (c *Camera) Lock(ctx context.Context) error {
	return c.post(ctx, "/lock", locker.State{Bool: true, Holder: c.Holder})
}

// Unlock releases the lock taken by Lock
func (c *Camera) Unlock(ctx context.Context) error {
	return c.post(ctx, "/lock", locker.State{Bool: false})
}
