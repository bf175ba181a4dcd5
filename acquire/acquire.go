/*Package acquire runs the paired capture loop.

For every reference image shown to the cameras, the Orchestrator captures
one frame per Channel, processes it, checks its SNR, and writes it under a
shared index.  Each channel retries on its own up to its bound.  A cycle
either leaves one file per channel on disk or none: when any channel fails,
the files the others wrote for that index are deleted.
*/
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nasa-jpl/hsicap/archive"
	"github.com/nasa-jpl/hsicap/catalog"
	"github.com/nasa-jpl/hsicap/metrics"
)

// Sequencer yields the identifier of each reference image as it is shown.
// It returns io.EOF when there are no more.
type Sequencer interface {
	Next(ctx context.Context) (string, error)
}

// CycleResult is the result of one cycle
type CycleResult struct {
	Index    int
	Name     string
	Outcomes []Outcome
	Paired   bool

	// Skipped is set in sequential mode when a later channel was not
	// attempted because an earlier one failed
	Skipped bool
	Time    time.Time
}

// Result is "paired", "skipped" or "failed"
func (r CycleResult) Result() string {
	switch {
	case r.Paired:
		return "paired"
	case r.Skipped:
		return "skipped"
	}
	return "failed"
}

// Entry converts r to a catalog entry
func (r CycleResult) Entry(session uuid.UUID) catalog.Entry {
	e := catalog.Entry{
		Session: session,
		Index:   r.Index,
		Name:    r.Name,
		Paired:  r.Paired,
		Time:    r.Time,
	}
	for _, o := range r.Outcomes {
		s := catalog.Shot{Camera: o.Camera, Path: o.Path, Attempts: o.Attempts, SNR: o.SNR, OK: o.OK()}
		if o.Err != nil {
			s.Err = o.Err.Error()
		}
		e.Shots = append(e.Shots, s)
	}
	return e
}

// Summary counts the cycles of a run
type Summary struct {
	Cycles  int `json:"cycles"`
	Paired  int `json:"paired"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (s *Summary) add(r CycleResult) {
	s.Cycles++
	switch r.Result() {
	case "paired":
		s.Paired++
	case "skipped":
		s.Skipped++
	default:
		s.Failed++
	}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCatalog records every cycle in s
func WithCatalog(s catalog.Store) Option {
	return func(o *Orchestrator) { o.catalog = s }
}

// WithArchiver uploads the files of every paired cycle
func WithArchiver(a archive.Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithCycleTimeout bounds how long a cycle waits for its channels.  Zero
// waits for the channels' own retry bounds.
func WithCycleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.cycleTimeout = d }
}

// WithSequential captures the channels one after another in order, and
// skips the rest of a cycle as soon as one fails
func WithSequential(b bool) Option {
	return func(o *Orchestrator) { o.sequential = b }
}

// WithStartIndex fixes the first index of Run instead of resuming after the
// files already on disk
func WithStartIndex(i int) Option {
	return func(o *Orchestrator) { o.start = i }
}

// Orchestrator captures co-indexed frames from a set of channels
type Orchestrator struct {
	channels     []*Channel
	log          *slog.Logger
	metrics      *metrics.Collector
	catalog      catalog.Store
	archiver     archive.Archiver
	cycleTimeout time.Duration
	sequential   bool
	start        int
	session      uuid.UUID

	mu      sync.Mutex
	last    *CycleResult
	summary Summary
}

// New returns an orchestrator over channels
func New(channels []*Channel, opts ...Option) (*Orchestrator, error) {
	if len(channels) == 0 {
		return nil, errors.New("acquire: no channels")
	}
	seen := map[string]bool{}
	for i, ch := range channels {
		if ch == nil || ch.Camera == nil || ch.Recorder == nil {
			return nil, fmt.Errorf("acquire: channel %d needs a camera and a recorder", i)
		}
		p := ch.Recorder.Path(0)
		if seen[p] {
			return nil, fmt.Errorf("acquire: channels share output file %s", p)
		}
		seen[p] = true
	}
	o := &Orchestrator{
		channels: channels,
		log:      slog.Default(),
		catalog:  catalog.Discard{},
		start:    -1,
		session:  uuid.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Session is the id of this orchestrator's run
func (o *Orchestrator) Session() uuid.UUID {
	return o.session
}

// NextIndex is the index the next Run starts at: the start index if one
// was given, else one past the highest index found in any output folder.
func (o *Orchestrator) NextIndex() (int, error) {
	if o.start >= 0 {
		return o.start, nil
	}
	next := 0
	for _, ch := range o.channels {
		last, err := ch.Recorder.Last()
		if err != nil {
			return 0, fmt.Errorf("scan %s: %w", ch.Recorder.Root, err)
		}
		if last+1 > next {
			next = last + 1
		}
	}
	return next, nil
}

// Cycle captures index from every channel.  On return either every channel
// has a file for index, or none has.
func (o *Orchestrator) Cycle(ctx context.Context, index int, name string) CycleResult {
	var (
		cctx   context.Context
		cancel context.CancelFunc
	)
	if o.cycleTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, o.cycleTimeout)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	res := CycleResult{Index: index, Name: name, Time: time.Now()}
	if o.sequential {
		res.Outcomes = o.runSequential(cctx, index)
	} else {
		res.Outcomes = o.runConcurrent(cctx, cancel, index)
	}
	for _, out := range res.Outcomes {
		if errors.Is(out.Err, ErrSkipped) {
			res.Skipped = true
		}
	}

	nOK := 0
	for _, out := range res.Outcomes {
		if out.OK() {
			nOK++
		}
	}
	res.Paired = nOK == len(o.channels)
	if !res.Paired {
		for i, out := range res.Outcomes {
			if out.OK() {
				o.removeOrphan(o.channels[i], index)
				res.Outcomes[i].Path = ""
				res.Outcomes[i].Err = ErrPartnerFailed
			}
		}
	}
	o.finish(ctx, res)
	return res
}

func (o *Orchestrator) runSequential(ctx context.Context, index int) []Outcome {
	outs := make([]Outcome, len(o.channels))
	for i, ch := range o.channels {
		outs[i] = o.capture(ctx, ch, index)
		if !outs[i].OK() {
			for j := i + 1; j < len(o.channels); j++ {
				o.log.Info("skipping capture, earlier camera failed", "camera", o.channels[j].Name(), "index", index)
				outs[j] = Outcome{Camera: o.channels[j].Name(), Err: ErrSkipped}
			}
			break
		}
	}
	return outs
}

func (o *Orchestrator) runConcurrent(ctx context.Context, cancel context.CancelFunc, index int) []Outcome {
	type done struct {
		i   int
		out Outcome
	}
	n := len(o.channels)
	ch := make(chan done, n)
	for i, c := range o.channels {
		go func(i int, c *Channel) {
			ch <- done{i, o.capture(ctx, c, index)}
		}(i, c)
	}
	outs := make([]Outcome, n)
	got := make([]bool, n)
	for received := 0; received < n; {
		select {
		case d := <-ch:
			outs[d.i] = d.out
			got[d.i] = true
			received++
		case <-ctx.Done():
			// cancel before cleaning up so a channel that writes after
			// this point sees the cancellation and removes its own file
			cancel()
			for i, c := range o.channels {
				if got[i] {
					continue
				}
				o.log.Error("abandoning capture", "camera", c.Name(), "index", index, "err", ctx.Err())
				outs[i] = Outcome{Camera: c.Name(), Err: ctx.Err()}
				if c.Recorder.Exists(index) {
					o.removeOrphan(c, index)
				}
			}
			return outs
		}
	}
	return outs
}

// removeOrphan deletes a file whose partner is missing.  Failures are logged
// and counted, never returned.
func (o *Orchestrator) removeOrphan(ch *Channel, index int) {
	path := ch.Recorder.Path(index)
	err := ch.Recorder.Remove(index)
	o.metrics.Orphan(err)
	if err != nil {
		o.log.Error("could not remove unpaired file", "camera", ch.Name(), "index", index, "path", path, "err", err)
		return
	}
	o.log.Warn("removed unpaired file", "camera", ch.Name(), "index", index, "path", path)
}

func (o *Orchestrator) finish(ctx context.Context, res CycleResult) {
	o.metrics.Cycle(res.Index, res.Result())
	o.mu.Lock()
	o.last = &res
	o.summary.add(res)
	o.mu.Unlock()

	// bookkeeping outlives a cancelled run so the last cycle is recorded
	bctx := context.WithoutCancel(ctx)
	if err := o.catalog.Record(bctx, res.Entry(o.session)); err != nil {
		o.log.Error("could not record cycle in catalog", "index", res.Index, "err", err)
	}
	if res.Paired && o.archiver != nil {
		for _, out := range res.Outcomes {
			if err := o.archiver.Upload(bctx, o.session.String(), out.Path); err != nil {
				o.log.Error("could not archive file", "path", out.Path, "err", err)
			}
		}
	}
	if res.Paired {
		o.log.Info("cycle complete", "index", res.Index, "name", res.Name)
	} else {
		o.log.Warn("cycle failed, nothing kept", "index", res.Index, "name", res.Name, "result", res.Result())
	}
}

// Last returns the most recent cycle, if any
func (o *Orchestrator) Last() (CycleResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return CycleResult{}, false
	}
	return *o.last, true
}

// Summary returns the counts so far
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

// Run cycles once per image from seq until seq is exhausted or ctx is
// done.  Exhaustion returns nil, cancellation returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, seq Sequencer) (Summary, error) {
	index, err := o.NextIndex()
	if err != nil {
		return o.Summary(), err
	}
	o.log.Info("starting capture session", "session", o.session, "first_index", index, "cameras", len(o.channels), "sequential", o.sequential)
	for {
		name, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			s := o.Summary()
			o.log.Info("capture session finished", "cycles", s.Cycles, "paired", s.Paired, "failed", s.Failed, "skipped", s.Skipped)
			return s, nil
		}
		if err != nil {
			return o.Summary(), err
		}
		o.Cycle(ctx, index, name)
		index++
		if err := ctx.Err(); err != nil {
			return o.Summary(), err
		}
	}
}
