package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/flightmap/tracker/history"
	"github.com/flightmap/tracker/internal/logging"
	"github.com/flightmap/tracker/internal/observability"
	"github.com/flightmap/tracker/opensky"
	"github.com/flightmap/tracker/render"
	"github.com/flightmap/tracker/states"
	"github.com/flightmap/tracker/trajectory"
)

// Fetcher retrieves one telemetry snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (opensky.Snapshot, error)
}

// Store is the part of the history store the pipeline writes and reads.
type Store interface {
	Append(ctx context.Context, samples []states.Sample) (int, error)
	QueryRecent(ctx context.Context, window time.Duration) ([]history.Record, error)
}

// Renderer turns a view into artifact bytes.
type Renderer interface {
	Render(ctx context.Context, v render.View) ([]byte, error)
}

// Config holds the pipeline settings taken from the service configuration.
type Config struct {
	Region         states.Region
	Window         time.Duration
	OutputPath     string
	IngestInterval time.Duration
	// RenderInterval of zero renders right after every scheduled ingestion.
	RenderInterval time.Duration
}

// Deps are the collaborators of an Orchestrator. Fetcher, Store and Renderer
// are required.
type Deps struct {
	Fetcher  Fetcher
	Store    Store
	Renderer Renderer
	Logger   logging.Logger
	Metrics  *observability.PipelineCollector
	// Publish defaults to render.Publish.
	Publish func(path string, data []byte) error
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs ingestion and render cycles one at a time.
type Orchestrator struct {
	cfg      Config
	fetcher  Fetcher
	store    Store
	renderer Renderer
	log      logging.Logger
	metrics  *observability.PipelineCollector
	publish  func(string, []byte) error
	now      func() time.Time
	tracer   trace.Tracer

	// gate admits a single cycle at a time, scheduled or on demand.
	gate  *semaphore.Weighted
	state atomic.Int32

	mu         sync.Mutex
	lastIngest *IngestReport
	lastRender *RenderReport
	lastErr    *CycleError
}

// New constructs an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		fetcher:  deps.Fetcher,
		store:    deps.Store,
		renderer: deps.Renderer,
		log:      deps.Logger,
		metrics:  deps.Metrics,
		publish:  deps.Publish,
		now:      deps.Now,
		tracer:   otel.Tracer("github.com/flightmap/tracker/pipeline"),
		gate:     semaphore.NewWeighted(1),
	}
	if o.log == nil {
		o.log = logging.Noop()
	}
	if o.publish == nil {
		o.publish = render.Publish
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// OutputPath is where the artifact is published.
func (o *Orchestrator) OutputPath() string { return o.cfg.OutputPath }

// State reports what the orchestrator is doing right now.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

// Ingest runs one ingestion cycle: fetch, normalize, filter, append.
func (o *Orchestrator) Ingest(ctx context.Context) (IngestReport, error) {
	if err := o.acquire(ctx, CycleIngest); err != nil {
		return IngestReport{}, err
	}
	defer o.gate.Release(1)
	return o.ingest(ctx)
}

// Render runs one render cycle over the configured window and publishes the
// artifact. The published artifact is untouched when the cycle fails.
func (o *Orchestrator) Render(ctx context.Context) (RenderReport, error) {
	if err := o.acquire(ctx, CycleRender); err != nil {
		return RenderReport{}, err
	}
	defer o.gate.Release(1)
	return o.render(ctx)
}

// Refresh runs ingestion and then rendering without letting another cycle in
// between. Rendering is skipped when ingestion fails.
func (o *Orchestrator) Refresh(ctx context.Context) (RefreshReport, error) {
	if err := o.acquire(ctx, CycleIngest); err != nil {
		return RefreshReport{}, err
	}
	defer o.gate.Release(1)

	var rep RefreshReport
	ing, err := o.ingest(ctx)
	rep.Ingest = &ing
	if err != nil {
		return rep, err
	}
	rnd, err := o.render(ctx)
	rep.Render = &rnd
	return rep, err
}

// Run drives cycles on the configured cadence until ctx is done. The first
// refresh starts immediately. Cycle failures are reported and never stop the
// loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.IngestInterval <= 0 {
		return errors.New("ingest interval must be positive")
	}

	ingestTicker := time.NewTicker(o.cfg.IngestInterval)
	defer ingestTicker.Stop()

	var renderC <-chan time.Time
	if o.cfg.RenderInterval > 0 {
		renderTicker := time.NewTicker(o.cfg.RenderInterval)
		defer renderTicker.Stop()
		renderC = renderTicker.C
	}

	o.log.Info(ctx, "scheduler started",
		logging.Duration("ingest_interval", o.cfg.IngestInterval),
		logging.Duration("render_interval", o.cfg.RenderInterval),
	)
	_, _ = o.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			o.log.Info(ctx, "scheduler stopped")
			return nil
		case <-ingestTicker.C:
			if renderC == nil {
				_, _ = o.Refresh(ctx)
			} else {
				_, _ = o.Ingest(ctx)
			}
		case <-renderC:
			_, _ = o.Render(ctx)
		}
	}
}

// acquire waits for the gate. A cycle abandoned while waiting is reported as
// canceled under the kind it would have run as.
func (o *Orchestrator) acquire(ctx context.Context, cycle string) error {
	err := o.gate.Acquire(ctx, 1)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("wait for gate: %w", err)
	ctx, span := o.tracer.Start(ctx, "pipeline."+cycle)
	defer span.End()
	o.finish(ctx, span, o.log.With(logging.String("cycle", cycle)), cycle, 0, err)
	return err
}

func (o *Orchestrator) ingest(ctx context.Context) (rep IngestReport, err error) {
	rep = IngestReport{CycleID: uuid.NewString(), StartedAt: o.now()}
	ctx, span := o.tracer.Start(ctx, "pipeline.ingest",
		trace.WithAttributes(attribute.String("cycle.id", rep.CycleID)))
	log := o.log.With(logging.String("cycle", CycleIngest), logging.String("cycle_id", rep.CycleID))

	defer func() {
		o.setState(Idle)
		rep.Duration = o.now().Sub(rep.StartedAt)
		span.SetAttributes(
			attribute.Int("records.received", rep.Received),
			attribute.Int("samples.stored", rep.Stored),
		)
		o.finish(ctx, span, log, CycleIngest, rep.Duration, err)
		if err == nil {
			o.mu.Lock()
			o.lastIngest = &rep
			o.mu.Unlock()
			log.Info(ctx, "ingestion cycle finished",
				logging.Int("received", rep.Received),
				logging.Int("stored", rep.Stored),
				logging.Int("duplicates", rep.Duplicates),
				logging.Int("skipped_malformed", rep.SkippedMalformed),
				logging.Int("skipped_region", rep.SkippedRegion),
				logging.Duration("duration", rep.Duration),
			)
		}
		span.End()
	}()

	o.setState(Fetching)
	snap, err := o.fetcher.Fetch(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetch: %w", err)
	}
	rep.Received = len(snap.States)

	samples := make([]states.Sample, 0, len(snap.States))
	for i, raw := range snap.States {
		s, err := states.FromJSON(raw)
		if err != nil {
			rep.SkippedMalformed++
			log.Debug(ctx, "skipping record", logging.Int("index", i), logging.Err(err))
			continue
		}
		if !states.InRegion(s, o.cfg.Region) {
			rep.SkippedRegion++
			continue
		}
		samples = append(samples, s)
	}

	o.setState(Storing)
	n, err := o.store.Append(ctx, samples)
	if err != nil {
		return rep, fmt.Errorf("store: %w", err)
	}
	rep.Stored = n
	rep.Duplicates = len(samples) - n

	o.metrics.AddStored(rep.Stored)
	o.metrics.AddSkipped("malformed", rep.SkippedMalformed)
	o.metrics.AddSkipped("region", rep.SkippedRegion)
	o.metrics.AddSkipped("duplicate", rep.Duplicates)
	return rep, nil
}

func (o *Orchestrator) render(ctx context.Context) (rep RenderReport, err error) {
	rep = RenderReport{CycleID: uuid.NewString(), StartedAt: o.now(), Path: o.cfg.OutputPath}
	ctx, span := o.tracer.Start(ctx, "pipeline.render",
		trace.WithAttributes(attribute.String("cycle.id", rep.CycleID)))
	log := o.log.With(logging.String("cycle", CycleRender), logging.String("cycle_id", rep.CycleID))

	defer func() {
		o.setState(Idle)
		rep.Duration = o.now().Sub(rep.StartedAt)
		o.finish(ctx, span, log, CycleRender, rep.Duration, err)
		if err == nil {
			o.mu.Lock()
			o.lastRender = &rep
			o.mu.Unlock()
			log.Info(ctx, "render cycle finished",
				logging.Int("samples", rep.Samples),
				logging.Int("aircraft", rep.Aircraft),
				logging.Int("paths", rep.Paths),
				logging.String("path", rep.Path),
				logging.Duration("duration", rep.Duration),
			)
		}
		span.End()
	}()

	o.setState(Rendering)
	records, err := o.store.QueryRecent(ctx, o.cfg.Window)
	if err != nil {
		return rep, fmt.Errorf("query: %w", err)
	}
	rep.Samples = len(records)

	samples := history.Samples(records)
	res := trajectory.Build(samples)
	rep.Aircraft = len(res.Latest)
	rep.Paths = len(res.Paths)

	data, err := o.renderer.Render(ctx, render.ViewFromResult(res, samples, o.now(), o.cfg.Window))
	if err != nil {
		return rep, fmt.Errorf("render: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("render: %w", err)
	}
	if err := o.publish(o.cfg.OutputPath, data); err != nil {
		return rep, fmt.Errorf("publish: %w", err)
	}
	return rep, nil
}

// finish is the single failure-reporting boundary for both cycle kinds.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, log logging.Logger, cycle string, elapsed time.Duration, err error) {
	outcome := Classify(err)
	o.metrics.ObserveCycle(cycle, outcome, elapsed)
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	o.mu.Lock()
	o.lastErr = &CycleError{Cycle: cycle, Class: outcome, Message: err.Error(), At: o.now()}
	o.mu.Unlock()

	if outcome == OutcomeEmpty || outcome == OutcomeCanceled {
		log.Warn(ctx, "cycle aborted", logging.String("outcome", outcome), logging.Err(err))
		return
	}
	log.Error(ctx, "cycle failed", logging.String("outcome", outcome), logging.Err(err))
}

// Status is a point-in-time view of the orchestrator.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.State().String()}
	if o.lastIngest != nil {
		r := *o.lastIngest
		st.LastIngest = &r
	}
	if o.lastRender != nil {
		r := *o.lastRender
		st.LastRender = &r
	}
	if o.lastErr != nil {
		e := *o.lastErr
		st.LastError = &e
	}
	return st
}
