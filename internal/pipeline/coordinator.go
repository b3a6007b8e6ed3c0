package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/filter"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/metrics"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/tracing"
)

var (
	// ErrNoDataset is returned by operations that need a loaded dataset
	ErrNoDataset = errors.New("no dataset loaded")

	// ErrSuperseded is returned when a newer load or filter change
	// started before this recompute could be published
	ErrSuperseded = errors.New("recompute superseded by a newer request")
)

// Coordinator owns the loaded dataset and the active filter state and
// keeps the published snapshot in step with both. Every trigger takes a
// new generation; only the latest generation may publish.
type Coordinator struct {
	mu         sync.Mutex
	datasetID  string
	records    []cdr.Record
	filters    filter.State
	loaded     bool
	generation uint64

	current atomic.Pointer[Snapshot]

	notifyMu    sync.Mutex
	subscribers []func(*Snapshot)

	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCoordinator creates a coordinator with no dataset loaded.
// m may be nil.
func NewCoordinator(opts Options, m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	logger = logger.With().Str("component", "pipeline").Logger()
	opts.Logger = logger
	return &Coordinator{
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}

// Load normalizes a dataset, resets the filters and publishes a fresh
// snapshot. A malformed dataset is rejected and the previous dataset and
// snapshot stay in place.
func (c *Coordinator) Load(ctx context.Context, d cdr.Dataset) (*Snapshot, error) {
	records, err := cdr.NormalizeDataset(d)
	if err != nil {
		c.metrics.RecordDatasetLoadError()
		c.logger.Warn().Err(err).Msg("dataset rejected")
		return nil, err
	}
	return c.LoadRecords(ctx, records)
}

// LoadRecords replaces the dataset with already normalized records
func (c *Coordinator) LoadRecords(ctx context.Context, records []cdr.Record) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.generation++
	c.datasetID = uuid.NewString()
	c.records = records
	c.filters = filter.State{}
	c.loaded = true
	gen, id, st := c.generation, c.datasetID, c.filters
	c.mu.Unlock()

	c.metrics.RecordDatasetLoaded(len(records))
	c.logger.Info().
		Str("dataset_id", id).
		Int("records", len(records)).
		Msg("dataset loaded")

	return c.run(ctx, gen, id, records, st)
}

// SetFilters replaces the filter state and republishes
func (c *Coordinator) SetFilters(ctx context.Context, st filter.State) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return nil, ErrNoDataset
	}
	c.generation++
	c.filters = st.Normalized()
	gen, id, records, st := c.generation, c.datasetID, c.records, c.filters
	c.mu.Unlock()

	return c.run(ctx, gen, id, records, st)
}

func (c *Coordinator) run(ctx context.Context, gen uint64, id string, records []cdr.Record, st filter.State) (_ *Snapshot, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "pipeline.recompute",
		attribute.String("dataset_id", id),
		attribute.Int64("generation", int64(gen)),
		attribute.Int("records", len(records)),
	)
	defer func() { endSpan(err) }()

	start := time.Now()
	snap := Recompute(records, st, c.opts)
	snap.DatasetID = id
	snap.Generation = gen
	elapsed := time.Since(start)

	tracing.SetAttributes(ctx,
		attribute.Int("filtered", len(snap.filtered)),
		attribute.StringSlice("failed_sections", snap.Failed),
	)
	for _, name := range snap.Failed {
		c.metrics.RecordAggregatorFailure(name)
	}

	// The dataset and filters for gen are already committed, so the
	// snapshot is published even if ctx ended during the recompute.
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.metrics.RecordRecomputeSuperseded()
		c.logger.Debug().
			Uint64("generation", gen).
			Msg("discarding superseded snapshot")
		return nil, ErrSuperseded
	}
	c.current.Store(snap)
	c.mu.Unlock()

	c.metrics.RecordRecompute(elapsed, len(snap.filtered))
	c.logger.Debug().
		Uint64("generation", gen).
		Int("filtered", len(snap.filtered)).
		Dur("elapsed", elapsed).
		Msg("snapshot published")

	c.notify(snap)
	return snap, nil
}

// notify delivers snap unless a newer snapshot has replaced it, so
// subscribers never observe generations out of order.
func (c *Coordinator) notify(snap *Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if c.current.Load() != snap {
		return
	}
	for _, fn := range c.subscribers {
		fn(snap)
	}
}

// Subscribe registers fn to receive every published snapshot.
// fn must not call back into the coordinator's publishing methods.
func (c *Coordinator) Subscribe(fn func(*Snapshot)) {
	c.notifyMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.notifyMu.Unlock()
}

// Snapshot returns the current snapshot, nil before the first load
func (c *Coordinator) Snapshot() *Snapshot {
	return c.current.Load()
}

// Filters returns the active filter state
func (c *Coordinator) Filters() filter.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// Destinations lists the destination filter options of the loaded dataset
func (c *Coordinator) Destinations() ([]string, error) {
	c.mu.Lock()
	records, loaded := c.records, c.loaded
	c.mu.Unlock()

	if !loaded {
		return nil, ErrNoDataset
	}
	return filter.DestinationOptions(records), nil
}

// Calls returns the call table of the current snapshot
func (c *Coordinator) Calls(limit int) (CallsView, error) {
	snap := c.current.Load()
	if snap == nil {
		return CallsView{}, ErrNoDataset
	}
	return CallsView{
		DatasetID:  snap.DatasetID,
		Generation: snap.Generation,
		CallTable:  snap.Calls(limit),
	}, nil
}
