package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
)

// DefaultDebounce is the quiet period after the last range change before a
// filter pass starts.
const DefaultDebounce = 250 * time.Millisecond

// State describes what the coordinator is doing.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateFiltering
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateFiltering:
		return "filtering"
	case StateDone:
		return "done"
	default:
		return "idle"
	}
}

// FilterFunc computes a view for a range. It must honour ctx cancellation.
type FilterFunc func(ctx context.Context, r domain.DateRange) (domain.View, error)

// CoordinatorOptions tunes a Coordinator. Zero values select defaults.
type CoordinatorOptions struct {
	Clock    clockwork.Clock
	Debounce time.Duration
}

// Coordinator debounces range changes, runs filter passes off the caller's
// goroutine and applies only the newest result. Each dispatch gets a
// generation number; a result whose generation is no longer current is
// discarded, and the superseded pass is cancelled.
type Coordinator struct {
	filter   FilterFunc
	renderer Renderer
	progress *ProgressBus
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	debounce time.Duration

	mu         sync.Mutex
	timer      clockwork.Timer
	timerSeq   uint64
	pending    domain.DateRange
	generation uint64
	applied    uint64
	cancel     context.CancelFunc
	active     bool
	settled    State
	closed     bool
	wg         sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(filter FilterFunc, renderer Renderer, progress *ProgressBus, logger *slog.Logger, metrics *observability.Metrics, opts CoordinatorOptions) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Coordinator{
		filter:   filter,
		renderer: renderer,
		progress: progress,
		logger:   logger,
		metrics:  metrics,
		clock:    opts.Clock,
		debounce: opts.Debounce,
		settled:  StateIdle,
	}
}

// Request schedules a filter pass for r once no further request arrives within
// the debounce window. Only the last range of a burst is dispatched.
func (c *Coordinator) Request(r domain.DateRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.pending = r
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(seq) })
}

func (c *Coordinator) fire(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.timer == nil || seq != c.timerSeq {
		return
	}
	c.timer = nil
	c.dispatchLocked(c.pending)
}

// Dispatch starts a filter pass for r immediately, superseding any pass in
// flight, and returns its generation. It returns 0 after Close.
func (c *Coordinator) Dispatch(r domain.DateRange) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.dispatchLocked(r)
}

// dispatchLocked claims the next generation and starts its pass. Callers hold
// c.mu so no Present can land between the decision and the generation bump.
func (c *Coordinator) dispatchLocked(r domain.DateRange) uint64 {
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.active = true
	c.wg.Add(1)

	c.progress.Publish(Progress{Phase: PhaseFiltering, Message: r.String()})
	go c.run(ctx, cancel, gen, r)
	return gen
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, r domain.DateRange) {
	defer c.wg.Done()
	defer cancel()

	start := c.clock.Now()
	view, err := c.safeFilter(ctx, r)
	elapsed := c.clock.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.metrics.FilterRequests.WithLabelValues("superseded").Inc()
		c.logger.Debug("discarding superseded filter result", "generation", gen, "current", c.generation)
		return
	}
	c.cancel = nil
	c.active = false
	c.settled = StateDone
	c.metrics.FilterDuration.Observe(elapsed.Seconds())

	if err != nil {
		c.metrics.FilterRequests.WithLabelValues("failed").Inc()
		c.logger.Error("filter failed", "generation", gen, "range", r.String(), "error", err)
		c.progress.Publish(Progress{Phase: PhaseError, Message: fmt.Sprintf("filter failed: %v", err)})
		return
	}

	view.Generation = gen
	if err := c.apply(ctx, view); err != nil {
		c.metrics.FilterRequests.WithLabelValues("failed").Inc()
		return
	}
	c.metrics.FilterRequests.WithLabelValues("applied").Inc()
	c.logger.Debug("filter applied", "generation", gen, "range", r.String(), "features", view.Len(), "elapsed", elapsed)
}

// apply renders view and records it as current. Callers hold c.mu.
func (c *Coordinator) apply(ctx context.Context, view domain.View) error {
	c.progress.Publish(Progress{Phase: PhaseRendering, Total: view.Len()})
	if err := c.renderer.Render(ctx, view); err != nil {
		c.logger.Error("render failed", "generation", view.Generation, "error", err)
		c.progress.Publish(Progress{Phase: PhaseError, Message: fmt.Sprintf("render failed: %v", err)})
		return fmt.Errorf("render view %d: %w", view.Generation, err)
	}
	c.applied = view.Generation
	c.progress.Publish(Progress{Phase: PhaseDone, Completed: view.Len(), Total: view.Len()})
	return nil
}

func (c *Coordinator) safeFilter(ctx context.Context, r domain.DateRange) (view domain.View, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("filter panic: %v", p)
		}
	}()
	if c.filter == nil {
		return domain.View{}, errors.New("no filter configured")
	}
	return c.filter(ctx, r)
}

// Present renders view directly, bypassing the debounce and filter, and
// invalidates any pending or in-flight pass. Used when a dataset is (re)loaded.
func (c *Coordinator) Present(ctx context.Context, view domain.View) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("coordinator closed")
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.active = false
	c.settled = StateDone
	view.Generation = c.generation
	return c.apply(ctx, view)
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.timer != nil:
		return StateDebouncing
	case c.active:
		return StateFiltering
	default:
		return c.settled
	}
}

// Applied returns the generation of the last rendered view, 0 if none.
func (c *Coordinator) Applied() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Wait blocks until every dispatched pass has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close drops any pending request, cancels the pass in flight and waits for
// running passes to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.active = false
	c.mu.Unlock()

	c.wg.Wait()
}
