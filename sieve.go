package segsieve

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/segsieve/segsieve/resource"
	"github.com/segsieve/segsieve/store"
	"github.com/segsieve/segsieve/window"
)

// state is the engine's per-run state machine. Windows cycle through
// Marking -> Discovery -> Advance until the range is exhausted.
type state int

const (
	stateInitial state = iota
	stateMarking
	stateDiscovery
	stateAdvance
	stateDone
)

// Engine drives the sliding-window sieve from 0 to the configured upper
// limit. The prime store is the only durable state; the window mask is
// transient and reused across windows.
//
// Windows are processed strictly one after another: each window's
// correctness depends on the fully updated store from all prior windows.
// Within a window, Phase 1 marking may optionally run on multiple
// goroutines (see WithMarkWorkers); their masks are merged before Phase 2
// reads the window.
type Engine struct {
	cfg   Config
	store *store.Store
	mask  *window.Mask

	logger      *Logger
	metrics     MetricsCollector
	ctrl        *resource.Controller
	markWorkers int

	windows int

	// floor is the resume boundary: positions below it were processed by a
	// prior run and are never re-discovered.
	floor uint64
}

// New creates an Engine over the given prime store.
// The configuration is validated here; the engine never re-checks it.
// Config.Verbose selects a per-window debug logger unless WithLogger was
// given; Config.Fast makes the run skip the controller's pacing waits.
func New(st *store.Store, cfg Config, optFns ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(optFns)
	if cfg.Verbose && !o.loggerSet {
		o.logger = NewTextLogger(slog.LevelDebug)
	}

	return &Engine{
		cfg:         cfg,
		store:       st,
		mask:        window.New(),
		logger:      o.logger,
		metrics:     o.metrics,
		ctrl:        o.controller,
		markWorkers: o.markWorkers,
	}, nil
}

// Windows returns the number of windows processed so far.
func (e *Engine) Windows() int { return e.windows }

// Run executes the sieve to completion. When it returns nil, the store
// contains every prime <= UpperLimit in ascending order, exactly once.
//
// A StorageError aborts the run at a window boundary: nothing is persisted
// mid-phase, so the store is left at the last fully advanced window and
// re-running the same window is idempotent.
func (e *Engine) Run(ctx context.Context) error {
	started := time.Now()

	err := e.run(ctx)

	primes := 0
	if n, cerr := e.store.Count(); cerr == nil {
		primes = n
	}
	e.metrics.RecordRun(primes, time.Since(started), err)
	e.logger.LogRun(ctx, e.cfg.UpperLimit, e.windows, primes, err)
	return err
}

func (e *Engine) run(ctx context.Context) error {
	// The sieved range is [2, UpperLimit] inclusive; limit is the exclusive
	// bound of the final window. Validate guarantees UpperLimit+1 does not
	// wrap.
	limit := e.cfg.UpperLimit + 1

	var (
		st          = stateInitial
		windowStart uint64
		windowEnd   uint64
		known       []store.Record
		updates     map[uint64]uint64
		discovered  []store.Record
		windowBegan time.Time
	)

	for st != stateDone {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch st {
		case stateInitial:
			records, err := e.store.LoadAll()
			if err != nil {
				return err
			}
			windowStart, e.floor = resumeStart(records, e.cfg.WindowSize, limit)
			if windowStart >= limit {
				st = stateDone
			} else {
				if err := e.store.VerifyBoundary(records, e.floor); err != nil {
					return err
				}
				st = stateMarking
			}

		case stateMarking:
			if !e.cfg.Fast {
				if err := e.ctrl.WaitWindow(ctx); err != nil {
					return err
				}
			}
			windowBegan = time.Now()

			windowEnd = windowStart + e.cfg.WindowSize
			if windowEnd < windowStart || windowEnd > limit {
				windowEnd = limit // clip the final window
			}

			var err error
			known, err = e.store.LoadAll()
			if err != nil {
				return err
			}
			if err := e.mask.Reset(windowStart, windowEnd); err != nil {
				return err
			}
			updates, err = e.mark(ctx, known)
			if err != nil {
				return err
			}
			st = stateDiscovery

		case stateDiscovery:
			var err error
			discovered, err = e.discover()
			if err != nil {
				return err
			}
			st = stateAdvance

		case stateAdvance:
			if err := e.persistWindow(known, updates, discovered); err != nil {
				e.metrics.RecordWindow(0, time.Since(windowBegan), err)
				e.logger.LogWindow(ctx, windowStart, windowEnd, len(known), 0, err)
				return err
			}
			e.metrics.RecordWindow(len(discovered), time.Since(windowBegan), nil)
			e.logger.LogWindow(ctx, windowStart, windowEnd, len(known), len(discovered), nil)

			e.windows++
			windowStart = windowEnd
			if windowStart >= limit {
				st = stateDone
			} else {
				st = stateMarking
			}
		}
	}
	return nil
}

// persistWindow applies one window's results to the store: Phase 1 cursor
// advances first, then Phase 2 discoveries, then a sync. Nothing is written
// before this point, so on any failure the store is rolled back to its
// pre-window state and retrying the window yields the same records.
func (e *Engine) persistWindow(known []store.Record, updates map[uint64]uint64, discovered []store.Record) error {
	if err := e.store.PatchNextMultiples(updates); err != nil {
		return errors.Join(err, e.rollback(known))
	}
	if err := e.store.Append(discovered...); err != nil {
		return errors.Join(err, e.rollback(known))
	}
	if err := e.store.Sync(); err != nil {
		return errors.Join(err, e.rollback(known))
	}
	return nil
}

// rollback restores the store to the snapshot loaded at the start of the
// current window: appended records are truncated away and every cursor is
// patched back to its pre-window value.
func (e *Engine) rollback(known []store.Record) error {
	if err := e.store.TruncateRecords(len(known)); err != nil {
		return err
	}
	prev := make(map[uint64]uint64, len(known))
	for _, r := range known {
		prev[r.Value] = r.NextMultiple
	}
	return e.store.PatchNextMultiples(prev)
}

// resumeStart derives the rest boundary of a surviving store and the first
// window start that continues it. The engine persists whole windows only,
// so a store at rest sits at some boundary L: every cursor is the first
// multiple of its prime at or past L, or the prime's untouched seed (its
// square). When L is composite its smallest prime factor rests exactly at
// L, so the smallest cursor m equals L; when L is prime no stored cursor
// can equal L and m = L+1. The two cases are told apart by testing m-1 for
// primality against the store, which is complete up to m-2.
//
// The boundary need not sit on the current window grid (a limit that was
// not a multiple of the window size, or a store produced with a different
// window size, leaves it off grid): the first resumed window starts at
// L - L%windowSize and discovery is suppressed below L.
//
// Returns the first window start and the boundary; a start at or past
// limit means every requested window was already processed.
func resumeStart(records []store.Record, windowSize, limit uint64) (uint64, uint64) {
	if len(records) == 0 {
		return 0, 0
	}

	m := records[0].NextMultiple
	for _, r := range records[1:] {
		if r.NextMultiple < m {
			m = r.NextMultiple
		}
	}

	boundary := m
	if m >= 4 {
		if x := m - 1; isPrimeIn(records, x) && !containsValue(records, x) {
			boundary = x
		}
	}
	if boundary >= limit {
		return limit, boundary
	}
	return boundary - boundary%windowSize, boundary
}

// isPrimeIn reports whether x is prime by trial division against the
// stored primes. Valid only when the store holds every prime below x.
func isPrimeIn(records []store.Record, x uint64) bool {
	if x < 2 {
		return false
	}
	for _, r := range records {
		if r.Value > x/r.Value {
			break
		}
		if x%r.Value == 0 {
			return false
		}
	}
	return true
}

func containsValue(records []store.Record, x uint64) bool {
	i := sort.Search(len(records), func(i int) bool { return records[i].Value >= x })
	return i < len(records) && records[i].Value == x
}

// mark runs Phase 1: clear composite positions for every known prime whose
// cursor falls inside the current window, and collect the advanced cursors.
func (e *Engine) mark(ctx context.Context, known []store.Record) (map[uint64]uint64, error) {
	if e.markWorkers <= 1 || len(known) < 2*e.markWorkers {
		return markInto(e.mask, known)
	}
	return e.markParallel(ctx, known)
}

// markInto marks multiples of the given primes into mask and returns the
// advanced cursor for every prime that entered the window.
func markInto(mask *window.Mask, known []store.Record) (map[uint64]uint64, error) {
	start, end := mask.Start(), mask.End()

	updates := make(map[uint64]uint64)
	for _, r := range known {
		next := r.NextMultiple
		if next >= end {
			continue
		}
		if next < start {
			// Jump straight to the first multiple inside the window.
			steps := (start - next + r.Value - 1) / r.Value
			if steps > (math.MaxUint64-next)/r.Value {
				return nil, &RangeError{Prime: r.Value, Multiple: next}
			}
			next += steps * r.Value
		}
		for next < end {
			mask.Mark(next)
			if next > math.MaxUint64-r.Value {
				return nil, &RangeError{Prime: r.Value, Multiple: next}
			}
			next += r.Value
		}
		updates[r.Value] = next
	}
	return updates, nil
}

// markParallel partitions the known primes across up to markWorkers
// goroutines, each marking into a private mask. The masks are merged into
// the engine's mask before returning, so Discovery always reads a fully
// marked window.
func (e *Engine) markParallel(ctx context.Context, known []store.Record) (map[uint64]uint64, error) {
	workers := e.markWorkers
	if workers > len(known) {
		workers = len(known)
	}

	chunk := (len(known) + workers - 1) / workers
	masks := make([]*window.Mask, workers)
	updateSets := make([]map[uint64]uint64, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		lo := i * chunk
		hi := min(lo+chunk, len(known))
		if lo >= hi {
			break
		}
		g.Go(func() error {
			if err := e.ctrl.AcquireMarkWorker(gctx); err != nil {
				return err
			}
			defer e.ctrl.ReleaseMarkWorker()

			m := window.New()
			if err := m.Reset(e.mask.Start(), e.mask.End()); err != nil {
				return err
			}
			u, err := markInto(m, known[lo:hi])
			if err != nil {
				return err
			}
			masks[i] = m
			updateSets[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[uint64]uint64)
	live := masks[:0:0]
	for i, m := range masks {
		if m == nil {
			continue
		}
		live = append(live, m)
		for v, next := range updateSets[i] {
			merged[v] = next
		}
	}
	if err := e.mask.Merge(live...); err != nil {
		return nil, err
	}
	return merged, nil
}

// discover runs Phase 2: every position left unmarked after Phase 1 is a
// new prime. Its cursor is seeded at value squared; when the square falls
// inside the current window, those multiples are marked immediately so
// later positions in the same window are correctly cleared before being
// visited.
func (e *Engine) discover() ([]store.Record, error) {
	end := e.mask.End()

	var discovered []store.Record
	for n := range e.mask.Unmarked() {
		if n < e.floor {
			// Below the resume boundary everything was already processed.
			continue
		}
		if n > math.MaxUint64/n {
			return nil, &RangeError{Prime: n, Multiple: n}
		}
		next := n * n
		for next < end {
			e.mask.Mark(next)
			if next > math.MaxUint64-n {
				return nil, &RangeError{Prime: n, Multiple: next}
			}
			next += n
		}
		discovered = append(discovered, store.Record{Value: n, NextMultiple: next})
	}
	return discovered, nil
}

// Primes loads the finished store and returns the prime values in order.
// Call after Run has returned nil.
func (e *Engine) Primes() ([]uint64, error) {
	records, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}
	primes := make([]uint64, len(records))
	for i, r := range records {
		primes[i] = r.Value
	}
	return primes, nil
}
