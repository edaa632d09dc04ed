package segsieve

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/segsieve/segsieve/internal/fs"
	"github.com/segsieve/segsieve/resource"
	"github.com/segsieve/segsieve/store"
	"github.com/segsieve/segsieve/window"
)

// naiveSieve is the ground-truth oracle: a plain in-memory Sieve of
// Eratosthenes over [2, limit].
func naiveSieve(limit uint64) []uint64 {
	if limit < 2 {
		return nil
	}
	composite := make([]bool, limit+1)
	var primes []uint64
	for n := uint64(2); n <= limit; n++ {
		if composite[n] {
			continue
		}
		primes = append(primes, n)
		for m := n * n; m <= limit; m += n {
			composite[m] = true
		}
	}
	return primes
}

func openStore(t *testing.T, fsys fs.FileSystem, path string) *store.Store {
	t.Helper()
	s, err := store.Open(fsys, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func runSieve(t *testing.T, cfg Config, optFns ...Option) []uint64 {
	t.Helper()
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	engine, err := New(s, cfg, optFns...)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	primes, err := engine.Primes()
	require.NoError(t, err)
	return primes
}

func TestEngine_MatchesOracle(t *testing.T) {
	want := naiveSieve(1000)

	for _, ws := range []uint64{1, 7, 10, 100, 999, 1000, 100_000} {
		got := runSieve(t, Config{WindowSize: ws, UpperLimit: 1000})
		require.Equal(t, want, got, "window_size=%d", ws)
	}
}

func TestEngine_UpperLimitInclusive(t *testing.T) {
	// 997 is prime; it must be found when it IS the upper limit.
	got := runSieve(t, Config{WindowSize: 100, UpperLimit: 997})
	require.Equal(t, uint64(997), got[len(got)-1])
}

func TestEngine_BoundaryUpperTwo(t *testing.T) {
	got := runSieve(t, Config{WindowSize: 10, UpperLimit: 2})
	require.Equal(t, []uint64{2}, got)
}

func TestEngine_WindowSizeIndependence(t *testing.T) {
	small := runSieve(t, Config{WindowSize: 10, UpperLimit: 10_000})
	large := runSieve(t, Config{WindowSize: 100_000, UpperLimit: 10_000})
	require.Equal(t, small, large)
	require.Len(t, small, 1229) // pi(10^4)
}

func TestEngine_DefaultMillion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full default-range run in short mode")
	}
	got := runSieve(t, DefaultConfig())
	require.Len(t, got, 78_498) // pi(10^6)
	require.Equal(t, naiveSieve(1_000_000), got)
}

// discoveryLog records per-window discovery counts in order.
type discoveryLog struct {
	NoopMetricsCollector
	perWindow []int
}

func (d *discoveryLog) RecordWindow(discovered int, _ time.Duration, err error) {
	if err == nil {
		d.perWindow = append(d.perWindow, discovered)
	}
}

func TestEngine_EndToEndHundredByTen(t *testing.T) {
	log := &discoveryLog{}
	got := runSieve(t, Config{WindowSize: 10, UpperLimit: 100}, WithMetrics(log))

	require.Equal(t, naiveSieve(100), got)
	require.Len(t, got, 25)

	// 11 windows: [0,10) ... [90,100), then the clipped [100,101),
	// which discovers nothing (100 is composite).
	require.Equal(t, []int{4, 4, 2, 2, 3, 2, 2, 3, 2, 1, 0}, log.perWindow)
}

// storeAudit verifies the store invariant after every window: the value
// sequence is strictly increasing and contains exactly the primes below the
// window end.
type storeAudit struct {
	NoopMetricsCollector
	t      *testing.T
	st     *store.Store
	oracle []uint64
	ws     uint64
	limit  uint64
	k      uint64
}

func (a *storeAudit) RecordWindow(_ int, _ time.Duration, err error) {
	require.NoError(a.t, err)
	a.k++
	end := a.k * a.ws
	if end > a.limit {
		end = a.limit
	}

	records, lerr := a.st.LoadAll() // LoadAll rejects out-of-order stores
	require.NoError(a.t, lerr)

	var want []uint64
	for _, p := range a.oracle {
		if p < end {
			want = append(want, p)
		}
	}
	got := make([]uint64, len(records))
	for i, r := range records {
		got[i] = r.Value
	}
	require.Equal(a.t, want, got, "after window %d (end %d)", a.k, end)
}

func TestEngine_StoreInvariantEveryWindow(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	cfg := Config{WindowSize: 30, UpperLimit: 500}
	audit := &storeAudit{t: t, st: s, oracle: naiveSieve(500), ws: cfg.WindowSize, limit: cfg.UpperLimit + 1}

	engine, err := New(s, cfg, WithMetrics(audit))
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))
}

func TestEngine_ParallelMarkingMatchesSequential(t *testing.T) {
	cfg := Config{WindowSize: 1_000, UpperLimit: 50_000}

	sequential := runSieve(t, cfg)
	parallel := runSieve(t, cfg,
		WithMarkWorkers(4),
		WithController(resource.NewController(resource.Config{MaxMarkWorkers: 4})),
	)
	require.Equal(t, sequential, parallel)
}

func TestEngine_StorageFaultAbortsAndRetrySucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primes.bin")

	// Every sync fails: the engine must abort at the first window boundary
	// and roll the window back.
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("primes.bin", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	faulty := openStore(t, ffs, path)
	engine, err := New(faulty, Config{WindowSize: 10, UpperLimit: 100})
	require.NoError(t, err)

	err = engine.Run(context.Background())
	var serr *store.StorageError
	require.ErrorAs(t, err, &serr)

	// Rollback left the store at the previous window boundary: empty.
	records, err := faulty.LoadAll()
	require.NoError(t, err)
	require.Empty(t, records)

	// Retry against healthy storage completes from scratch.
	healthy := openStore(t, nil, path)
	engine, err = New(healthy, Config{WindowSize: 10, UpperLimit: 100})
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	primes, err := engine.Primes()
	require.NoError(t, err)
	require.Equal(t, naiveSieve(100), primes)
}

func TestEngine_ResumeCompletedStoreIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primes.bin")
	cfg := Config{WindowSize: 10, UpperLimit: 99}

	s := openStore(t, nil, path)
	engine, err := New(s, cfg)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))
	require.Equal(t, 10, engine.Windows())

	// A second run over the same store has nothing left to do.
	again, err := New(s, cfg)
	require.NoError(t, err)
	require.NoError(t, again.Run(context.Background()))
	require.Zero(t, again.Windows())

	primes, err := again.Primes()
	require.NoError(t, err)
	require.Equal(t, naiveSieve(99), primes)
}

func TestEngine_ResumeDetectsTornCursorPatch(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	first, err := New(s, Config{WindowSize: 30, UpperLimit: 29})
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))

	// Advance one cursor past the rest boundary, the way a patch torn
	// between per-record writes would leave it.
	require.NoError(t, s.PatchNextMultiples(map[uint64]uint64{2: 60}))

	second, err := New(s, Config{WindowSize: 30, UpperLimit: 59})
	require.NoError(t, err)

	// Resuming would skip marking the even numbers of [30, 60) and persist
	// composites as primes, so the store must be rejected instead.
	err = second.Run(context.Background())
	require.ErrorIs(t, err, store.ErrCursorMismatch)
	var serr *store.StorageError
	require.ErrorAs(t, err, &serr)
}

func TestEngine_IncrementalUpperExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primes.bin")

	s := openStore(t, nil, path)
	first, err := New(s, Config{WindowSize: 10, UpperLimit: 99})
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))

	// Raising the limit continues from the previous boundary instead of
	// re-sieving from zero.
	second, err := New(s, Config{WindowSize: 10, UpperLimit: 199})
	require.NoError(t, err)
	require.NoError(t, second.Run(context.Background()))
	require.Equal(t, 10, second.Windows())

	primes, err := second.Primes()
	require.NoError(t, err)
	require.Equal(t, naiveSieve(199), primes)
}

func TestEngine_IncrementalExtensionOffGridLimit(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	first, err := New(s, Config{WindowSize: 10, UpperLimit: 25})
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	require.Equal(t, 3, first.Windows()) // [0,10) [10,20) [20,26)

	// The prior limit left the store between grid boundaries. Extension
	// restarts the clipped window without re-discovering anything below the
	// old boundary.
	second, err := New(s, Config{WindowSize: 10, UpperLimit: 100})
	require.NoError(t, err)
	require.NoError(t, second.Run(context.Background()))
	require.Equal(t, 9, second.Windows()) // [20,30) ... [100,101)

	primes, err := second.Primes()
	require.NoError(t, err)
	require.Equal(t, naiveSieve(100), primes)
}

func TestEngine_ResumeAfterPrimeBoundary(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	// Rest boundary 11 is prime, so no stored cursor sits exactly on it.
	first, err := New(s, Config{WindowSize: 11, UpperLimit: 10})
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))

	second, err := New(s, Config{WindowSize: 11, UpperLimit: 11})
	require.NoError(t, err)
	require.NoError(t, second.Run(context.Background()))
	require.Equal(t, 1, second.Windows())

	primes, err := second.Primes()
	require.NoError(t, err)
	require.Equal(t, naiveSieve(11), primes)
}

func TestEngine_FastSkipsPacing(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	// At this rate the second window alone would wait ~17 minutes.
	ctrl := resource.NewController(resource.Config{WindowsPerSecond: 0.001})
	engine, err := New(s, Config{WindowSize: 10, UpperLimit: 100, Fast: true},
		WithController(ctrl))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, engine.Run(ctx))

	primes, err := engine.Primes()
	require.NoError(t, err)
	require.Equal(t, naiveSieve(100), primes)
}

func TestEngine_ContextCancellation(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))

	engine, err := New(s, Config{WindowSize: 10, UpperLimit: 100_000})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, engine.Run(ctx), context.Canceled)
}

func TestMarkInto_RangeErrorNearTop(t *testing.T) {
	m := window.New()
	require.NoError(t, m.Reset(math.MaxUint64-10, math.MaxUint64))

	_, err := markInto(m, []store.Record{{Value: 2, NextMultiple: math.MaxUint64 - 9}})
	var rerr *RangeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, uint64(2), rerr.Prime)
}

func TestDiscover_RangeErrorOnSquareOverflow(t *testing.T) {
	s := openStore(t, nil, filepath.Join(t.TempDir(), "primes.bin"))
	engine, err := New(s, Config{WindowSize: 10, UpperLimit: 100})
	require.NoError(t, err)

	// Any unmarked position above 2^32 has a square that overflows uint64.
	require.NoError(t, engine.mask.Reset(1<<33, 1<<33+4))
	_, err = engine.discover()
	var rerr *RangeError
	require.ErrorAs(t, err, &rerr)
}

func TestEngine_PacedRunMatchesUnpaced(t *testing.T) {
	cfg := Config{WindowSize: 25, UpperLimit: 200}

	unpaced := runSieve(t, cfg)
	paced := runSieve(t, cfg,
		WithController(resource.NewController(resource.Config{WindowsPerSecond: 1000})),
	)
	require.Equal(t, unpaced, paced)
}
