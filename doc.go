// Package segsieve computes prime numbers up to a caller-specified upper
// bound with a sliding-window Sieve of Eratosthenes. Memory usage is bounded
// by the window size, not the upper bound: instead of one large boolean
// array, per-prime state lives in a persistent store of fixed-size
// (value, next_multiple) records that survives across windows and across
// process restarts.
//
// Each window runs two phases:
//
//   - Phase 1 (Marking): composite positions are cleared using the primes
//     already in the store; every prime's next-multiple cursor is advanced
//     past the window.
//   - Phase 2 (Discovery): positions left unmarked are new primes. They are
//     appended to the store with their cursor seeded at value squared, and
//     any of their multiples that fall inside the current window are marked
//     before later positions are visited.
//
// Primes are discovered in strictly ascending order across the run; this
// ordering is what makes Phase 1 correct for every later window.
//
// # Quick Start
//
//	st, err := store.Open(nil, "primes.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	engine, err := segsieve.New(st, segsieve.Config{
//	    WindowSize: 100_000,
//	    UpperLimit: 1_000_000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	rows, path, err := export.FromStore(st, "primes.csv")
//
// Windows are always processed one after another. Within a window,
// Phase 1 marking for independent primes may run on multiple goroutines
// (WithMarkWorkers); the per-worker masks are merged before Discovery, so
// results are identical to a sequential run.
package segsieve
