// Command segsieve computes primes up to an upper limit with a
// sliding-window sieve, persists them to a binary prime store, and exports
// the result as CSV.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/segsieve/segsieve"
	"github.com/segsieve/segsieve/export"
	"github.com/segsieve/segsieve/resource"
	"github.com/segsieve/segsieve/store"
)

var (
	windowSize  uint64
	upperLimit  uint64
	verbose     bool
	fast        bool
	storePath   string
	outPath     string
	compress    bool
	resume      bool
	markWorkers int
)

var rootCmd = &cobra.Command{
	Use:   "segsieve",
	Short: "Windowed Sieve of Eratosthenes with a persistent prime store",
	Long: `segsieve computes all primes up to --upper-limit using a sliding-window
Sieve of Eratosthenes. Memory is bounded by --window-size: per-prime state
is kept in a binary store file between windows instead of one large
in-memory array.

After the run, the store is exported as a CSV table with one
"value,next_multiple" row per prime.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().Uint64VarP(&windowSize, "window-size", "w", segsieve.DefaultWindowSize, "numbers sieved per window")
	rootCmd.Flags().Uint64VarP(&upperLimit, "upper-limit", "u", segsieve.DefaultUpperLimit, "inclusive upper bound of the sieved range")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log per-window progress to stderr")
	rootCmd.Flags().BoolVarP(&fast, "fast", "f", false, "disable the inter-window delay")
	rootCmd.Flags().StringVar(&storePath, "store", "primes.bin", "path of the binary prime store")
	rootCmd.Flags().StringVar(&outPath, "out", "primes.csv", "path of the CSV export")
	rootCmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress the CSV export")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "keep an existing store and continue from its last window")
	rootCmd.Flags().IntVar(&markWorkers, "mark-workers", 1, "goroutines for in-window composite marking")
}

func run(ctx context.Context) error {
	cfg := segsieve.Config{
		WindowSize: windowSize,
		UpperLimit: upperLimit,
		Verbose:    verbose,
		Fast:       fast,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !resume {
		for _, path := range []string{storePath, outPath, outPath + ".zst"} {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}

	st, err := store.Open(nil, storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	// Paced for human-observable progress; the engine skips the waits when
	// --fast is set and picks a debug logger when --verbose is set.
	ctrl := resource.NewController(resource.Config{
		WindowsPerSecond: 4,
		MaxMarkWorkers:   int64(markWorkers),
	})

	engine, err := segsieve.New(st, cfg,
		segsieve.WithController(ctrl),
		segsieve.WithMarkWorkers(markWorkers),
	)
	if err != nil {
		return err
	}

	fmt.Printf("Window size: %d\n", cfg.WindowSize)
	fmt.Printf("Upper limit: %d\n", cfg.UpperLimit)

	if err := engine.Run(ctx); err != nil {
		return err
	}

	rows, written, err := export.FromStore(st, outPath, func(o *export.Options) {
		o.Compress = compress
	})
	if err != nil {
		return err
	}

	fmt.Printf("Found %d primes (%s, %s)\n", rows, st.Path(), written)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
