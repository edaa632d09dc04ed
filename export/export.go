// Package export converts a finished prime store into a text table.
//
// The export is a pure read of the store after the sieve reaches Done: it
// never participates in sieve correctness and can be re-run at any time.
// Each row is "value,next_multiple".
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/segsieve/segsieve/internal/fs"
	"github.com/segsieve/segsieve/store"
)

// Options contains configuration for file exports.
type Options struct {
	// Compress wraps the output in a zstd stream and appends ".zst" to the
	// file name.
	Compress bool

	// CompressionLevel sets the zstd compression level (1-22).
	// Default (3) provides a good balance.
	CompressionLevel int

	// fsys overrides the file system the export is written through; nil
	// means the local file system. Test seam for fault injection.
	fsys fs.FileSystem
}

// DefaultOptions returns default export options.
var DefaultOptions = Options{
	Compress:         false,
	CompressionLevel: 3,
}

// Write emits one CSV row per record and returns the number of rows written.
func Write(w io.Writer, records []store.Record) (int, error) {
	bw := bufio.NewWriter(w)

	var line []byte
	for i, r := range records {
		line = line[:0]
		line = strconv.AppendUint(line, r.Value, 10)
		line = append(line, ',')
		line = strconv.AppendUint(line, r.NextMultiple, 10)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return i, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return len(records), fmt.Errorf("failed to flush export: %w", err)
	}
	return len(records), nil
}

// File writes the records to a CSV file at path, returning the number of
// rows and the actual path written (path + ".zst" when compressed).
// A failed export removes the file: a truncated table is never left behind
// looking like a finished one.
func File(path string, records []store.Record, optFns ...func(o *Options)) (int, string, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	fsys := opts.fsys
	if fsys == nil {
		fsys = fs.Default
	}

	if opts.Compress {
		path += ".zst"
	}

	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, path, fmt.Errorf("failed to create export file: %w", err)
	}

	var (
		w          io.Writer = f
		compressor *zstd.Encoder
	)
	if opts.Compress {
		level := zstd.EncoderLevelFromZstd(opts.CompressionLevel)
		compressor, err = zstd.NewWriter(f, zstd.WithEncoderLevel(level))
		if err != nil {
			_ = f.Close()
			_ = fsys.Remove(path)
			return 0, path, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = compressor
	}

	rows, werr := Write(w, records)

	if compressor != nil {
		if cerr := compressor.Close(); werr == nil && cerr != nil {
			werr = fmt.Errorf("failed to close zstd writer: %w", cerr)
		}
	}
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("failed to close export file: %w", cerr)
	}
	if werr != nil {
		_ = fsys.Remove(path)
	}

	return rows, path, werr
}

// FromStore loads the full store and exports it to path.
func FromStore(s *store.Store, path string, optFns ...func(o *Options)) (int, string, error) {
	records, err := s.LoadAll()
	if err != nil {
		return 0, path, err
	}
	return File(path, records, optFns...)
}
