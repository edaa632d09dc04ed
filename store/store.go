// Package store implements the persistent prime store: an append-growable
// file of fixed-size (Value, NextMultiple) records, read fully at the start
// of each sieve window and patched in place as windows advance.
//
// Durability contract:
//
//   - Append encodes all new records into one buffer and issues a single
//     WriteAt at the old end of file; on any write error the file is
//     truncated back to its prior length, so a later LoadAll never observes
//     a partially written record.
//   - PatchNextMultiples only ever rewrites the NextMultiple half of a
//     record, so a Value can never be observed paired with a cursor that
//     belongs to a different prime.
package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/segsieve/segsieve/internal/fs"
)

// Store is a prime store backed by a single fixed-record file.
// It is used by exactly one writer at a time (the sieve engine).
type Store struct {
	fsys fs.FileSystem
	file fs.File
	path string
}

// Open opens (or creates) the prime store at path.
// If fsys is nil, the local file system is used.
func Open(fsys fs.FileSystem, path string) (*Store, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o750); err != nil {
			return nil, storageErr("open", path, err)
		}
	}

	file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, storageErr("open", path, err)
	}

	return &Store{fsys: fsys, file: file, path: path}, nil
}

// Path returns the file path of the store.
func (s *Store) Path() string { return s.path }

func (s *Store) size() (int64, error) {
	st, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Count returns the number of complete records in the store.
func (s *Store) Count() (int, error) {
	size, err := s.size()
	if err != nil {
		return 0, storageErr("load", s.path, err)
	}
	if size%RecordSize != 0 {
		return 0, storageErr("load", s.path, fmt.Errorf("%w: %d trailing bytes", ErrPartialRecord, size%RecordSize))
	}
	return int(size / RecordSize), nil
}

// LoadAll reads every record in ascending Value order.
// It returns an empty slice when no prior state exists.
func (s *Store) LoadAll() ([]Record, error) {
	size, err := s.size()
	if err != nil {
		return nil, storageErr("load", s.path, err)
	}
	if size%RecordSize != 0 {
		return nil, storageErr("load", s.path, fmt.Errorf("%w: %d trailing bytes", ErrPartialRecord, size%RecordSize))
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, storageErr("load", s.path, err)
	}

	records := make([]Record, size/RecordSize)
	for i := range records {
		records[i] = decodeRecord(buf[i*RecordSize:])
		if i > 0 && records[i].Value <= records[i-1].Value {
			return nil, storageErr("load", s.path,
				fmt.Errorf("%w: record %d (%d) after %d", ErrOutOfOrder, i, records[i].Value, records[i-1].Value))
		}
	}
	return records, nil
}

// Append adds newly discovered primes to the end of the store.
// All records are written with a single WriteAt; a failed or short write
// rolls the file back to its previous length.
func (s *Store) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	end, err := s.size()
	if err != nil {
		return storageErr("append", s.path, err)
	}

	buf := make([]byte, len(records)*RecordSize)
	for i, r := range records {
		encodeRecord(buf[i*RecordSize:], r)
	}

	n, err := s.file.WriteAt(buf, end)
	if err != nil || n != len(buf) {
		// Roll back so the next LoadAll sees no torn record.
		if terr := s.file.Truncate(end); terr != nil {
			return storageErr("append", s.path, fmt.Errorf("write failed (%v) and rollback failed: %w", err, terr))
		}
		if err == nil {
			err = io.ErrShortWrite
		}
		return storageErr("append", s.path, err)
	}
	return nil
}

// PatchNextMultiples persists advanced cursors for existing primes.
// Each update seeks to the NextMultiple half of the matching record, so the
// whole store is never rewritten and Value bytes are never touched.
func (s *Store) PatchNextMultiples(updates map[uint64]uint64) error {
	if len(updates) == 0 {
		return nil
	}

	records, err := s.LoadAll()
	if err != nil {
		return err
	}

	var scratch [8]byte
	matched := 0
	for i, r := range records {
		next, ok := updates[r.Value]
		if !ok {
			continue
		}
		matched++
		if next == r.NextMultiple {
			continue
		}
		if next%r.Value != 0 {
			return storageErr("patch", s.path,
				fmt.Errorf("cursor %d is not a multiple of prime %d", next, r.Value))
		}
		binary.LittleEndian.PutUint64(scratch[:], next)
		if _, err := s.file.WriteAt(scratch[:], int64(i)*RecordSize+8); err != nil {
			return storageErr("patch", s.path, err)
		}
	}
	if matched != len(updates) {
		// An update that matched no stored prime means caller and store
		// disagree about the record sequence.
		return storageErr("patch", s.path, fmt.Errorf("%d of %d updates matched no record", len(updates)-matched, len(updates)))
	}
	return nil
}

// VerifyBoundary checks that every record is consistent with the store
// resting at the given window boundary: each cursor must be a multiple of
// its prime and either the first such multiple at or past the boundary or
// the prime's untouched seed (its square). A cursor further ahead means a
// cursor patch was torn partway through a window; sieving from such a
// store would skip marking that prime's composites, so it is reported as
// corruption (ErrCursorMismatch) instead.
func (s *Store) VerifyBoundary(records []Record, boundary uint64) error {
	for _, r := range records {
		c := r.NextMultiple
		ok := c >= boundary && c%r.Value == 0 &&
			(c-boundary < r.Value ||
				(r.Value <= math.MaxUint64/r.Value && c == r.Value*r.Value))
		if !ok {
			return storageErr("verify", s.path,
				fmt.Errorf("%w: prime %d cursor %d at boundary %d", ErrCursorMismatch, r.Value, c, boundary))
		}
	}
	return nil
}

// TruncateRecords shrinks the store to its first n records. The engine uses
// this to roll a failed window back to the previous window boundary.
func (s *Store) TruncateRecords(n int) error {
	if n < 0 {
		return storageErr("truncate", s.path, fmt.Errorf("negative record count %d", n))
	}
	if err := s.file.Truncate(int64(n) * RecordSize); err != nil {
		return storageErr("truncate", s.path, err)
	}
	return nil
}

// Reset truncates the store to empty, discarding all prior state.
func (s *Store) Reset() error {
	if err := s.file.Truncate(0); err != nil {
		return storageErr("reset", s.path, err)
	}
	return nil
}

// Sync flushes the store to stable storage.
func (s *Store) Sync() error {
	if err := s.file.Sync(); err != nil {
		return storageErr("sync", s.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.file.Close()
}
