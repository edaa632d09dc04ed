package store

import (
	"encoding/binary"
)

// RecordSize is the on-disk width of one record: two little-endian uint64s.
// The file has no header, so record i lives at byte offset i*RecordSize and
// the NextMultiple half of record i at i*RecordSize + 8.
const RecordSize = 16

// Record is the persisted state of one discovered prime.
type Record struct {
	// Value is the prime itself, >= 2.
	Value uint64

	// NextMultiple is the smallest multiple of Value not yet marked
	// composite in any completed window. It is always a multiple of
	// Value and never decreases once a window commits.
	NextMultiple uint64
}

func encodeRecord(buf []byte, r Record) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Value)
	binary.LittleEndian.PutUint64(buf[8:16], r.NextMultiple)
}

func decodeRecord(buf []byte) Record {
	return Record{
		Value:        binary.LittleEndian.Uint64(buf[0:8]),
		NextMultiple: binary.LittleEndian.Uint64(buf[8:16]),
	}
}
