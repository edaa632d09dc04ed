// Package window provides the transient per-window composite mask used by
// the sieve engine. The mask is the windowed replacement for one large
// boolean array: it covers a single [start, end) sub-range of the number
// line and is reset (not reallocated) for every window.
//
// The underlying Roaring bitmap stores *composite* offsets, so a freshly
// reset mask (an empty bitmap) is equivalent to an all-"believed prime"
// boolean buffer.
package window

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Mask tracks composite positions within one window.
// It wraps the official roaring implementation.
// A Mask is not safe for concurrent use; parallel markers each build their
// own Mask and merge with Union before the buffer is read.
type Mask struct {
	start uint64
	end   uint64
	rb    *roaring.Bitmap
}

// New creates an empty mask. Reset must be called before use.
func New() *Mask {
	return &Mask{rb: roaring.New()}
}

// Reset re-targets the mask at the window [start, end) and clears all
// composite marks. Offsets within a window are 32-bit, so end-start must
// fit in uint32.
func (m *Mask) Reset(start, end uint64) error {
	if end < start {
		return fmt.Errorf("invalid window [%d, %d)", start, end)
	}
	if end-start > 1<<32-1 {
		return fmt.Errorf("window size %d exceeds 32-bit offset space", end-start)
	}
	m.start = start
	m.end = end
	m.rb.Clear()
	return nil
}

// Start returns the inclusive lower bound of the window.
func (m *Mask) Start() uint64 { return m.start }

// End returns the exclusive upper bound of the window.
func (m *Mask) End() uint64 { return m.end }

// Mark records the absolute position n as composite.
// Positions outside the window are ignored.
func (m *Mask) Mark(n uint64) {
	if n < m.start || n >= m.end {
		return
	}
	m.rb.Add(uint32(n - m.start))
}

// IsMarked reports whether the absolute position n is known composite.
func (m *Mask) IsMarked(n uint64) bool {
	if n < m.start || n >= m.end {
		return false
	}
	return m.rb.Contains(uint32(n - m.start))
}

// MarkedCount returns the number of composite positions in the window.
func (m *Mask) MarkedCount() uint64 {
	return m.rb.GetCardinality()
}

// Union merges another mask over the same window into this one.
func (m *Mask) Union(other *Mask) error {
	if other.start != m.start || other.end != m.end {
		return fmt.Errorf("window mismatch: [%d, %d) vs [%d, %d)", m.start, m.end, other.start, other.end)
	}
	m.rb.Or(other.rb)
	return nil
}

// Merge unions several masks over the same window in one pass.
func (m *Mask) Merge(others ...*Mask) error {
	if len(others) == 0 {
		return nil
	}
	bitmaps := make([]*roaring.Bitmap, 0, len(others)+1)
	bitmaps = append(bitmaps, m.rb)
	for _, o := range others {
		if o.start != m.start || o.end != m.end {
			return fmt.Errorf("window mismatch: [%d, %d) vs [%d, %d)", m.start, m.end, o.start, o.end)
		}
		bitmaps = append(bitmaps, o.rb)
	}
	m.rb = roaring.FastOr(bitmaps...)
	return nil
}

// Clone returns an independent copy of the mask for the same window.
func (m *Mask) Clone() *Mask {
	return &Mask{start: m.start, end: m.end, rb: m.rb.Clone()}
}

// Unmarked returns an iterator over absolute positions in [max(start, 2), end)
// that are not marked composite at the moment they are visited. Marks added
// during iteration (by the caller, for positions not yet visited) are
// honored: the sequence consults the live mask at every step. 0 and 1 are
// never yielded since they are not prime.
func (m *Mask) Unmarked() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		n := m.start
		if n < 2 {
			n = 2
		}
		for ; n < m.end; n++ {
			if m.rb.Contains(uint32(n - m.start)) {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}
