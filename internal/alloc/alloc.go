// Package alloc implements ExFS2's bitmap allocator: the component that
// turns a segment.Store's raw blocks into a pool of numbered,
// allocate/free-able object slots, using bit 0 of segment N's bitmap
// block for slot 0 of that segment, and so on (spec.md §4.2).
//
// A "global number" identifies a slot uniquely across every segment in
// a pool: global = segmentIndex*layout.SlotsPerSegment + slotInSegment.
package alloc

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/bitset"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/segment"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Allocator hands out and reclaims global slot numbers from one segment
// pool (inode or data), backed by a segment.Store.
type Allocator struct {
	store *segment.Store
	log   *logrus.Entry

	mu       sync.Mutex
	segments []int // known segment indices, ascending
}

// New creates an Allocator over store. Open must be called once before
// use to rescan existing segments, per spec.md §9's no-globals mandate.
func New(store *segment.Store, log *logrus.Entry) *Allocator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Allocator{store: store, log: log.WithField("component", "alloc")}
}

// Open rescans the backing store for existing segments.
func (a *Allocator) Open() error {
	segs, err := a.store.Discover()
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.segments = segs
	a.mu.Unlock()
	return nil
}

func globalToCoords(global int) (seg, slotInSeg int) {
	return global / layout.SlotsPerSegment, global % layout.SlotsPerSegment
}

func coordsToGlobal(seg, slotInSeg int) int {
	return seg*layout.SlotsPerSegment + slotInSeg
}

// bitmapFor loads the bitset for segment seg, or a fresh all-clear one
// if the segment has no bitmap block yet (brand-new segment).
func (a *Allocator) bitmapFor(seg int) (*bitset.Bitset, error) {
	raw, err := a.store.ReadBitmap(seg)
	if err != nil {
		if se, ok := exferr.AsStorageError(err); ok && se.Code() == exferr.CodeNotFound {
			return bitset.New(layout.SlotsPerSegment), nil
		}
		return nil, err
	}
	return bitset.FromBytes(raw), nil
}

func (a *Allocator) saveBitmap(seg int, bs *bitset.Bitset) error {
	buf := bs.Bytes()
	if len(buf) < layout.BlockSize {
		padded := make([]byte, layout.BlockSize)
		copy(padded, buf)
		buf = padded
	}
	return a.store.WriteBitmap(seg, buf)
}

// Allocate finds the lowest-numbered free slot across known segments,
// in ascending segment order, growing the pool by one fresh segment if
// every existing segment is full. It marks the slot used, persists the
// bitmap, and returns the slot's global number.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, seg := range a.segments {
		bs, err := a.bitmapFor(seg)
		if err != nil {
			return 0, err
		}
		bit := bs.FirstFree(layout.SlotsPerSegment)
		if bit < 0 {
			continue
		}
		if err := bs.Set(bit); err != nil {
			return 0, err
		}
		if err := a.saveBitmap(seg, bs); err != nil {
			return 0, err
		}
		global := coordsToGlobal(seg, bit)
		a.log.WithField("global", global).Debug("allocated slot")
		return global, nil
	}

	// Every known segment is full (or there are none yet); grow the pool.
	newSeg := 0
	if len(a.segments) > 0 {
		newSeg = a.segments[len(a.segments)-1] + 1
	}
	bs := bitset.New(layout.SlotsPerSegment)
	if err := bs.Set(0); err != nil {
		return 0, err
	}
	if err := a.saveBitmap(newSeg, bs); err != nil {
		return 0, exferr.NewAllocError(err, exferr.CodeOutOfSpace, "creating new segment to grow pool").
			WithDetail("segment", newSeg)
	}
	a.segments = append(a.segments, newSeg)
	global := coordsToGlobal(newSeg, 0)
	a.log.WithField("global", global).WithField("segment", newSeg).Info("grew pool with new segment")
	return global, nil
}

// Free marks global's slot as unused again. Freeing an already-free slot
// is a no-op (idempotent, though logged at warn level), matching
// spec.md's remove-is-idempotent expectations for higher layers built
// atop this allocator. Freeing global slot 0 — the reserved root inode
// or root data block — is refused.
func (a *Allocator) Free(global int) error {
	if global == 0 {
		return exferr.NewAllocError(nil, exferr.CodeInternal, "refusing to free reserved slot 0").
			WithGlobal(global)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seg, bit := globalToCoords(global)
	bs, err := a.bitmapFor(seg)
	if err != nil {
		return err
	}
	set, err := bs.IsSet(bit)
	if err != nil {
		return exferr.NewAllocError(err, exferr.CodeCorruption, "checking bitmap bit before free").
			WithGlobal(global)
	}
	if !set {
		a.log.WithField("global", global).Warn("freeing an already-free slot")
	}
	if err := bs.Clear(bit); err != nil {
		return exferr.NewAllocError(err, exferr.CodeCorruption, "clearing bitmap bit").
			WithGlobal(global)
	}
	if err := a.saveBitmap(seg, bs); err != nil {
		return err
	}
	a.log.WithField("global", global).Debug("freed slot")
	return nil
}

// IsAllocated reports whether global's slot is currently marked used.
func (a *Allocator) IsAllocated(global int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	seg, bit := globalToCoords(global)
	bs, err := a.bitmapFor(seg)
	if err != nil {
		return false, err
	}
	return bs.IsSet(bit)
}

// SlotCoords exposes the segment/slot decomposition of a global number
// for callers (internal/inode, internal/blockmap) that need to address
// the underlying segment.Store directly. The returned slot is already
// adjusted for the bitmap block occupying slot 0 of every segment.
func SlotCoords(global int) (seg, slot int) {
	s, bit := globalToCoords(global)
	return s, bit + 1
}
