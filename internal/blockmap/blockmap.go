// Package blockmap translates an inode's logical block numbers into
// physical data-block numbers through the direct/single/double/triple
// indirect pointer chain (spec.md §4.4), and owns the data segment pool
// that those physical block numbers address.
package blockmap

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/alloc"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/segment"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Map owns the data segment pool and translates logical block numbers
// for inodes stored in a paired inode.Table.
type Map struct {
	data  *segment.Store
	alloc *alloc.Allocator
	log   *logrus.Entry
}

// New creates a Map over the data segment store, allocating data blocks
// through allocator.
func New(data *segment.Store, allocator *alloc.Allocator, log *logrus.Entry) *Map {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Map{data: data, alloc: allocator, log: log.WithField("component", "blockmap")}
}

// Open rescans the backing data segment store, per spec.md §9.
func (m *Map) Open() error {
	return m.alloc.Open()
}

const (
	d  = layout.DirectPointers
	p1 = layout.PointersPerIndirect
	p2 = p1 * p1
	p3 = p1 * p1 * p1
)

// tier identifies which pointer chain a logical block falls into.
type tier int

const (
	tierDirect tier = iota
	tierSingle
	tierDouble
	tierTriple
	tierOutOfRange
)

// locate decomposes a logical block index into the tier it belongs to
// plus the path of indices to walk within that tier's indirect blocks.
func locate(logical uint64) (t tier, path [3]int) {
	l := logical
	switch {
	case l < d:
		return tierDirect, [3]int{int(l), 0, 0}
	case l < d+p1:
		return tierSingle, [3]int{int(l - d), 0, 0}
	case l < d+p1+p2:
		l -= d + p1
		return tierDouble, [3]int{int(l / p1), int(l % p1), 0}
	case l < d+p1+p2+p3:
		l -= d + p1 + p2
		return tierTriple, [3]int{int(l / p2), int(l % p2 / p1), int(l % p1)}
	default:
		return tierOutOfRange, [3]int{}
	}
}

func (m *Map) readIndirect(block uint32) ([]uint32, error) {
	seg, slot := alloc.SlotCoords(int(block))
	buf, err := m.data.ReadBlock(seg, slot)
	if err != nil {
		return nil, err
	}
	ptrs := make([]uint32, layout.PointersPerIndirect)
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return ptrs, nil
}

func (m *Map) writeIndirect(block uint32, ptrs []uint32) error {
	buf := make([]byte, layout.BlockSize)
	for i, v := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	seg, slot := alloc.SlotCoords(int(block))
	return m.data.WriteBlock(seg, slot, buf)
}

func newIndirectPointers() []uint32 {
	ptrs := make([]uint32, layout.PointersPerIndirect)
	for i := range ptrs {
		ptrs[i] = layout.NullBlock
	}
	return ptrs
}

// allocated tracks freshly allocated blocks during a Resolve(allocate)
// call so they can be rolled back if a later step in the chain fails.
type allocated struct {
	m     *Map
	nums  []uint32
}

func (a *allocated) track(num uint32) { a.nums = append(a.nums, num) }

func (a *allocated) rollback() {
	for _, n := range a.nums {
		_ = a.m.alloc.Free(int(n))
	}
}

func (m *Map) allocateBlock() (uint32, error) {
	g, err := m.alloc.Allocate()
	if err != nil {
		return 0, err
	}
	return uint32(g), nil
}

// ReadPhysical returns the physical data block number for logical block
// index logical within in, without allocating anything. If the chain is
// missing a pointer (a hole), it returns layout.NullBlock and no error;
// ReadBlock reads such a hole as all-zero bytes.
func (m *Map) ReadPhysical(in inode.Inode, logical uint64) (uint32, error) {
	t, path := locate(logical)
	switch t {
	case tierOutOfRange:
		return 0, exferr.NewAllocError(nil, exferr.CodeFileTooLarge, "logical block beyond triple-indirect capacity").
			WithDetail("logical", logical)
	case tierDirect:
		return in.Direct[path[0]], nil
	case tierSingle:
		return m.walkRead(in.Single, path[:1])
	case tierDouble:
		return m.walkRead(in.Double, path[:2])
	case tierTriple:
		return m.walkRead(in.Triple, path[:3])
	}
	return layout.NullBlock, nil
}

func (m *Map) walkRead(root uint32, path []int) (uint32, error) {
	if root == layout.NullBlock {
		return layout.NullBlock, nil
	}
	cur := root
	for i, idx := range path {
		ptrs, err := m.readIndirect(cur)
		if err != nil {
			return 0, err
		}
		next := ptrs[idx]
		if i == len(path)-1 {
			return next, nil
		}
		if next == layout.NullBlock {
			return layout.NullBlock, nil
		}
		cur = next
	}
	return layout.NullBlock, nil
}

// Resolve returns the physical block number for logical block index
// logical within in, allocating any missing data block or indirect
// block along the way. It returns the (possibly modified) inode so the
// caller can persist it, and the updated physical block number.
//
// If any allocation in the chain fails, every block this call itself
// allocated is freed before the error is returned, leaving in and the
// store exactly as they were on entry (spec.md's write-path rollback
// requirement).
func (m *Map) Resolve(in inode.Inode, logical uint64) (inode.Inode, uint32, error) {
	t, path := locate(logical)
	if t == tierOutOfRange {
		return in, 0, exferr.NewAllocError(nil, exferr.CodeFileTooLarge, "logical block beyond triple-indirect capacity").
			WithDetail("logical", logical)
	}

	orig := in
	track := &allocated{m: m}

	switch t {
	case tierDirect:
		if in.Direct[path[0]] == layout.NullBlock {
			nb, err := m.allocateBlock()
			if err != nil {
				track.rollback()
				return in, 0, err
			}
			track.track(nb)
			in.Direct[path[0]] = nb
		}
		return in, in.Direct[path[0]], nil

	case tierSingle:
		root, err := m.resolveRoot(&in.Single, track)
		if err != nil {
			track.rollback()
			return orig, 0, err
		}
		phys, newRoot, err := m.walkWrite(root, path[:1], track)
		if err != nil {
			track.rollback()
			return orig, 0, err
		}
		in.Single = newRoot
		return in, phys, nil

	case tierDouble:
		root, err := m.resolveRoot(&in.Double, track)
		if err != nil {
			track.rollback()
			return orig, 0, err
		}
		phys, newRoot, err := m.walkWrite(root, path[:2], track)
		if err != nil {
			track.rollback()
			return orig, 0, err
		}
		in.Double = newRoot
		return in, phys, nil

	case tierTriple:
		root, err := m.resolveRoot(&in.Triple, track)
		if err != nil {
			track.rollback()
			return orig, 0, err
		}
		phys, newRoot, err := m.walkWrite(root, path[:3], track)
		if err != nil {
			track.rollback()
			return orig, 0, err
		}
		in.Triple = newRoot
		return in, phys, nil
	}

	return in, 0, exferr.NewAllocError(nil, exferr.CodeInternal, "unreachable tier")
}

// resolveRoot allocates the root indirect block for a tier if it is
// currently unset, returning its block number.
func (m *Map) resolveRoot(root *uint32, track *allocated) (uint32, error) {
	if *root != layout.NullBlock {
		return *root, nil
	}
	nb, err := m.allocateBlock()
	if err != nil {
		return 0, err
	}
	track.track(nb)
	if err := m.writeIndirect(nb, newIndirectPointers()); err != nil {
		return 0, err
	}
	*root = nb
	return nb, nil
}

// walkWrite descends the indirect chain starting at root following
// path, allocating any missing intermediate indirect block or final
// data block, and returns the final physical data block plus the
// (possibly unchanged) root block number.
func (m *Map) walkWrite(root uint32, path []int, track *allocated) (_ uint32, _ uint32, err error) {
	// (indirect block, slot) pairs this call pointed at a new block; they
	// are reset to NullBlock on failure, before the caller's rollback
	// frees the blocks they name.
	var patched [][2]int
	defer func() {
		for i := len(patched) - 1; err != nil && i >= 0; i-- {
			if ptrs, rerr := m.readIndirect(uint32(patched[i][0])); rerr == nil {
				ptrs[patched[i][1]] = layout.NullBlock
				_ = m.writeIndirect(uint32(patched[i][0]), ptrs)
			}
		}
	}()
	cur := root
	for i, idx := range path {
		ptrs, err := m.readIndirect(cur)
		if err != nil {
			return 0, 0, err
		}
		last := i == len(path)-1
		if ptrs[idx] == layout.NullBlock {
			nb, err := m.allocateBlock()
			if err != nil {
				return 0, 0, err
			}
			track.track(nb)
			if !last {
				if err := m.writeIndirect(nb, newIndirectPointers()); err != nil {
					return 0, 0, err
				}
			}
			ptrs[idx] = nb
			if err := m.writeIndirect(cur, ptrs); err != nil {
				return 0, 0, err
			}
			patched = append(patched, [2]int{int(cur), idx})
		}
		if last {
			return ptrs[idx], root, nil
		}
		cur = ptrs[idx]
	}
	return 0, root, exferr.NewAllocError(nil, exferr.CodeInternal, "empty path in walkWrite")
}

// ReadBlock reads the layout.BlockSize bytes of logical block logical
// within in. A hole (no physical block allocated) reads as all zeros.
func (m *Map) ReadBlock(in inode.Inode, logical uint64) ([]byte, error) {
	phys, err := m.ReadPhysical(in, logical)
	if err != nil {
		return nil, err
	}
	if phys == layout.NullBlock {
		return make([]byte, layout.BlockSize), nil
	}
	seg, slot := alloc.SlotCoords(int(phys))
	return m.data.ReadBlock(seg, slot)
}

// WriteBlock writes data (exactly layout.BlockSize bytes) to logical
// block logical within in, allocating as needed, and returns the
// updated inode to persist.
func (m *Map) WriteBlock(in inode.Inode, logical uint64, data []byte) (inode.Inode, error) {
	in, phys, err := m.Resolve(in, logical)
	if err != nil {
		return in, err
	}
	seg, slot := alloc.SlotCoords(int(phys))
	if err := m.data.WriteBlock(seg, slot, data); err != nil {
		return in, err
	}
	return in, nil
}

// FreeAll releases every data block and indirect block reachable from
// in — used when an object is removed or an add rolls back.
func (m *Map) FreeAll(in inode.Inode) error {
	for _, blk := range in.Direct {
		if blk != layout.NullBlock {
			if err := m.alloc.Free(int(blk)); err != nil {
				return err
			}
		}
	}
	if err := m.freeIndirectChain(in.Single, 0); err != nil {
		return err
	}
	if err := m.freeIndirectChain(in.Double, 1); err != nil {
		return err
	}
	if err := m.freeIndirectChain(in.Triple, 2); err != nil {
		return err
	}
	return nil
}

// freeIndirectChain frees block root and, recursively by depth, every
// block it points to (depth 0: root is a data-pointer block; depth 1:
// root points to depth-0 blocks; depth 2: root points to depth-1
// blocks). depth is bounded (<=2) so real recursion here is fine — it
// is not driven by the size of user data, only by the fixed indirection
// depth of the format.
func (m *Map) freeIndirectChain(root uint32, depth int) error {
	if root == layout.NullBlock {
		return nil
	}
	ptrs, err := m.readIndirect(root)
	if err != nil {
		return err
	}
	for _, child := range ptrs {
		if child == layout.NullBlock {
			continue
		}
		if depth == 0 {
			if err := m.alloc.Free(int(child)); err != nil {
				return err
			}
			continue
		}
		if err := m.freeIndirectChain(child, depth-1); err != nil {
			return err
		}
	}
	return m.alloc.Free(int(root))
}
