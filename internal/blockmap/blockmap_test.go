package blockmap

import (
	"bytes"
	"testing"

	"github.com/sahrohit/exfs2/internal/alloc"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/segment"
)

func newTestMap(t *testing.T) *Map {
	t.Helper()
	segs := segment.New(segment.KindData, t.TempDir(), nil)
	a := alloc.New(segs, nil)
	if err := a.Open(); err != nil {
		t.Fatalf("alloc Open: %v", err)
	}
	m := New(segs, a, nil)
	if err := m.Open(); err != nil {
		t.Fatalf("Map Open: %v", err)
	}
	return m
}

func fill(b byte) []byte {
	buf := make([]byte, layout.BlockSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestWriteReadDirectBlock(t *testing.T) {
	m := newTestMap(t)
	in := inode.New(inode.TypeRegular)

	in, err := m.WriteBlock(in, 0, fill(0xAA))
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if in.Direct[0] == layout.NullBlock {
		t.Fatal("Direct[0] still null after WriteBlock")
	}

	got, err := m.ReadBlock(in, 0)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, fill(0xAA)) {
		t.Fatal("read back bytes differ from what was written")
	}
}

func TestReadHoleIsZero(t *testing.T) {
	m := newTestMap(t)
	in := inode.New(inode.TypeRegular)
	got, err := m.ReadBlock(in, 0)
	if err != nil {
		t.Fatalf("ReadBlock on a hole: %v", err)
	}
	if !bytes.Equal(got, make([]byte, layout.BlockSize)) {
		t.Fatal("reading an unallocated block did not return zeros")
	}
}

func TestSingleIndirectBoundary(t *testing.T) {
	m := newTestMap(t)
	in := inode.New(inode.TypeRegular)

	// Last direct block, first single-indirect block.
	in, err := m.WriteBlock(in, layout.DirectPointers-1, fill(1))
	if err != nil {
		t.Fatalf("WriteBlock(direct boundary): %v", err)
	}
	in, err = m.WriteBlock(in, layout.DirectPointers, fill(2))
	if err != nil {
		t.Fatalf("WriteBlock(single indirect start): %v", err)
	}
	if in.Single == layout.NullBlock {
		t.Fatal("Single pointer still null after crossing the boundary")
	}

	got, err := m.ReadBlock(in, layout.DirectPointers)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, fill(2)) {
		t.Fatal("single-indirect block content mismatch")
	}
}

func TestDoubleIndirectBoundary(t *testing.T) {
	m := newTestMap(t)
	in := inode.New(inode.TypeRegular)

	logical := uint64(d + p1)
	in, err := m.WriteBlock(in, logical, fill(3))
	if err != nil {
		t.Fatalf("WriteBlock(double indirect start): %v", err)
	}
	if in.Double == layout.NullBlock {
		t.Fatal("Double pointer still null at the double-indirect boundary")
	}
	got, err := m.ReadBlock(in, logical)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, fill(3)) {
		t.Fatal("double-indirect block content mismatch")
	}
}

func TestFileTooLargeBeyondTripleIndirect(t *testing.T) {
	m := newTestMap(t)
	in := inode.New(inode.TypeRegular)
	_, _, err := m.Resolve(in, uint64(d+p1+p2+p3))
	if err == nil {
		t.Fatal("Resolve beyond triple-indirect capacity: want FileTooLarge error, got nil")
	}
}

func TestResolveDirectBlockLeavesIndirectPointersUnchanged(t *testing.T) {
	m := newTestMap(t)
	in := inode.New(inode.TypeRegular)
	before := in
	// Resolving a direct-tier block on a fresh inode allocates only that
	// direct block; the single and double indirect pointers must stay as
	// they were.
	in2, _, err := m.Resolve(in, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if before.Single != in2.Single || before.Double != in2.Double {
		t.Fatal("Resolve mutated indirect pointers it should not have touched")
	}
}

func TestFreeAllReleasesDirectAndIndirectBlocks(t *testing.T) {
	m := newTestMap(t)
	// Global 0 is reserved (root's first data block in real use) and can
	// never be freed; take it here so the blocks under test land above 0
	// and FreeAll can actually release them.
	if _, err := m.alloc.Allocate(); err != nil {
		t.Fatalf("Allocate (reserving slot 0): %v", err)
	}

	in := inode.New(inode.TypeRegular)
	in, err := m.WriteBlock(in, 0, fill(1))
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	in, err = m.WriteBlock(in, uint64(d), fill(2))
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	direct0 := in.Direct[0]
	singleRoot := in.Single

	if err := m.FreeAll(in); err != nil {
		t.Fatalf("FreeAll: %v", err)
	}

	for _, g := range []uint32{direct0, singleRoot} {
		allocated, err := m.alloc.IsAllocated(int(g))
		if err != nil {
			t.Fatalf("IsAllocated: %v", err)
		}
		if allocated {
			t.Fatalf("block %d still allocated after FreeAll", g)
		}
	}
}
