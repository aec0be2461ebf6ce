package directory

import (
	"fmt"
	"testing"

	"github.com/sahrohit/exfs2/internal/alloc"
	"github.com/sahrohit/exfs2/internal/blockmap"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/segment"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	segs := segment.New(segment.KindData, t.TempDir(), nil)
	a := alloc.New(segs, nil)
	if err := a.Open(); err != nil {
		t.Fatalf("alloc Open: %v", err)
	}
	blocks := blockmap.New(segs, a, nil)
	if err := blocks.Open(); err != nil {
		t.Fatalf("blockmap Open: %v", err)
	}
	return New(blocks, nil)
}

func TestAddLookupRoundTrip(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)

	dir, err := s.AddEntry(dir, "foo", 42)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	num, found, err := s.Lookup(dir, "foo")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found || num != 42 {
		t.Fatalf("Lookup(foo) = (%d, %v), want (42, true)", num, found)
	}
}

func TestAddDuplicateNameFails(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)
	dir, err := s.AddEntry(dir, "foo", 1)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if _, err := s.AddEntry(dir, "foo", 2); err == nil {
		t.Fatal("AddEntry of a duplicate name: want error, got nil")
	}
}

// TestSizeTracksLiveEntryCount covers spec.md §4.3/§4.5: Size is the
// entry count times the entry record size, not a block count, and
// moves on every add and remove regardless of whether a slot was
// reused or a new block was appended.
func TestSizeTracksLiveEntryCount(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)

	dir, err := s.AddEntry(dir, "a", 1)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if want := uint64(layout.DirectoryEntrySize); dir.Size != want {
		t.Fatalf("Size after one add = %d, want %d", dir.Size, want)
	}

	dir, err = s.AddEntry(dir, "b", 2)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if want := uint64(2 * layout.DirectoryEntrySize); dir.Size != want {
		t.Fatalf("Size after two adds = %d, want %d", dir.Size, want)
	}

	dir, err = s.RemoveEntry(dir, "a")
	if err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if want := uint64(layout.DirectoryEntrySize); dir.Size != want {
		t.Fatalf("Size after remove = %d, want %d", dir.Size, want)
	}

	for i := 0; i < layout.EntriesPerBlock+5; i++ {
		dir, err = s.AddEntry(dir, fmt.Sprintf("spill%03d", i), uint32(i+100))
		if err != nil {
			t.Fatalf("AddEntry spill#%d: %v", i, err)
		}
	}
	wantEntries := uint64(1 + layout.EntriesPerBlock + 5)
	if want := wantEntries * layout.DirectoryEntrySize; dir.Size != want {
		t.Fatalf("Size after spilling into a second block = %d, want %d (entry count, not block count)", dir.Size, want)
	}
}

func TestRemoveEntryThenLookupMisses(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)
	dir, err := s.AddEntry(dir, "foo", 1)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	dir, err = s.RemoveEntry(dir, "foo")
	if err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if _, found, err := s.Lookup(dir, "foo"); err != nil || found {
		t.Fatalf("Lookup after RemoveEntry = found=%v, err=%v; want false, nil", found, err)
	}
}

// TestSpillsIntoSecondBlock covers the "directory forced to spill into
// a second block" boundary case from spec.md §8.
func TestSpillsIntoSecondBlock(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)

	total := layout.EntriesPerBlock + 5
	for i := 0; i < total; i++ {
		var err error
		dir, err = s.AddEntry(dir, fmt.Sprintf("f%03d", i), uint32(i+1))
		if err != nil {
			t.Fatalf("AddEntry #%d: %v", i, err)
		}
	}
	nblocks, err := s.blockCount(dir)
	if err != nil {
		t.Fatalf("blockCount: %v", err)
	}
	if nblocks < 2 {
		t.Fatalf("directory with %d entries spans %d blocks, want >= 2", total, nblocks)
	}

	entries, err := s.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != total {
		t.Fatalf("List returned %d entries, want %d", len(entries), total)
	}
}

func TestNameUniquenessWithinDirectory(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("n%d", i%10)
		var err error
		dir, err = s.AddEntry(dir, name, uint32(i+1))
		if seen[name] {
			if err == nil {
				t.Fatalf("AddEntry(%q) duplicate #%d: want error, got nil", name, i)
			}
			continue
		}
		if err != nil {
			t.Fatalf("AddEntry(%q): %v", name, err)
		}
		seen[name] = true
	}
}

func TestIsEmptyIgnoresSelfEntries(t *testing.T) {
	s := newTestStore(t)
	dir := inode.New(inode.TypeDirectory)
	dir, err := s.AddEntry(dir, ".", 0)
	if err != nil {
		t.Fatalf("AddEntry(.): %v", err)
	}
	dir, err = s.AddEntry(dir, "..", 0)
	if err != nil {
		t.Fatalf("AddEntry(..): %v", err)
	}
	empty, err := s.IsEmpty(dir)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("IsEmpty with only self-entries = false, want true")
	}
	dir, err = s.AddEntry(dir, "child", 9)
	if err != nil {
		t.Fatalf("AddEntry(child): %v", err)
	}
	empty, err = s.IsEmpty(dir)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if empty {
		t.Fatal("IsEmpty after adding a real child = true, want false")
	}
}
