package resolver

import (
	"testing"

	"github.com/sahrohit/exfs2/internal/alloc"
	"github.com/sahrohit/exfs2/internal/blockmap"
	"github.com/sahrohit/exfs2/internal/directory"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/segment"
)

// harness wires a full stack (inodes/blocks/dirs/resolver) over a fresh
// temp directory and initializes a root directory, mirroring what
// pkg/exfs.Store.ensureRoot does at a smaller scale.
type harness struct {
	inodes *inode.Table
	blocks *blockmap.Map
	dirs   *directory.Store
	res    *Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	inodeSegs := segment.New(segment.KindInode, t.TempDir(), nil)
	dataSegs := segment.New(segment.KindData, t.TempDir(), nil)
	inodeAlloc := alloc.New(inodeSegs, nil)
	dataAlloc := alloc.New(dataSegs, nil)
	if err := inodeAlloc.Open(); err != nil {
		t.Fatalf("inodeAlloc.Open: %v", err)
	}
	if err := dataAlloc.Open(); err != nil {
		t.Fatalf("dataAlloc.Open: %v", err)
	}

	inodes := inode.NewTable(inodeSegs, inodeAlloc, nil)
	blocks := blockmap.New(dataSegs, dataAlloc, nil)
	dirs := directory.New(blocks, nil)
	res := New(inodes, blocks, dirs, nil)

	rootNum, err := inodes.Allocate(inode.TypeDirectory)
	if err != nil {
		t.Fatalf("allocate root: %v", err)
	}
	if rootNum != layout.RootInode {
		t.Fatalf("root inode = %d, want %d", rootNum, layout.RootInode)
	}
	root, err := inodes.Read(rootNum)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	root, err = dirs.AddEntry(root, ".", layout.RootInode)
	if err != nil {
		t.Fatalf("add .: %v", err)
	}
	root, err = dirs.AddEntry(root, "..", layout.RootInode)
	if err != nil {
		t.Fatalf("add ..: %v", err)
	}
	if err := inodes.Write(rootNum, root); err != nil {
		t.Fatalf("write root: %v", err)
	}

	return &harness{inodes: inodes, blocks: blocks, dirs: dirs, res: res}
}

func TestResolveStrictNotFound(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.res.Resolve("/missing"); err == nil {
		t.Fatal("Resolve of a missing path: want error, got nil")
	}
}

func TestResolveParentCreatingMakesIntermediateDirs(t *testing.T) {
	h := newHarness(t)
	parentNum, parent, leaf, err := h.res.ResolveParentCreating("/docs/readme")
	if err != nil {
		t.Fatalf("ResolveParentCreating: %v", err)
	}
	if leaf != "readme" {
		t.Fatalf("leaf = %q, want %q", leaf, "readme")
	}
	if !parent.IsDirectory() {
		t.Fatal("auto-created parent is not a directory")
	}

	// The parent must now be findable by walking from root strictly.
	num, in, err := h.res.Resolve("/docs")
	if err != nil {
		t.Fatalf("Resolve(/docs): %v", err)
	}
	if num != parentNum || !in.IsDirectory() {
		t.Fatalf("Resolve(/docs) = (%d, dir=%v), want (%d, true)", num, in.IsDirectory(), parentNum)
	}
}

// TestParentLinkage is the (Parent linkage) property from spec.md §8:
// after traversing into any directory, ".." resolves to the immediate
// parent, and the root's own ".." resolves to itself.
func TestParentLinkage(t *testing.T) {
	h := newHarness(t)
	if _, _, _, err := h.res.ResolveParentCreating("/a/b/leaf"); err != nil {
		t.Fatalf("ResolveParentCreating: %v", err)
	}

	aNum, _, err := h.res.Resolve("/a")
	if err != nil {
		t.Fatalf("Resolve(/a): %v", err)
	}
	bNum, _, err := h.res.Resolve("/a/b")
	if err != nil {
		t.Fatalf("Resolve(/a/b): %v", err)
	}
	parentOfB, _, err := h.res.Resolve("/a/b/..")
	if err != nil {
		t.Fatalf("Resolve(/a/b/..): %v", err)
	}
	if parentOfB != aNum {
		t.Fatalf("/a/b/.. resolved to %d, want %d", parentOfB, aNum)
	}

	rootViaA, _, err := h.res.Resolve("/a/..")
	if err != nil {
		t.Fatalf("Resolve(/a/..): %v", err)
	}
	if rootViaA != layout.RootInode {
		t.Fatalf("/a/.. resolved to %d, want root (%d)", rootViaA, layout.RootInode)
	}

	rootSelfParent, _, err := h.res.Resolve("/..")
	if err != nil {
		t.Fatalf("Resolve(/..): %v", err)
	}
	if rootSelfParent != layout.RootInode {
		t.Fatalf("/.. resolved to %d, want root (%d)", rootSelfParent, layout.RootInode)
	}
	_ = bNum
}

func TestResolveFailsNotADirectoryOnIntermediateFile(t *testing.T) {
	h := newHarness(t)
	parentNum, parent, leaf, err := h.res.ResolveParent("/leaf")
	if err != nil {
		t.Fatalf("ResolveParent: %v", err)
	}
	fileNum, err := h.inodes.Allocate(inode.TypeRegular)
	if err != nil {
		t.Fatalf("allocate file: %v", err)
	}
	parent, err = h.dirs.AddEntry(parent, leaf, fileNum)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := h.inodes.Write(parentNum, parent); err != nil {
		t.Fatalf("write parent: %v", err)
	}

	if _, _, err := h.res.Resolve("/leaf/nested"); err == nil {
		t.Fatal("Resolve through a regular-file component: want error, got nil")
	}
}
