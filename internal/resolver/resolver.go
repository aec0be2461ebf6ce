// Package resolver walks absolute ExFS2 paths to the inode they name,
// in either strict mode (fail on a missing or wrong-type component) or
// create-missing mode (auto-create intermediate directories), per
// spec.md §4.6.
package resolver

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/blockmap"
	"github.com/sahrohit/exfs2/internal/directory"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Resolver resolves paths against the inode table, block map and
// directory store of one open volume.
type Resolver struct {
	inodes *inode.Table
	blocks *blockmap.Map
	dirs   *directory.Store
	log    *logrus.Entry
}

// New creates a Resolver over the given component stores.
func New(inodes *inode.Table, blocks *blockmap.Map, dirs *directory.Store, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{inodes: inodes, blocks: blocks, dirs: dirs, log: log.WithField("component", "resolver")}
}

// split breaks an ExFS2 path into its non-empty components. Leading,
// trailing and repeated "/" are all tolerated.
func split(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return exferr.NewPathError(nil, exferr.CodeInvalidName, "reserved or empty name").
			WithComponent(name)
	}
	if len(name) > layout.MaxNameLength {
		return exferr.NewPathError(nil, exferr.CodeInvalidName, "name exceeds maximum length").
			WithComponent(name)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, 0) {
		return exferr.NewPathError(nil, exferr.CodeInvalidName, "name contains a reserved character").
			WithComponent(name)
	}
	return nil
}

// step looks up name within dirNum/dirInode, returning its inode number
// and record.
func (r *Resolver) step(dirNum uint32, dirInode inode.Inode, name string) (uint32, inode.Inode, error) {
	num, found, err := r.dirs.Lookup(dirInode, name)
	if err != nil {
		return 0, inode.Inode{}, err
	}
	if !found {
		return 0, inode.Inode{}, exferr.NewPathError(nil, exferr.CodeNotFound, "path component not found").
			WithComponent(name)
	}
	child, err := r.inodes.Read(num)
	if err != nil {
		return 0, inode.Inode{}, err
	}
	return num, child, nil
}

// Resolve walks path strictly from the root and returns the inode
// number and record it names. Fails with CodeNotFound if any component
// is missing, or CodeNotADirectory if a non-final component is not a
// directory.
func (r *Resolver) Resolve(path string) (uint32, inode.Inode, error) {
	curNum := layout.RootInode
	cur, err := r.inodes.Read(curNum)
	if err != nil {
		return 0, inode.Inode{}, err
	}
	for _, name := range split(path) {
		if !cur.IsDirectory() {
			return 0, inode.Inode{}, exferr.NewPathError(nil, exferr.CodeNotADirectory, "path component is not a directory").
				WithComponent(name)
		}
		curNum, cur, err = r.step(curNum, cur, name)
		if err != nil {
			return 0, inode.Inode{}, withPath(err, path)
		}
	}
	return curNum, cur, nil
}

// withPath attaches path to err if err carries a *exferr.PathError,
// returning err unchanged otherwise.
func withPath(err error, path string) error {
	if pe, ok := exferr.AsPathError(err); ok {
		return pe.WithPath(path)
	}
	return err
}

// ResolveParent walks all but the last component of path strictly
// (failing NotFound/NotADirectory as Resolve does), and returns the
// parent directory's inode number and record plus the final component's
// name, without resolving the final component itself. The caller (an
// add/remove operation) decides what to do with the leaf name.
func (r *Resolver) ResolveParent(path string) (uint32, inode.Inode, string, error) {
	comps := split(path)
	if len(comps) == 0 {
		return 0, inode.Inode{}, "", exferr.NewPathError(nil, exferr.CodeInvalidName, "empty path").
			WithPath(path)
	}
	leaf := comps[len(comps)-1]
	if err := validateName(leaf); err != nil {
		return 0, inode.Inode{}, "", err
	}

	curNum := layout.RootInode
	cur, err := r.inodes.Read(curNum)
	if err != nil {
		return 0, inode.Inode{}, "", err
	}
	for _, name := range comps[:len(comps)-1] {
		if !cur.IsDirectory() {
			return 0, inode.Inode{}, "", exferr.NewPathError(nil, exferr.CodeNotADirectory, "path component is not a directory").
				WithComponent(name).WithPath(path)
		}
		curNum, cur, err = r.step(curNum, cur, name)
		if err != nil {
			return 0, inode.Inode{}, "", withPath(err, path)
		}
	}
	if !cur.IsDirectory() {
		return 0, inode.Inode{}, "", exferr.NewPathError(nil, exferr.CodeNotADirectory, "parent is not a directory").
			WithPath(path)
	}
	return curNum, cur, leaf, nil
}

// ResolveParentCreating is like ResolveParent, but auto-creates any
// missing intermediate directory instead of failing NotFound. A
// non-final component that exists but is not a directory still fails
// with CodeNotADirectory.
func (r *Resolver) ResolveParentCreating(path string) (uint32, inode.Inode, string, error) {
	comps := split(path)
	if len(comps) == 0 {
		return 0, inode.Inode{}, "", exferr.NewPathError(nil, exferr.CodeInvalidName, "empty path").
			WithPath(path)
	}
	leaf := comps[len(comps)-1]
	if err := validateName(leaf); err != nil {
		return 0, inode.Inode{}, "", err
	}

	curNum := layout.RootInode
	cur, err := r.inodes.Read(curNum)
	if err != nil {
		return 0, inode.Inode{}, "", err
	}
	for _, name := range comps[:len(comps)-1] {
		if !cur.IsDirectory() {
			return 0, inode.Inode{}, "", exferr.NewPathError(nil, exferr.CodeNotADirectory, "path component is not a directory").
				WithComponent(name).WithPath(path)
		}
		num, found, err := r.dirs.Lookup(cur, name)
		if err != nil {
			return 0, inode.Inode{}, "", err
		}
		if !found {
			num, err = r.mkdirIn(curNum, cur, name)
			if err != nil {
				return 0, inode.Inode{}, "", err
			}
			cur, err = r.inodes.Read(num)
			if err != nil {
				return 0, inode.Inode{}, "", err
			}
			curNum = num
			continue
		}
		child, err := r.inodes.Read(num)
		if err != nil {
			return 0, inode.Inode{}, "", err
		}
		curNum, cur = num, child
	}
	if !cur.IsDirectory() {
		return 0, inode.Inode{}, "", exferr.NewPathError(nil, exferr.CodeNotADirectory, "parent is not a directory").
			WithPath(path)
	}
	return curNum, cur, leaf, nil
}

// mkdirIn creates a new, empty directory named name inside parentNum
// (whose current record is parent), links it in, and returns its new
// inode number.
func (r *Resolver) mkdirIn(parentNum uint32, parent inode.Inode, name string) (uint32, error) {
	childNum, err := r.inodes.Allocate(inode.TypeDirectory)
	if err != nil {
		return 0, err
	}
	child, err := r.inodes.Read(childNum)
	if err != nil {
		return 0, err
	}
	child, err = r.dirs.AddEntry(child, ".", childNum)
	if err != nil {
		return 0, err
	}
	child, err = r.dirs.AddEntry(child, "..", parentNum)
	if err != nil {
		return 0, err
	}
	if err := r.inodes.Write(childNum, child); err != nil {
		return 0, err
	}
	newParent, err := r.dirs.AddEntry(parent, name, childNum)
	if err != nil {
		_ = r.blocks.FreeAll(child)
		_ = r.inodes.Free(childNum)
		return 0, err
	}
	if err := r.inodes.Write(parentNum, newParent); err != nil {
		return 0, err
	}
	r.log.WithField("name", name).WithField("inode", childNum).Debug("auto-created intermediate directory")
	return childNum, nil
}
