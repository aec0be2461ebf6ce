package exfs

import (
	"path/filepath"
	"strings"

	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// isRootPath reports whether path names the volume root itself, after
// collapsing repeated separators.
func isRootPath(path string) bool {
	trimmed := strings.Trim(filepath.ToSlash(path), "/")
	return trimmed == "" || trimmed == "."
}

// Remove deletes the file or directory subtree at path. It refuses to
// remove the root directory. The directory entry is unlinked from the
// parent before the target's subtree is recursively freed, per
// spec.md §4.7.
func (s *Store) Remove(path string) error {
	log := s.newOpLog("remove").WithField("path", path)

	if isRootPath(path) {
		return exferr.NewPathError(nil, exferr.CodeInvalidName, "cannot remove root").
			WithPath(path)
	}

	parentNum, parent, leaf, err := s.paths.ResolveParent(path)
	if err != nil {
		log.WithError(err).Warn("remove failed to resolve parent")
		return err
	}

	childNum, found, err := s.dirs.Lookup(parent, leaf)
	if err != nil {
		return err
	}
	if !found {
		return exferr.NewPathError(nil, exferr.CodeNotFound, "path not found").
			WithPath(path).WithComponent(leaf)
	}
	if childNum == layout.RootInode {
		return exferr.NewPathError(nil, exferr.CodeInvalidName, "cannot remove root").
			WithPath(path)
	}

	newParent, err := s.dirs.RemoveEntry(parent, leaf)
	if err != nil {
		return err
	}
	if err := s.inodes.Write(parentNum, newParent); err != nil {
		return err
	}

	if err := s.freer.FreeSubtree(childNum); err != nil {
		log.WithError(err).WithField("inode", childNum).Warn("remove left orphaned blocks after unlink")
		return err
	}

	log.WithField("inode", childNum).Info("removed path")
	return nil
}
