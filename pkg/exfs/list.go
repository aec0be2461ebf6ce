package exfs

import (
	"strings"

	"github.com/sahrohit/exfs2/internal/inode"
)

// Entry describes one entry in a List result, resolved enough to tell
// files from directories without a further round trip. Path is the
// entry's full path relative to the directory List was called on (just
// the name for top-level entries, "sub/child" for nested ones).
type Entry struct {
	Path      string
	Name      string
	InodeNum  uint32
	IsDir     bool
	SizeBytes uint64
}

// List resolves path strictly and, if it names a directory, returns
// every entry reachable beneath it (excluding "." and ".." at every
// level) via a recursive walk; if it names a regular file, returns a
// single entry describing that file, per spec.md §4.7.
func (s *Store) List(path string) ([]Entry, error) {
	log := s.newOpLog("list")

	num, in, err := s.resolve(path)
	if err != nil {
		log.WithError(err).Warn("list failed to resolve path")
		return nil, err
	}

	if !in.IsDirectory() {
		return []Entry{{Path: baseName(path), Name: baseName(path), InodeNum: num, IsDir: false, SizeBytes: in.Size}}, nil
	}

	var out []Entry
	if err := s.listInto(in, "", &out); err != nil {
		return nil, err
	}
	log.WithField("count", len(out)).Debug("listed directory")
	return out, nil
}

// listInto appends every descendant of dirInode to out, recursing into
// child directories and prefixing each entry's Path with prefix.
func (s *Store) listInto(dirInode inode.Inode, prefix string, out *[]Entry) error {
	raw, err := s.dirs.List(dirInode)
	if err != nil {
		return err
	}
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child, err := s.inodes.Read(e.InodeNum)
		if err != nil {
			return err
		}
		entryPath := e.Name
		if prefix != "" {
			entryPath = prefix + "/" + e.Name
		}
		*out = append(*out, Entry{
			Path:      entryPath,
			Name:      e.Name,
			InodeNum:  e.InodeNum,
			IsDir:     child.IsDirectory(),
			SizeBytes: child.Size,
		})
		if child.IsDirectory() {
			if err := s.listInto(child, entryPath, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func baseName(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
