package exfs

import (
	"fmt"
	"io"
	"strings"

	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
)

// Debug walks path component by component, writing one line per
// component to w describing its inode number, type, size, and full
// pointer layout. It never mutates the volume.
func (s *Store) Debug(path string, w io.Writer) error {
	log := s.newOpLog("debug").WithField("path", path)

	root, err := s.rootInode()
	if err != nil {
		return err
	}
	if err := debugLine(w, "/", layout.RootInode, root); err != nil {
		return err
	}

	cur := root
	built := ""
	for _, name := range splitPath(path) {
		num, found, err := s.dirs.Lookup(cur, name)
		if err != nil {
			return err
		}
		built += "/" + name
		if !found {
			fmt.Fprintf(w, "%s: not found\n", built)
			log.WithField("component", name).Warn("debug stopped: component not found")
			return nil
		}
		child, err := s.inodes.Read(num)
		if err != nil {
			return err
		}
		if err := debugLine(w, built, num, child); err != nil {
			return err
		}
		cur = child
	}
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func debugLine(w io.Writer, path string, num uint32, in inode.Inode) error {
	typeName := "free"
	switch in.Type {
	case inode.TypeRegular:
		typeName = "regular"
	case inode.TypeDirectory:
		typeName = "directory"
	}
	_, err := fmt.Fprintf(w, "%s: inode=%d type=%s size=%d direct=%v single=%s double=%s triple=%s\n",
		path, num, typeName, in.Size, in.Direct,
		ptrString(in.Single), ptrString(in.Double), ptrString(in.Triple))
	return err
}

func ptrString(p uint32) string {
	if p == layout.NullBlock {
		return "null"
	}
	return fmt.Sprintf("%d", p)
}
