package exfs

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Add ingests r (a byte stream of unknown-ahead-of-time but bounded
// length) as a new regular file at path, creating any missing
// intermediate directory along the way. It fails with
// exferr.CodeAlreadyExists if a file or directory already occupies
// path, per spec.md §4.7. On any failure after the inode has been
// allocated, the new inode and every data block it owns are released
// before the error is returned; intermediate directories created along
// the way are kept.
func (s *Store) Add(path string, r io.Reader) error {
	log := s.newOpLog("add").WithField("path", path)

	parentNum, parent, leaf, err := s.paths.ResolveParentCreating(path)
	if err != nil {
		log.WithError(err).Warn("add failed to resolve parent")
		return err
	}

	if _, found, err := s.dirs.Lookup(parent, leaf); err != nil {
		return err
	} else if found {
		log.Warn("add target already exists")
		return exferr.NewPathError(nil, exferr.CodeAlreadyExists, "target already exists").
			WithPath(path).WithComponent(leaf)
	}

	childNum, err := s.inodes.Allocate(inode.TypeRegular)
	if err != nil {
		log.WithError(err).Warn("add failed to allocate inode")
		return err
	}

	if err := s.writeContent(childNum, r); err != nil {
		s.abandonAdd(childNum, log)
		return err
	}

	newParent, err := s.dirs.AddEntry(parent, leaf, childNum)
	if err != nil {
		s.abandonAdd(childNum, log)
		return err
	}
	if err := s.inodes.Write(parentNum, newParent); err != nil {
		s.abandonAdd(childNum, log)
		return err
	}

	log.WithField("inode", childNum).Info("added file")
	return nil
}

// writeContent streams r into child's inode in layout.BlockSize chunks,
// writing the (possibly partial, zero-padded) final chunk and persisting
// the inode's growing size after every chunk so a reader racing a crash
// mid-stream never sees a size larger than what is actually durable.
func (s *Store) writeContent(childNum uint32, r io.Reader) error {
	child, err := s.inodes.Read(childNum)
	if err != nil {
		return err
	}

	buf := make([]byte, layout.BlockSize)
	var logical uint64
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf
			if n < layout.BlockSize {
				chunk = make([]byte, layout.BlockSize)
				copy(chunk, buf[:n])
			}
			child, err = s.blocks.WriteBlock(child, logical, chunk)
			if err != nil {
				return err
			}
			child.Size += uint64(n)
			if err := s.inodes.Write(childNum, child); err != nil {
				return err
			}
			logical++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return exferr.NewStorageError(readErr, exferr.CodeIO, "reading ingest source")
		}
	}
	return nil
}

// abandonAdd releases an inode (and whatever data blocks it already
// owns) allocated partway through a failed Add.
func (s *Store) abandonAdd(childNum uint32, log *logrus.Entry) {
	child, err := s.inodes.Read(childNum)
	if err != nil {
		log.WithError(err).WithField("inode", childNum).Warn("could not read inode to unwind failed add")
		return
	}
	if err := s.blocks.FreeAll(child); err != nil {
		log.WithError(err).WithField("inode", childNum).Warn("could not free blocks unwinding failed add")
	}
	if err := s.inodes.Free(childNum); err != nil {
		log.WithError(err).WithField("inode", childNum).Warn("could not free inode unwinding failed add")
	}
}
