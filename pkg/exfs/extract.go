package exfs

import (
	"io"

	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Extract writes the bytes of the regular file at path to w. It fails
// with exferr.CodeIsADirectory if path names a directory, and with
// exferr.CodeCorruption if the block map reports a hole before size
// bytes have been emitted (a corrupted file cannot legally have a gap).
func (s *Store) Extract(path string, w io.Writer) error {
	log := s.newOpLog("extract").WithField("path", path)

	_, in, err := s.paths.Resolve(path)
	if err != nil {
		log.WithError(err).Warn("extract failed to resolve path")
		return err
	}
	if in.IsDirectory() {
		return exferr.NewPathError(nil, exferr.CodeIsADirectory, "cannot extract a directory").
			WithPath(path)
	}

	remaining := in.Size
	nblocks := (in.Size + layout.BlockSize - 1) / layout.BlockSize
	for b := uint64(0); b < nblocks; b++ {
		phys, err := s.blocks.ReadPhysical(in, b)
		if err != nil {
			return err
		}
		if phys == layout.NullBlock {
			return exferr.NewStorageError(nil, exferr.CodeCorruption, "missing data block before end of file").
				WithDetail("path", path).WithDetail("logical", b)
		}
		buf, err := s.blocks.ReadBlock(in, b)
		if err != nil {
			return err
		}
		n := uint64(layout.BlockSize)
		if remaining < n {
			n = remaining
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return exferr.NewStorageError(err, exferr.CodeIO, "writing extracted bytes")
		}
		remaining -= n
	}
	log.WithField("bytes", in.Size).Debug("extracted file")
	return nil
}
