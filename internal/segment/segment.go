// Package segment implements ExFS2's segment store: the layer that maps
// (kind, segment index, slot index) triples onto bytes living in plain
// host files. Two pools share this code — "inode" segments and "data"
// segments — distinguished only by the directory they live in and the
// filename prefix they use.
//
// Segment files are created lazily, on first write, and are always
// exactly layout.SegmentSize bytes: a bitmap block (slot 0) followed by
// layout.SlotsPerSegment object slots. Nothing here interprets slot
// contents; that is internal/inode's and internal/blockmap's job.
package segment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Kind distinguishes the two parallel segment pools.
type Kind string

const (
	KindInode Kind = "inode"
	KindData  Kind = "data"
)

// Store owns the open segment files for one pool (inode or data) rooted
// at a directory. It lazily opens/creates segment files on demand and
// keeps them open for the lifetime of the Store.
type Store struct {
	kind    Kind
	dir     string
	log     *logrus.Entry
	mu      sync.Mutex
	files   map[int]*os.File
}

// New returns a Store for the given kind rooted at dir. dir must already
// exist; New does not create it (the caller, pkg/exfs, owns the
// top-level volume directory's lifecycle).
func New(kind Kind, dir string, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		kind:  kind,
		dir:   dir,
		log:   log.WithField("component", "segment").WithField("kind", string(kind)),
		files: make(map[int]*os.File),
	}
}

func (s *Store) segmentPath(seg int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%08d.seg", s.kind, seg))
}

// Discover scans dir for existing segment files of this kind and returns
// the set of segment indices already present on disk, in ascending
// order. Called once at start-up per spec.md §9 ("no globals, everything
// rescanned at start-up").
func (s *Store) Discover() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, exferr.NewStorageError(err, exferr.CodeIO, "reading segment directory").
			WithKind(string(s.kind))
	}
	var found []int
	prefix := string(s.kind) + "-"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var seg int
		if _, err := fmt.Sscanf(name, prefix+"%08d.seg", &seg); err == nil {
			found = append(found, seg)
		}
	}
	for i := 0; i < len(found); i++ {
		for j := i + 1; j < len(found); j++ {
			if found[j] < found[i] {
				found[i], found[j] = found[j], found[i]
			}
		}
	}
	s.log.WithField("segments", len(found)).Debug("discovered existing segments")
	return found, nil
}

// open returns the *os.File for segment seg, opening (and if needed
// creating + zero-extending to layout.SegmentSize) it on first use.
// Caller must hold s.mu.
func (s *Store) open(seg int, create bool) (*os.File, error) {
	if f, ok := s.files[seg]; ok {
		return f, nil
	}
	path := s.segmentPath(seg)
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exferr.NewStorageError(err, exferr.CodeNotFound, "segment file missing").
				WithKind(string(s.kind)).WithSegment(seg)
		}
		return nil, exferr.NewStorageError(err, exferr.CodeIO, "opening segment file").
			WithKind(string(s.kind)).WithSegment(seg)
	}
	if create {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, exferr.NewStorageError(err, exferr.CodeIO, "statting segment file").
				WithKind(string(s.kind)).WithSegment(seg)
		}
		if info.Size() < layout.SegmentSize {
			if err := f.Truncate(layout.SegmentSize); err != nil {
				f.Close()
				return nil, exferr.NewStorageError(err, exferr.CodeIO, "extending segment file").
					WithKind(string(s.kind)).WithSegment(seg)
			}
			s.log.WithField("segment", seg).Info("created new segment file")
		}
	}
	s.files[seg] = f
	return f, nil
}

// blockOffset returns the byte offset of slot idx (0 is the bitmap
// block) within its segment file.
func blockOffset(idx int) int64 {
	return int64(idx) * layout.BlockSize
}

// ReadBlock reads the full layout.BlockSize bytes at slot idx of segment
// seg. Returns a CodeNotFound StorageError if the segment file does not
// exist, and a CodeCorruption StorageError if the file exists but is
// shorter than expected (a truncated or foreign file).
func (s *Store) ReadBlock(seg, idx int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.open(seg, false)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, layout.BlockSize)
	n, err := f.ReadAt(buf, blockOffset(idx))
	if err != nil && err != io.EOF {
		return nil, exferr.NewStorageError(err, exferr.CodeIO, "reading block").
			WithKind(string(s.kind)).WithSegment(seg).WithSlot(idx)
	}
	if n < layout.BlockSize {
		return nil, exferr.NewStorageError(io.ErrUnexpectedEOF, exferr.CodeCorruption, "short read of block").
			WithKind(string(s.kind)).WithSegment(seg).WithSlot(idx).
			WithDetail("bytesRead", n)
	}
	return buf, nil
}

// WriteBlock writes data (which must be exactly layout.BlockSize bytes)
// to slot idx of segment seg, creating and zero-extending the segment
// file first if it does not already exist.
func (s *Store) WriteBlock(seg, idx int, data []byte) error {
	if len(data) != layout.BlockSize {
		return exferr.NewStorageError(nil, exferr.CodeInternal, "write block size mismatch").
			WithKind(string(s.kind)).WithSegment(seg).WithSlot(idx).
			WithDetail("got", len(data)).WithDetail("want", layout.BlockSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.open(seg, true)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, blockOffset(idx)); err != nil {
		return exferr.NewStorageError(err, exferr.CodeIO, "writing block").
			WithKind(string(s.kind)).WithSegment(seg).WithSlot(idx)
	}
	return nil
}

// ReadBitmap reads the bitmap block (slot 0) of segment seg.
func (s *Store) ReadBitmap(seg int) ([]byte, error) {
	return s.ReadBlock(seg, 0)
}

// WriteBitmap writes the bitmap block (slot 0) of segment seg.
func (s *Store) WriteBitmap(seg int, data []byte) error {
	return s.WriteBlock(seg, 0, data)
}

// Sync flushes every open segment file to stable storage. It runs only
// when called explicitly (through pkg/exfs.Store.Sync); no mutating
// operation calls it on its own.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for seg, f := range s.files {
		if err := f.Sync(); err != nil {
			return exferr.NewStorageError(err, exferr.CodeIO, "syncing segment file").
				WithKind(string(s.kind)).WithSegment(seg)
		}
	}
	return nil
}

// Close closes every open segment file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for seg, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = exferr.NewStorageError(err, exferr.CodeIO, "closing segment file").
				WithKind(string(s.kind)).WithSegment(seg)
		}
		delete(s.files, seg)
	}
	return firstErr
}
