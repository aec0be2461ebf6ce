// Package exfs is the external façade for ExFS2: a persistent,
// userspace, inode-based hierarchical file store built on segmented
// host files. Store is the handle applications open a volume through;
// every operation goes through its List/Add/Extract/Remove/Debug
// methods.
package exfs

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/alloc"
	"github.com/sahrohit/exfs2/internal/blockmap"
	"github.com/sahrohit/exfs2/internal/directory"
	"github.com/sahrohit/exfs2/internal/fsfree"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/resolver"
	"github.com/sahrohit/exfs2/internal/segment"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

const (
	inodeSubdir = "inodes"
	dataSubdir  = "data"
	lockName    = ".exfs2.lock"
)

// Config controls how a Store is opened. Use Open with zero or more
// Options to build one; the zero Config is never constructed directly
// by callers.
type Config struct {
	dir     string
	logger  *logrus.Logger
	noLock  bool
}

// Option configures a Store at Open time.
type Option func(*Config)

// WithLogger sets the logrus.Logger a Store reports operations through.
// If not given, Store uses logrus.StandardLogger().
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithoutLock disables the advisory flock normally taken on the volume
// directory. Intended for tests that open the same fixture from
// multiple Store values within one process.
func WithoutLock() Option {
	return func(c *Config) { c.noLock = true }
}

// Store is a handle to one open ExFS2 volume rooted at a directory on
// the host filesystem.
type Store struct {
	cfg Config
	log *logrus.Entry
	id  string

	lockFile *os.File

	inodeSegs *segment.Store
	dataSegs  *segment.Store
	inodeAll  *alloc.Allocator
	dataAll   *alloc.Allocator
	inodes    *inode.Table
	blocks    *blockmap.Map
	dirs      *directory.Store
	paths     *resolver.Resolver
	freer     *fsfree.Freer
}

// Open opens (creating if necessary) the ExFS2 volume rooted at dir.
// dir is created, along with its inodes/ and data/ subdirectories, if it
// does not already exist. On an existing volume, every segment already
// present is rescanned — no allocator state is persisted between runs
// beyond what is recoverable from the bitmap blocks themselves.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := Config{dir: dir}
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opID := uuid.NewString()
	log := logger.WithField("op", "open").WithField("opID", opID).WithField("volume", dir)

	for _, sub := range []string{"", inodeSubdir, dataSubdir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, exferr.NewStorageError(err, exferr.CodeIO, "creating volume directory").
				WithDetail("path", filepath.Join(dir, sub))
		}
	}

	s := &Store{cfg: cfg, log: log, id: opID}

	if !cfg.noLock {
		lf, err := acquireLock(filepath.Join(dir, lockName))
		if err != nil {
			return nil, err
		}
		s.lockFile = lf
	}

	s.inodeSegs = segment.New(segment.KindInode, filepath.Join(dir, inodeSubdir), log)
	s.dataSegs = segment.New(segment.KindData, filepath.Join(dir, dataSubdir), log)
	s.inodeAll = alloc.New(s.inodeSegs, log)
	s.dataAll = alloc.New(s.dataSegs, log)
	s.inodes = inode.NewTable(s.inodeSegs, s.inodeAll, log)
	s.blocks = blockmap.New(s.dataSegs, s.dataAll, log)
	s.dirs = directory.New(s.blocks, log)
	s.paths = resolver.New(s.inodes, s.blocks, s.dirs, log)
	s.freer = fsfree.New(s.inodes, s.blocks, s.dirs, log)

	if err := s.inodes.Open(); err != nil {
		return nil, err
	}
	if err := s.blocks.Open(); err != nil {
		return nil, err
	}

	if err := s.ensureRoot(); err != nil {
		return nil, err
	}

	log.Info("volume opened")
	return s, nil
}

// ensureRoot allocates and initializes the root directory inode the
// first time a volume is opened. Subsequent opens find it already
// present via the bitmap rescan and leave it untouched.
func (s *Store) ensureRoot() error {
	allocated, err := s.inodeAll.IsAllocated(int(layout.RootInode))
	if err != nil {
		return err
	}
	if allocated {
		return nil
	}
	got, err := s.inodeAll.Allocate()
	if err != nil {
		return err
	}
	if uint32(got) != layout.RootInode {
		return exferr.NewAllocError(nil, exferr.CodeInternal, "root inode did not receive the reserved number").
			WithGlobal(got)
	}
	root := inode.New(inode.TypeDirectory)
	if err := s.inodes.Write(layout.RootInode, root); err != nil {
		return err
	}
	root, err = s.dirs.AddEntry(root, ".", layout.RootInode)
	if err != nil {
		return err
	}
	root, err = s.dirs.AddEntry(root, "..", layout.RootInode)
	if err != nil {
		return err
	}
	if err := s.inodes.Write(layout.RootInode, root); err != nil {
		return err
	}
	s.log.Info("initialized root directory")
	return nil
}

// Sync flushes every open segment file to stable storage.
func (s *Store) Sync() error {
	if err := s.inodeSegs.Sync(); err != nil {
		return err
	}
	return s.dataSegs.Sync()
}

// Close closes the volume's open segment files and releases its
// advisory lock. It does not call Sync first.
func (s *Store) Close() error {
	var firstErr error
	if err := s.inodeSegs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.dataSegs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.lockFile != nil {
		if err := releaseLock(s.lockFile); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.log.Info("volume closed")
	return firstErr
}

// newOpLog returns a per-call logger entry carrying a fresh correlation
// ID, the way every exported Store method should start.
func (s *Store) newOpLog(op string) *logrus.Entry {
	return s.log.WithField("op", op).WithField("opID", uuid.NewString())
}

func (s *Store) rootInode() (inode.Inode, error) {
	return s.inodes.Read(layout.RootInode)
}

// resolve resolves path against the root, treating "" and "/" as the
// root directory itself.
func (s *Store) resolve(path string) (uint32, inode.Inode, error) {
	trimmed := filepath.ToSlash(path)
	for trimmed == "//" {
		trimmed = "/"
	}
	if trimmed == "" || trimmed == "/" || trimmed == "." {
		in, err := s.rootInode()
		return layout.RootInode, in, err
	}
	return s.paths.Resolve(path)
}
