// Package directory implements ExFS2's directory data blocks: fixed
// 260-byte entries (a uint32 inode number plus a 256-byte
// null-terminated name), 15 per block, and the lookup/add/remove
// operations over a directory inode's blocks (spec.md §4.5).
package directory

import (
	"bytes"
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/blockmap"
	"github.com/sahrohit/exfs2/internal/inode"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Entry is one directory entry: a name mapped to an inode number.
type Entry struct {
	InodeNum uint32
	Name     string
}

// Store reads and mutates directory data blocks through a blockmap.Map.
type Store struct {
	blocks *blockmap.Map
	log    *logrus.Entry
}

// New creates a directory Store over blocks.
func New(blocks *blockmap.Map, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{blocks: blocks, log: log.WithField("component", "directory")}
}

func encodeEntry(e Entry) ([]byte, error) {
	if len(e.Name) > layout.MaxNameLength {
		return nil, exferr.NewPathError(nil, exferr.CodeInvalidName, "name too long").
			WithComponent(e.Name)
	}
	buf := make([]byte, layout.DirectoryEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.InodeNum)
	copy(buf[4:], e.Name)
	// remaining bytes of the name field are already zero (NUL), including
	// the terminator immediately after the name.
	return buf, nil
}

func decodeEntry(buf []byte) (Entry, bool) {
	num := binary.LittleEndian.Uint32(buf[0:4])
	nameField := buf[4:]
	nul := bytes.IndexByte(nameField, 0)
	if nul < 0 {
		nul = len(nameField)
	}
	name := string(nameField[:nul])
	if num == 0 && name == "" {
		return Entry{}, false
	}
	return Entry{InodeNum: num, Name: name}, true
}

// entriesPerBlock is layout.EntriesPerBlock, aliased locally for
// readability.
const entriesPerBlock = layout.EntriesPerBlock

// blockCount returns how many directory blocks dirInode currently owns.
// Directory blocks are always appended in logical order and never
// reclaimed, so the first hole in the direct chain marks the end; Size
// tracks live entries, not blocks, so it cannot be used here.
func (s *Store) blockCount(dirInode inode.Inode) (uint64, error) {
	var b uint64
	for {
		phys, err := s.blocks.ReadPhysical(dirInode, b)
		if err != nil {
			return 0, err
		}
		if phys == layout.NullBlock {
			return b, nil
		}
		b++
	}
}

// List returns every entry in the directory, in on-disk block/slot
// order, skipping empty (zeroed) slots.
func (s *Store) List(dirInode inode.Inode) ([]Entry, error) {
	var out []Entry
	nblocks, err := s.blockCount(dirInode)
	if err != nil {
		return nil, err
	}
	for b := uint64(0); b < nblocks; b++ {
		buf, err := s.blocks.ReadBlock(dirInode, b)
		if err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerBlock; i++ {
			off := i * layout.DirectoryEntrySize
			if e, ok := decodeEntry(buf[off : off+layout.DirectoryEntrySize]); ok {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// Lookup finds name within the directory and returns its inode number.
func (s *Store) Lookup(dirInode inode.Inode, name string) (uint32, bool, error) {
	entries, err := s.List(dirInode)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.InodeNum, true, nil
		}
	}
	return 0, false, nil
}

// AddEntry inserts (name -> childInode) into the directory, writing to
// the first free slot found, appending a fresh block if every existing
// block is full. Size is bumped by one entry record on every call,
// whether or not a new block was needed. Returns the updated directory
// inode for the caller to persist. Fails with CodeAlreadyExists if name
// is already present.
func (s *Store) AddEntry(dirInode inode.Inode, name string, childInode uint32) (inode.Inode, error) {
	encoded, err := encodeEntry(Entry{InodeNum: childInode, Name: name})
	if err != nil {
		return dirInode, err
	}
	if _, found, err := s.Lookup(dirInode, name); err != nil {
		return dirInode, err
	} else if found {
		return dirInode, exferr.NewPathError(nil, exferr.CodeAlreadyExists, "name already exists in directory").
			WithComponent(name)
	}

	nblocks, err := s.blockCount(dirInode)
	if err != nil {
		return dirInode, err
	}
	for b := uint64(0); b < nblocks; b++ {
		buf, err := s.blocks.ReadBlock(dirInode, b)
		if err != nil {
			return dirInode, err
		}
		freeSlot := -1
		for i := 0; i < entriesPerBlock; i++ {
			off := i * layout.DirectoryEntrySize
			slice := buf[off : off+layout.DirectoryEntrySize]
			if e, ok := decodeEntry(slice); ok {
				if e.Name == name {
					return dirInode, exferr.NewPathError(nil, exferr.CodeAlreadyExists, "name already exists in directory").
						WithComponent(name)
				}
				continue
			}
			if freeSlot < 0 {
				freeSlot = i
			}
		}
		if freeSlot >= 0 {
			off := freeSlot * layout.DirectoryEntrySize
			copy(buf[off:off+layout.DirectoryEntrySize], encoded)
			newInode, err := s.blocks.WriteBlock(dirInode, b, buf)
			if err != nil {
				return dirInode, err
			}
			newInode.Size += layout.DirectoryEntrySize
			s.log.WithField("name", name).WithField("inode", childInode).Debug("added directory entry")
			return newInode, nil
		}
	}

	// No free slot in any existing block: append a fresh one.
	buf := make([]byte, layout.BlockSize)
	copy(buf[0:layout.DirectoryEntrySize], encoded)
	newInode, err := s.blocks.WriteBlock(dirInode, nblocks, buf)
	if err != nil {
		return dirInode, err
	}
	newInode.Size += layout.DirectoryEntrySize
	s.log.WithField("name", name).WithField("inode", childInode).Debug("added directory entry in new block")
	return newInode, nil
}

// RemoveEntry deletes name from the directory by zeroing its slot and
// decrementing Size by one entry record. The block itself is not
// reclaimed even if it becomes fully empty; empty directory blocks stay
// in place until the whole directory is freed.
func (s *Store) RemoveEntry(dirInode inode.Inode, name string) (inode.Inode, error) {
	nblocks, err := s.blockCount(dirInode)
	if err != nil {
		return dirInode, err
	}
	for b := uint64(0); b < nblocks; b++ {
		buf, err := s.blocks.ReadBlock(dirInode, b)
		if err != nil {
			return dirInode, err
		}
		for i := 0; i < entriesPerBlock; i++ {
			off := i * layout.DirectoryEntrySize
			slice := buf[off : off+layout.DirectoryEntrySize]
			e, ok := decodeEntry(slice)
			if !ok || e.Name != name {
				continue
			}
			for k := range slice {
				slice[k] = 0
			}
			newInode, err := s.blocks.WriteBlock(dirInode, b, buf)
			if err != nil {
				return dirInode, err
			}
			newInode.Size -= layout.DirectoryEntrySize
			s.log.WithField("name", name).Debug("removed directory entry")
			return newInode, nil
		}
	}
	return dirInode, exferr.NewPathError(nil, exferr.CodeNotFound, "name not found in directory").
		WithComponent(name)
}

// IsEmpty reports whether dirInode has no entries besides "." and "..".
func (s *Store) IsEmpty(dirInode inode.Inode) (bool, error) {
	entries, err := s.List(dirInode)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			return false, nil
		}
	}
	return true, nil
}
