// Package inode implements ExFS2's inode table: fixed-layout inode
// records stored one per object slot of the inode segment pool, and the
// allocate/read/write/free operations over them (spec.md §4.3).
package inode

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/sahrohit/exfs2/internal/alloc"
	"github.com/sahrohit/exfs2/internal/layout"
	"github.com/sahrohit/exfs2/internal/segment"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

// Type is an inode's object kind.
type Type uint32

const (
	TypeFree      Type = 0
	TypeRegular   Type = 1
	TypeDirectory Type = 2
)

// Inode is the in-memory form of one fixed inode record. On disk it is
// little-endian and zero-padded to layout.BlockSize.
type Inode struct {
	Type   Type
	Size   uint64
	Direct [layout.DirectPointers]uint32
	Single uint32
	Double uint32
	Triple uint32
}

// New returns a zero-size inode of the given type with every block
// pointer set to layout.NullBlock (not 0 — 0 is a legitimate block
// number).
func New(t Type) Inode {
	in := Inode{Type: t}
	for i := range in.Direct {
		in.Direct[i] = layout.NullBlock
	}
	in.Single = layout.NullBlock
	in.Double = layout.NullBlock
	in.Triple = layout.NullBlock
	return in
}

// recordSize is the number of bytes the fixed fields actually occupy;
// the rest of the layout.BlockSize slot is zero padding.
const recordSize = 4 + 8 + layout.DirectPointers*4 + 4 + 4 + 4

// Marshal encodes in into a freshly allocated layout.BlockSize buffer.
func (in Inode) Marshal() []byte {
	buf := make([]byte, layout.BlockSize)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(in.Type))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], in.Size)
	off += 8
	for _, d := range in.Direct {
		binary.LittleEndian.PutUint32(buf[off:], d)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], in.Single)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], in.Double)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], in.Triple)
	return buf
}

// Unmarshal decodes an inode record from a layout.BlockSize buffer.
func Unmarshal(buf []byte) (Inode, error) {
	if len(buf) < recordSize {
		return Inode{}, exferr.NewStorageError(nil, exferr.CodeCorruption, "inode record too short").
			WithKind("inode").WithDetail("bytesRead", len(buf))
	}
	var in Inode
	off := 0
	in.Type = Type(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	in.Size = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	for i := range in.Direct {
		in.Direct[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	in.Single = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	in.Double = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	in.Triple = binary.LittleEndian.Uint32(buf[off:])
	return in, nil
}

// IsDirectory reports whether in is a directory inode.
func (in Inode) IsDirectory() bool { return in.Type == TypeDirectory }

// IsRegular reports whether in is a regular-file inode.
func (in Inode) IsRegular() bool { return in.Type == TypeRegular }

// IsFree reports whether in marks a free (unused) inode record.
func (in Inode) IsFree() bool { return in.Type == TypeFree }

// Table is the inode pool: allocation plus the serialized record store.
type Table struct {
	segs  *segment.Store
	alloc *alloc.Allocator
	log   *logrus.Entry
}

// NewTable creates a Table over segs, allocating global inode numbers
// through allocator.
func NewTable(segs *segment.Store, allocator *alloc.Allocator, log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Table{segs: segs, alloc: allocator, log: log.WithField("component", "inode")}
}

// Open rescans the backing segment store, per spec.md §9.
func (t *Table) Open() error {
	return t.alloc.Open()
}

// Read loads the inode record for global inode number num.
func (t *Table) Read(num uint32) (Inode, error) {
	seg, slot := alloc.SlotCoords(int(num))
	buf, err := t.segs.ReadBlock(seg, slot)
	if err != nil {
		return Inode{}, err
	}
	return Unmarshal(buf)
}

// Write persists in as the record for global inode number num.
func (t *Table) Write(num uint32, in Inode) error {
	seg, slot := alloc.SlotCoords(int(num))
	return t.segs.WriteBlock(seg, slot, in.Marshal())
}

// Allocate reserves a fresh inode number, initializes it as type t, and
// persists the initial record.
func (t *Table) Allocate(typ Type) (uint32, error) {
	global, err := t.alloc.Allocate()
	if err != nil {
		return 0, err
	}
	num := uint32(global)
	in := New(typ)
	seg, slot := alloc.SlotCoords(global)
	if err := t.segs.WriteBlock(seg, slot, in.Marshal()); err != nil {
		_ = t.alloc.Free(global)
		return 0, err
	}
	t.log.WithField("inode", num).WithField("type", typ).Debug("allocated inode")
	return num, nil
}

// Free marks inode num's record as free (type TypeFree, every pointer
// layout.NullBlock)
// and releases its slot back to the allocator. Freeing is idempotent.
func (t *Table) Free(num uint32) error {
	seg, slot := alloc.SlotCoords(int(num))
	if err := t.segs.WriteBlock(seg, slot, New(TypeFree).Marshal()); err != nil {
		return err
	}
	if err := t.alloc.Free(int(num)); err != nil {
		return err
	}
	t.log.WithField("inode", num).Debug("freed inode")
	return nil
}
