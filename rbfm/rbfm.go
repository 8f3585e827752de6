// Package rbfm implements the record-based file manager: slotted-page
// records with tombstones, in-place and out-of-place updates, a sidecar
// metafile persisting a per-page free-space vector, page reorganization,
// and a predicate/projection scan.
package rbfm

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/malzahar-db/sgbd/pfm"
)

// AttrType enumerates the three supported attribute types.
type AttrType int

const (
	TypeInt AttrType = iota
	TypeReal
	TypeVarChar
)

// Attribute describes one column of a record descriptor.
type Attribute struct {
	Name      string
	Type      AttrType
	MaxLength uint32 // bound on character count for VarChar; unused otherwise
}

// RID identifies a record by page number and one-based slot number.
type RID struct {
	Page uint32
	Slot uint32
}

// CompOp enumerates the comparison operators a Scan predicate may use.
type CompOp int

const (
	EQ CompOp = iota
	LT
	GT
	LE
	GE
	NE
	NoOp
)

// Errors surfaced by this package. Kinds follow spec.md §7's taxonomy:
// I/O errors are returned as-is from pfm; the rest are named here.
var (
	ErrDeleted       = errors.New("rbfm: record deleted")
	ErrRecordTooBig  = errors.New("rbfm: record too large for a page")
	ErrSlotRange     = errors.New("rbfm: slot number out of range")
	ErrUnknownAttr   = errors.New("rbfm: unknown attribute")
	ErrMetaInconsist = errors.New("rbfm: metafile inconsistent with data file")
)

const (
	// footerSize is the 6-byte page footer: reorgCount, slotCount,
	// freeSpaceOffset, each a uint16.
	footerSize = 6
	// slotSize is the 4-byte slot entry: beginAddr, endAddr, each an
	// int16.
	slotSize = 4
	// minRecordLength is the smallest reserved capacity a slot may hold,
	// so that any live record can later be rewritten as a 10-byte
	// tombstone.
	minRecordLength = 10
	// tombstoneLength is the exact size of a tombstone payload: a 2-byte
	// sentinel (-1) plus a 4-byte forwarding page and 4-byte forwarding
	// slot.
	tombstoneLength = 10
	// maxTombstoneHops bounds tombstone-resolution recursion (I8: a
	// tombstone points at a real record reachable in one hop).
	maxTombstoneHops = 2
)

// File is an open RBFM data file: the underlying paged data file plus its
// metafile-backed free-space vector.
type File struct {
	data      *pfm.Handle
	meta      *pfm.Handle
	freeBytes []uint16 // one entry per data page
}

// Manager owns the pfm.Manager used to open data and metafile handles.
type Manager struct {
	pfm *pfm.Manager
}

// New returns a Manager built on top of the given pfm.Manager.
func New(p *pfm.Manager) *Manager {
	return &Manager{pfm: p}
}

// metaName derives the sidecar metafile path for a data file path,
// keeping it beside the data file rather than prefixing the whole path.
func metaName(name string) string {
	return filepath.Join(filepath.Dir(name), "meta_"+filepath.Base(name))
}

// CreateFile creates both the data file and its metafile, the latter
// initialised to zero entries.
func (m *Manager) CreateFile(name string) error {
	if err := m.pfm.Create(name); err != nil {
		return fmt.Errorf("rbfm createFile %s: %w", name, err)
	}
	if err := m.pfm.Create(metaName(name)); err != nil {
		return fmt.Errorf("rbfm createFile %s: %w", name, err)
	}
	return nil
}

// DestroyFile removes the data file and its metafile.
func (m *Manager) DestroyFile(name string) error {
	if err := m.pfm.Destroy(name); err != nil {
		return fmt.Errorf("rbfm destroyFile %s: %w", name, err)
	}
	if err := m.pfm.Destroy(metaName(name)); err != nil {
		return fmt.Errorf("rbfm destroyFile %s: %w", name, err)
	}
	return nil
}

// OpenFile opens the data file and its metafile, loading the free-space
// vector into memory.
func (m *Manager) OpenFile(name string) (*File, error) {
	data, err := m.pfm.Open(name)
	if err != nil {
		return nil, fmt.Errorf("rbfm openFile %s: %w", name, err)
	}
	meta, err := m.pfm.Open(metaName(name))
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("rbfm openFile %s: %w", name, err)
	}
	vec, err := loadFreeSpaceVector(meta)
	if err != nil {
		data.Close()
		meta.Close()
		return nil, fmt.Errorf("rbfm openFile %s: %w", name, err)
	}
	n, err := data.PageCount()
	if err != nil {
		data.Close()
		meta.Close()
		return nil, err
	}
	if len(vec) != n {
		// Tolerate a fresh metafile (zero entries) for an empty data
		// file; anything else is a genuine inconsistency.
		if !(len(vec) == 0 && n == 0) {
			data.Close()
			meta.Close()
			return nil, fmt.Errorf("rbfm openFile %s: %w", name, ErrMetaInconsist)
		}
	}
	return &File{data: data, meta: meta, freeBytes: vec}, nil
}

// CloseFile writes the free-space vector back to the metafile and closes
// both handles.
func (f *File) CloseFile() error {
	if err := storeFreeSpaceVector(f.meta, f.freeBytes); err != nil {
		return fmt.Errorf("rbfm closeFile: %w", err)
	}
	if err := f.data.Close(); err != nil {
		return fmt.Errorf("rbfm closeFile: %w", err)
	}
	if err := f.meta.Close(); err != nil {
		return fmt.Errorf("rbfm closeFile: %w", err)
	}
	return nil
}
