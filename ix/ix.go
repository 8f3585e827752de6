// Package ix implements the index manager: a disk-resident B+-tree per
// index file, with a dedicated header page pointing at the current root,
// full-page splits that propagate from a leaf up to a (re)created root,
// point lookup, delete, and a bounded range scan over the leaf chain.
package ix

import (
	"errors"
	"fmt"

	"github.com/malzahar-db/sgbd/pfm"
)

// AttrType enumerates the key types a B+-tree may be built over. This
// mirrors rbfm.AttrType's values but is declared independently so ix has
// no compile-time dependency on rbfm (the index manager sits beside, not
// above, the record-based file manager in the layering).
type AttrType int

const (
	TypeInt AttrType = iota
	TypeReal
	TypeVarChar
)

// RID identifies the record an index entry points at.
type RID struct {
	Page uint32
	Slot uint32
}

var (
	ErrNotFound      = errors.New("ix: entry not found")
	ErrDuplicateKey  = errors.New("ix: duplicate key")
	ErrRIDMismatch   = errors.New("ix: rid mismatch")
	ErrOpen          = errors.New("ix: cannot destroy, handles open")
	ErrKeyTooBig     = errors.New("ix: key too large for a page")
)

// noPage is the sentinel page number meaning "no such page" for next/
// prev/root-less links.
const noPage = 0xFFFFFFFF

// Manager owns the pfm.Manager used to open index file handles.
type Manager struct {
	pfm *pfm.Manager
}

// New returns a Manager built on top of the given pfm.Manager.
func New(p *pfm.Manager) *Manager {
	return &Manager{pfm: p}
}

// File is an open index file.
type File struct {
	h       *pfm.Handle
	keyType AttrType
}

// CreateFile creates a new index file, initialised per spec.md §4.3.1:
// page 0 is the header page pointing at page 1; page 1 is an empty
// interior page whose firstChild is 2; page 2 is an empty leaf page.
func (m *Manager) CreateFile(name string) error {
	if err := m.pfm.Create(name); err != nil {
		return fmt.Errorf("ix createFile %s: %w", name, err)
	}
	h, err := m.pfm.Open(name)
	if err != nil {
		return fmt.Errorf("ix createFile %s: %w", name, err)
	}
	defer h.Close()

	header := make([]byte, pfm.PageSize)
	writeRootPointer(header, 1)
	if _, err := h.AppendPage(header); err != nil {
		return fmt.Errorf("ix createFile %s: %w", name, err)
	}

	root := newInteriorPage()
	root.setFirstChild(2)
	if _, err := h.AppendPage(root.buf); err != nil {
		return fmt.Errorf("ix createFile %s: %w", name, err)
	}

	leaf := newLeafPage()
	leaf.setNext(noPage)
	leaf.setPrev(noPage)
	if _, err := h.AppendPage(leaf.buf); err != nil {
		return fmt.Errorf("ix createFile %s: %w", name, err)
	}
	return nil
}

// DestroyFile removes the index file. It fails if any handle is open.
func (m *Manager) DestroyFile(name string) error {
	if err := m.pfm.Destroy(name); err != nil {
		return fmt.Errorf("ix destroyFile %s: %w", name, err)
	}
	return nil
}

// OpenFile opens an existing index file built over keys of the given
// type.
func (m *Manager) OpenFile(name string, keyType AttrType) (*File, error) {
	h, err := m.pfm.Open(name)
	if err != nil {
		return nil, fmt.Errorf("ix openFile %s: %w", name, err)
	}
	return &File{h: h, keyType: keyType}, nil
}

// CloseFile closes the index file's handle.
func (f *File) CloseFile() error {
	if err := f.h.Close(); err != nil {
		return fmt.Errorf("ix closeFile: %w", err)
	}
	return nil
}

func readRootPointer(header []byte) uint32 {
	return leU32(header, 0)
}

func writeRootPointer(header []byte, root uint32) {
	putLeU32(header, 0, root)
}

func (f *File) rootPage() (uint32, error) {
	buf := make([]byte, pfm.PageSize)
	if err := f.h.ReadPage(0, buf); err != nil {
		return 0, fmt.Errorf("ix: read header page: %w", err)
	}
	return readRootPointer(buf), nil
}

func (f *File) setRootPage(root uint32) error {
	buf := make([]byte, pfm.PageSize)
	if err := f.h.ReadPage(0, buf); err != nil {
		return fmt.Errorf("ix: read header page: %w", err)
	}
	writeRootPointer(buf, root)
	if err := f.h.WritePage(0, buf); err != nil {
		return fmt.Errorf("ix: write header page: %w", err)
	}
	return nil
}
