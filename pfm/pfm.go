// Package pfm implements the paged file manager: the lowest layer of the
// storage engine. It turns an OS file into an integral number of
// fixed-size pages addressed by page number, and tracks how many handles
// are currently open against each file name so a file cannot be destroyed
// while in use.
package pfm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
)

// PageSize is the fixed size of every page transferred to or from disk.
const PageSize = 4096

var (
	// ErrExists is returned by Create when the file already exists.
	ErrExists = errors.New("pfm: file already exists")
	// ErrNotExists is returned by Open/Destroy when the file is missing.
	ErrNotExists = errors.New("pfm: file does not exist")
	// ErrOpen is returned by Destroy while a handle for the name is open.
	ErrOpen = errors.New("pfm: cannot destroy, handles open")
	// ErrPageOutOfRange is returned by ReadPage when p >= pageCount.
	ErrPageOutOfRange = errors.New("pfm: page number out of range")
	// ErrAlreadyBound names the "handle already bound" argument error.
	// Open always returns a fresh Handle, so no function of this package
	// returns it.
	ErrAlreadyBound = errors.New("pfm: handle already bound to a file")
)

// Manager is the paged-file manager. It is a plain value type parameterised
// by its own state (per spec.md §9's note on avoiding hidden singletons);
// callers construct one Manager per process (or per test) and thread it
// explicitly rather than reaching for a package-level global.
type Manager struct {
	mu     sync.Mutex
	refs   map[string]int
	opened map[string]struct{}
}

// New returns a ready-to-use Manager with no open handles.
func New() *Manager {
	return &Manager{
		refs:   make(map[string]int),
		opened: make(map[string]struct{}),
	}
}

// Handle is an open paged file. It caches the file name and the raw
// stream, and carries a session id for diagnostics, available through
// Session; this package's own error messages name the file, not the
// session, and the id plays no role in refcounting.
type Handle struct {
	name    string
	file    *os.File
	session uuid.UUID
	mgr     *Manager
	closed  bool
}

// Name returns the file name this handle was opened against.
func (h *Handle) Name() string { return h.name }

// Session returns the handle's diagnostic session id.
func (h *Handle) Session() uuid.UUID { return h.session }

// Create creates a new paged file. It fails if the file already exists.
func (m *Manager) Create(name string) error {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("pfm create %s: %w", name, ErrExists)
		}
		return fmt.Errorf("pfm create %s: %w", name, err)
	}
	return f.Close()
}

// Destroy removes a paged file from the filesystem. It fails if any
// handle for that name is currently open.
func (m *Manager) Destroy(name string) error {
	m.mu.Lock()
	if n, ok := m.refs[name]; ok && n > 0 {
		m.mu.Unlock()
		return fmt.Errorf("pfm destroy %s: %w", name, ErrOpen)
	}
	m.mu.Unlock()

	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("pfm destroy %s: %w", name, ErrNotExists)
		}
		return fmt.Errorf("pfm destroy %s: %w", name, err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("pfm destroy %s: %w", name, err)
	}
	return nil
}

// Open opens an existing paged file, incrementing the process-wide
// reference count for its name. The caller owns the returned Handle and
// must Close it exactly once.
func (m *Manager) Open(name string) (*Handle, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pfm open %s: %w", name, ErrNotExists)
		}
		return nil, fmt.Errorf("pfm open %s: %w", name, err)
	}

	m.mu.Lock()
	m.refs[name]++
	m.mu.Unlock()

	return &Handle{
		name:    name,
		file:    f,
		session: uuid.New(),
		mgr:     m,
	}, nil
}

// Close flushes and releases the handle's stream and decrements the
// reference count for its name, removing the name from the table at
// zero. Close is idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("pfm close %s: %w", h.name, err)
	}
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("pfm close %s: %w", h.name, err)
	}

	h.mgr.mu.Lock()
	h.mgr.refs[h.name]--
	if h.mgr.refs[h.name] <= 0 {
		delete(h.mgr.refs, h.name)
	}
	h.mgr.mu.Unlock()
	return nil
}

// PageCount returns the number of whole pages currently in the file.
func (h *Handle) PageCount() (int, error) {
	info, err := h.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("pfm pageCount %s: %w", h.name, err)
	}
	return int(info.Size() / PageSize), nil
}

// ReadPage reads exactly PageSize bytes from page p into buf. buf must be
// at least PageSize bytes long. It fails if p >= pageCount.
func (h *Handle) ReadPage(p int, buf []byte) error {
	if len(buf) < PageSize {
		return fmt.Errorf("pfm readPage %s: buffer too small", h.name)
	}
	n, err := h.PageCount()
	if err != nil {
		return err
	}
	if p < 0 || p >= n {
		return fmt.Errorf("pfm readPage %s page %d: %w", h.name, p, ErrPageOutOfRange)
	}
	if _, err := h.file.ReadAt(buf[:PageSize], int64(p)*PageSize); err != nil {
		if err == io.EOF {
			return fmt.Errorf("pfm readPage %s page %d: short read: %w", h.name, p, err)
		}
		return fmt.Errorf("pfm readPage %s page %d: %w", h.name, p, err)
	}
	return nil
}

// WritePage writes exactly PageSize bytes from buf to page p. The page
// must already exist (use AppendPage to grow the file).
func (h *Handle) WritePage(p int, buf []byte) error {
	if len(buf) < PageSize {
		return fmt.Errorf("pfm writePage %s: buffer too small", h.name)
	}
	if _, err := h.file.WriteAt(buf[:PageSize], int64(p)*PageSize); err != nil {
		return fmt.Errorf("pfm writePage %s page %d: %w", h.name, p, err)
	}
	return nil
}

// AppendPage writes buf as a new page at the end of the file and returns
// its page number.
func (h *Handle) AppendPage(buf []byte) (int, error) {
	if len(buf) < PageSize {
		return 0, fmt.Errorf("pfm appendPage %s: buffer too small", h.name)
	}
	n, err := h.PageCount()
	if err != nil {
		return 0, err
	}
	if _, err := h.file.WriteAt(buf[:PageSize], int64(n)*PageSize); err != nil {
		return 0, fmt.Errorf("pfm appendPage %s: %w", h.name, err)
	}
	return n, nil
}
