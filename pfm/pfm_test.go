package pfm

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateOpenCloseDestroy(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "data.tbl")
	m := New()

	if err := m.Create(name); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create(name); !errors.Is(err, ErrExists) {
		t.Fatalf("Create again: want ErrExists, got %v", err)
	}

	h, err := m.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := m.Destroy(name); !errors.Is(err, ErrOpen) {
		t.Fatalf("Destroy while open: want ErrOpen, got %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := m.Destroy(name); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	if _, err := m.Open(name); !errors.Is(err, ErrNotExists) {
		t.Fatalf("Open missing: want ErrNotExists, got %v", err)
	}
}

func TestReadWriteAppendPage(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "data.tbl")
	m := New()
	if err := m.Create(name); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, err := m.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if n, err := h.PageCount(); err != nil || n != 0 {
		t.Fatalf("PageCount: want 0, got %d (%v)", n, err)
	}

	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	pn, err := h.AppendPage(buf)
	if err != nil {
		t.Fatalf("AppendPage: %v", err)
	}
	if pn != 0 {
		t.Fatalf("AppendPage: want page 0, got %d", pn)
	}

	out := make([]byte, PageSize)
	if err := h.ReadPage(0, out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(buf, out) {
		t.Fatalf("ReadPage: content mismatch")
	}

	if err := h.ReadPage(1, out); !errors.Is(err, ErrPageOutOfRange) {
		t.Fatalf("ReadPage oob: want ErrPageOutOfRange, got %v", err)
	}

	buf2 := bytes.Repeat([]byte{0xAB}, PageSize)
	if err := h.WritePage(0, buf2); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := h.ReadPage(0, out); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(buf2, out) {
		t.Fatalf("WritePage: content mismatch after overwrite")
	}
}

func TestRefcountAcrossMultipleHandles(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "data.tbl")
	m := New()
	if err := m.Create(name); err != nil {
		t.Fatalf("Create: %v", err)
	}

	h1, err := m.Open(name)
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	h2, err := m.Open(name)
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}

	if err := h1.Close(); err != nil {
		t.Fatalf("Close h1: %v", err)
	}
	if err := m.Destroy(name); !errors.Is(err, ErrOpen) {
		t.Fatalf("Destroy with h2 still open: want ErrOpen, got %v", err)
	}
	if err := h2.Close(); err != nil {
		t.Fatalf("Close h2: %v", err)
	}
	if err := m.Destroy(name); err != nil {
		t.Fatalf("Destroy after all closed: %v", err)
	}
}
