package ix

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/malzahar-db/sgbd/pfm"
)

func encInt(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

func openIntFixture(t *testing.T) (*Manager, *File) {
	t.Helper()
	dir := t.TempDir()
	name := filepath.Join(dir, "idx.ix")
	m := New(pfm.New())
	if err := m.CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	f, err := m.OpenFile(name, TypeInt)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	return m, f
}

// P2/P3/P4 plus Scenario D: insert enough keys to force the tree to grow
// past a single leaf, and confirm every key is still found by Lookup.
func TestScenarioD(t *testing.T) {
	_, f := openIntFixture(t)

	const n = 275
	for i := int32(0); i < n; i++ {
		rid := RID{Page: uint32(i), Slot: 1}
		if err := f.Insert(encInt(i), rid); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	root, err := f.rootPage()
	if err != nil {
		t.Fatalf("rootPage: %v", err)
	}
	buf, err := f.readPage(root)
	if err != nil {
		t.Fatalf("readPage(root): %v", err)
	}
	if pageKind(buf) != kindInterior {
		t.Fatalf("expected tree to have grown an interior root, got kind %d", pageKind(buf))
	}

	for i := int32(0); i < n; i++ {
		rid, found, err := f.Lookup(encInt(i))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if !found {
			t.Fatalf("Lookup(%d): not found", i)
		}
		if rid != (RID{Page: uint32(i), Slot: 1}) {
			t.Fatalf("Lookup(%d): rid = %+v", i, rid)
		}
	}

	if _, found, err := f.Lookup(encInt(n + 10)); err != nil {
		t.Fatalf("Lookup miss: %v", err)
	} else if found {
		t.Fatalf("Lookup miss: expected not found")
	}
}

// P3: duplicate-key insert is rejected.
func TestDuplicateKeyRejected(t *testing.T) {
	_, f := openIntFixture(t)
	if err := f.Insert(encInt(1), RID{Page: 0, Slot: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := f.Insert(encInt(1), RID{Page: 0, Slot: 2})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Insert duplicate: want ErrDuplicateKey, got %v", err)
	}
}

// P4: delete with a mismatched RID is rejected, and delete followed by
// lookup reports not-found.
func TestDeleteRIDMismatchAndLookup(t *testing.T) {
	_, f := openIntFixture(t)
	if err := f.Insert(encInt(5), RID{Page: 1, Slot: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.Delete(encInt(5), RID{Page: 9, Slot: 9}); !errors.Is(err, ErrRIDMismatch) {
		t.Fatalf("Delete mismatch: want ErrRIDMismatch, got %v", err)
	}
	if err := f.Delete(encInt(5), RID{Page: 1, Slot: 1}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, err := f.Lookup(encInt(5)); err != nil {
		t.Fatalf("Lookup: %v", err)
	} else if found {
		t.Fatalf("Lookup after delete: expected not found")
	}
}

// Scenario E — bounded range scan: low=100 inclusive, high=200 exclusive
// over keys 0..274 yields exactly 100..199.
func TestScenarioE(t *testing.T) {
	_, f := openIntFixture(t)
	const n = 275
	for i := int32(0); i < n; i++ {
		if err := f.Insert(encInt(i), RID{Page: uint32(i), Slot: 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it, err := f.RangeScan(encInt(100), encInt(200), true, false)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	var got []int32
	for {
		key, _, err := it.Next()
		if errors.Is(err, ErrScanEOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, int32(binary.LittleEndian.Uint32(key)))
	}
	if len(got) != 100 {
		t.Fatalf("range scan: want 100 entries, got %d", len(got))
	}
	for i, v := range got {
		if v != int32(100+i) {
			t.Fatalf("range scan entry %d: want %d, got %d", i, 100+i, v)
		}
	}
}

func TestUnboundedRangeScan(t *testing.T) {
	_, f := openIntFixture(t)
	for i := int32(0); i < 10; i++ {
		if err := f.Insert(encInt(i), RID{Page: uint32(i), Slot: 1}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	it, err := f.RangeScan(nil, nil, true, true)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	count := 0
	for {
		_, _, err := it.Next()
		if errors.Is(err, ErrScanEOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		count++
	}
	if count != 10 {
		t.Fatalf("unbounded scan: want 10, got %d", count)
	}
}
