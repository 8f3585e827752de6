package rbfm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/malzahar-db/sgbd/pfm"
)

func testDescriptor() []Attribute {
	return []Attribute{
		{Name: "id", Type: TypeInt},
		{Name: "name", Type: TypeVarChar, MaxLength: 20},
	}
}

func encodeIDName(id int32, name string) []byte {
	buf := make([]byte, 4+4+len(name))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(id))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(name)))
	copy(buf[8:], name)
	return buf
}

func openFixture(t *testing.T) (*Manager, *File, string) {
	t.Helper()
	dir := t.TempDir()
	name := filepath.Join(dir, "t.tbl")
	m := New(pfm.New())
	if err := m.CreateFile(name); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	f, err := m.OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	return m, f, name
}

// Scenario A — RBFM basic.
func TestScenarioA(t *testing.T) {
	_, f, _ := openFixture(t)
	desc := testDescriptor()

	rid, err := f.InsertRecord(desc, encodeIDName(1, "alice"))
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if rid != (RID{Page: 0, Slot: 1}) {
		t.Fatalf("InsertRecord RID: want (0,1), got %+v", rid)
	}

	out, err := f.ReadRecord(desc, rid)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(out, encodeIDName(1, "alice")) {
		t.Fatalf("ReadRecord: content mismatch")
	}

	if err := f.DeleteRecord(rid); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := f.ReadRecord(desc, rid); !errors.Is(err, ErrDeleted) {
		t.Fatalf("ReadRecord after delete: want ErrDeleted, got %v", err)
	}
}

// Scenario B — Update relocation.
func TestScenarioB(t *testing.T) {
	_, f, _ := openFixture(t)
	desc := []Attribute{
		{Name: "id", Type: TypeInt},
		{Name: "note", Type: TypeVarChar, MaxLength: 10},
	}

	rid, err := f.InsertRecord(desc, encodeIDName(1, "a"))
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	if err := f.UpdateRecord(desc, encodeIDName(1, "aaaaaaaaaa"), rid); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}

	out, err := f.ReadRecord(desc, rid)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(out, encodeIDName(1, "aaaaaaaaaa")) {
		t.Fatalf("ReadRecord after update: content mismatch, got %v", out)
	}

	buf := make([]byte, pfm.PageSize)
	if err := f.data.ReadPage(int(rid.Page), buf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	begin, end := getSlot(buf, int(rid.Slot))
	if !isTombstone(buf[begin:end]) {
		t.Fatalf("expected original slot to hold a tombstone")
	}
}

// P4-ish and update-in-place idempotence (P6).
func TestUpdateInPlaceIdempotent(t *testing.T) {
	_, f, _ := openFixture(t)
	desc := testDescriptor()

	rid, err := f.InsertRecord(desc, encodeIDName(7, "bob"))
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	if err := f.UpdateRecord(desc, encodeIDName(7, "bob"), rid); err != nil {
		t.Fatalf("UpdateRecord 1: %v", err)
	}
	buf1 := make([]byte, pfm.PageSize)
	f.data.ReadPage(int(rid.Page), buf1)

	if err := f.UpdateRecord(desc, encodeIDName(7, "bob"), rid); err != nil {
		t.Fatalf("UpdateRecord 2: %v", err)
	}
	buf2 := make([]byte, pfm.PageSize)
	f.data.ReadPage(int(rid.Page), buf2)

	if !bytes.Equal(buf1, buf2) {
		t.Fatalf("identical updates produced different page bytes")
	}
}

// Scenario C — Page reorganization.
func TestScenarioC(t *testing.T) {
	_, f, _ := openFixture(t)
	desc := []Attribute{{Name: "id", Type: TypeInt}}

	var rids []RID
	for i := int32(0); ; i++ {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(i))
		rid, err := f.InsertRecord(desc, buf)
		if err != nil {
			t.Fatalf("InsertRecord %d: %v", i, err)
		}
		if rid.Page != 0 {
			// Rolled onto a new page: fixture has enough records on
			// page 0 to exercise reorganization; stop before this one
			// lands, so delete it and break.
			f.DeleteRecord(rid)
			break
		}
		rids = append(rids, rid)
	}

	if err := f.DeleteRecord(rids[0]); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := f.ReorganizePage(0); err != nil {
		t.Fatalf("ReorganizePage: %v", err)
	}

	buf := make([]byte, pfm.PageSize)
	f.data.ReadPage(0, buf)
	begin, end := getSlot(buf, int(rids[0].Slot))
	if !isRecycled(begin, end) {
		t.Fatalf("expected recycled slot after reorg, got (%d,%d)", begin, end)
	}

	for _, rid := range rids[1:] {
		if _, err := f.ReadRecord(desc, rid); err != nil {
			t.Fatalf("ReadRecord %+v after reorg: %v", rid, err)
		}
	}
}

// P1: metafile free bytes equals the formula.
func TestFreeBytesFormula(t *testing.T) {
	_, f, _ := openFixture(t)
	desc := testDescriptor()
	if _, err := f.InsertRecord(desc, encodeIDName(1, "alice")); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	buf := make([]byte, pfm.PageSize)
	f.data.ReadPage(0, buf)
	want := computeFreeBytes(buf)
	if f.freeBytes[0] != want {
		t.Fatalf("free bytes vector = %d, want %d", f.freeBytes[0], want)
	}
}

func TestScanProjection(t *testing.T) {
	_, f, _ := openFixture(t)
	desc := testDescriptor()
	f.InsertRecord(desc, encodeIDName(1, "alice"))
	f.InsertRecord(desc, encodeIDName(2, "bob"))
	f.InsertRecord(desc, encodeIDName(3, "carol"))

	it, err := f.Scan(desc, "id", GE, EncodeInt(2), []string{"name"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var got []string
	for {
		_, proj, err := it.Next()
		if errors.Is(err, ErrScanEOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		n := int(binary.LittleEndian.Uint32(proj[0:4]))
		got = append(got, string(proj[4:4+n]))
	}
	if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Fatalf("scan projection: got %v", got)
	}
}

func TestCloseReopenPersistsFreeBytes(t *testing.T) {
	m, f, name := openFixture(t)
	desc := testDescriptor()
	rid, err := f.InsertRecord(desc, encodeIDName(1, "alice"))
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if err := f.CloseFile(); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	f2, err := m.OpenFile(name)
	if err != nil {
		t.Fatalf("OpenFile 2: %v", err)
	}
	defer f2.CloseFile()

	out, err := f2.ReadRecord(desc, rid)
	if err != nil {
		t.Fatalf("ReadRecord after reopen: %v", err)
	}
	if !bytes.Equal(out, encodeIDName(1, "alice")) {
		t.Fatalf("content mismatch after reopen")
	}
}
