package rm

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/malzahar-db/sgbd/rbfm"
)

func encodeAB(a int32, b string) []byte {
	buf := make([]byte, 4+4+len(b))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(b)))
	copy(buf[8:], b)
	return buf
}

// Scenario F — catalog reload.
func TestScenarioFCatalogReload(t *testing.T) {
	dir := t.TempDir()

	e := New(dir)
	if err := e.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	cols := []rbfm.Attribute{
		{Name: "a", Type: rbfm.TypeInt},
		{Name: "b", Type: rbfm.TypeVarChar, MaxLength: 8},
	}
	if err := e.CreateTable("T", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int32(0); i < 3; i++ {
		if _, err := e.InsertTuple("T", encodeAB(i, "row")); err != nil {
			t.Fatalf("InsertTuple %d: %v", i, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2 := New(dir)
	if err := e2.Open(); err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer e2.Close()

	attrs, err := e2.GetAttributes("T")
	if err != nil {
		t.Fatalf("GetAttributes: %v", err)
	}
	if len(attrs) != 2 || attrs[0].Name != "a" || attrs[1].Name != "b" || attrs[1].MaxLength != 8 {
		t.Fatalf("GetAttributes after reload: %+v", attrs)
	}

	it, err := e2.Scan("T", "", rbfm.NoOp, nil, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	count := 0
	for {
		_, _, err := it.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("scan after reload: want 3 rows, got %d", count)
	}

	if e2.nextTableID <= 1 {
		t.Fatalf("nextTableID after reload: want > 1, got %d", e2.nextTableID)
	}
}

// Bootstrap must register the three catalogs as System rows in
// "tables"/"columns" so the catalog is self-describing (spec.md §1,
// §4.4), not just present as bare files.
func TestBootstrapRegistersSystemCatalogs(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	if err := e.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	for _, name := range []string{"tables", "columns", "indices"} {
		tm, ok := e.tablesByName[name]
		if !ok {
			t.Fatalf("tablesByName[%s]: missing after bootstrap", name)
		}
		if !tm.IsSystem {
			t.Fatalf("tablesByName[%s].IsSystem = false, want true", name)
		}
		if len(tm.Columns) == 0 {
			t.Fatalf("tablesByName[%s].Columns: empty, want catalog descriptor", name)
		}
	}

	it, err := e.tables.Scan(tablesDescriptor(), "", rbfm.NoOp, nil, []string{"TableName", "TableType"})
	if err != nil {
		t.Fatalf("Scan tables: %v", err)
	}
	systemRows := 0
	for {
		_, proj, err := it.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		c := &rowCursor{data: proj}
		_ = c.readVarChar()
		if c.readVarChar() == "System" {
			systemRows++
		}
	}
	if systemRows != 3 {
		t.Fatalf("System rows in tables catalog: got %d, want 3", systemRows)
	}
}

func TestReservedNameRejected(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	if err := e.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if err := e.CreateTable("tables", nil); !errors.Is(err, ErrReservedName) {
		t.Fatalf("CreateTable(tables): want ErrReservedName, got %v", err)
	}
	if _, err := e.InsertTuple("columns", nil); !errors.Is(err, ErrSystemTable) {
		t.Fatalf("InsertTuple(columns): want ErrSystemTable, got %v", err)
	}
}

func TestCreateIndexAndLookupViaScan(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	if err := e.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	cols := []rbfm.Attribute{{Name: "id", Type: rbfm.TypeInt}, {Name: "note", Type: rbfm.TypeVarChar, MaxLength: 8}}
	if err := e.CreateTable("U", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	var rid rbfm.RID
	for i := int32(0); i < 5; i++ {
		r, err := e.InsertTuple("U", encodeAB(i, "n"))
		if err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
		if i == 2 {
			rid = r
		}
	}
	if err := e.CreateIndex("U", "id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	idxFile, err := e.openIndexFile("U", "id", rbfm.TypeInt)
	if err != nil {
		t.Fatalf("openIndexFile: %v", err)
	}
	got, found, err := idxFile.Lookup(rbfm.EncodeInt(2))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found || got.Page != rid.Page || got.Slot != rid.Slot {
		t.Fatalf("Lookup(2): got %+v found=%v, want %+v", got, found, rid)
	}

	if err := e.UpdateTuple("U", encodeAB(99, "n"), rid); err != nil {
		t.Fatalf("UpdateTuple: %v", err)
	}
	if _, found, err := idxFile.Lookup(rbfm.EncodeInt(2)); err != nil {
		t.Fatalf("Lookup after update: %v", err)
	} else if found {
		t.Fatalf("Lookup(2) after update: still found")
	}
	got2, found, err := idxFile.Lookup(rbfm.EncodeInt(99))
	if err != nil || !found {
		t.Fatalf("Lookup(99) after update: err=%v found=%v", err, found)
	}
	if got2.Page != rid.Page || got2.Slot != rid.Slot {
		t.Fatalf("Lookup(99) rid mismatch: %+v vs %+v", got2, rid)
	}

	if err := e.DeleteTuple("U", rid); err != nil {
		t.Fatalf("DeleteTuple: %v", err)
	}
	if _, found, err := idxFile.Lookup(rbfm.EncodeInt(99)); err != nil {
		t.Fatalf("Lookup after delete: %v", err)
	} else if found {
		t.Fatalf("Lookup(99) after delete: still found")
	}
}

func TestDeleteTableRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	if err := e.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	cols := []rbfm.Attribute{{Name: "a", Type: rbfm.TypeInt}}
	if err := e.CreateTable("V", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := e.CreateIndex("V", "a"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := e.DeleteTable("V"); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
	if _, err := e.lookupTable("V"); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("lookupTable after delete: want ErrTableNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "V.tbl")); err == nil {
		t.Fatalf("V.tbl still exists after DeleteTable")
	}
}
