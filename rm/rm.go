// Package rm implements the relation manager: three system catalog
// tables backed by rbfm, DDL (create/delete table, create/destroy
// index), and DML (insert/update/delete/scan) that delegates to rbfm
// and ix while keeping every index for a table in sync.
package rm

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/malzahar-db/sgbd/ix"
	"github.com/malzahar-db/sgbd/pfm"
	"github.com/malzahar-db/sgbd/rbfm"
)

var (
	ErrSystemTable     = errors.New("rm: operation not permitted on a system table")
	ErrTableExists     = errors.New("rm: table already exists")
	ErrTableNotFound   = errors.New("rm: table not found")
	ErrIndexExists     = errors.New("rm: index already exists")
	ErrIndexNotFound   = errors.New("rm: index not found")
	ErrUnknownAttr     = errors.New("rm: unknown attribute")
	ErrReservedName    = errors.New("rm: reserved catalog table name")
)

const (
	catalogTables  = "tables"
	catalogColumns = "columns"
	catalogIndices = "indices"
)

func isReservedName(name string) bool {
	return name == catalogTables || name == catalogColumns || name == catalogIndices
}

// columnEntry is one column's catalog-backed metadata.
type columnEntry struct {
	Name      string
	Type      rbfm.AttrType
	MaxLength uint32
	Position  int32
	RID       rbfm.RID
}

// indexEntry is one index's catalog-backed metadata, keyed by the
// column it indexes.
type indexEntry struct {
	ColumnPosition int32
	ColumnName     string
	RID            rbfm.RID
}

// tableMeta is the in-memory representation of one user (or system)
// table, rebuilt from the catalogs at Open.
type tableMeta struct {
	ID       int32
	Name     string
	FileName string // relative to the engine's data directory
	IsSystem bool
	RID      rbfm.RID // this table's own row in the "tables" catalog
	Columns  []columnEntry
	Indices  map[int32]indexEntry // keyed by ColumnPosition
}

func (tm *tableMeta) descriptor() []rbfm.Attribute {
	out := make([]rbfm.Attribute, len(tm.Columns))
	for i, c := range tm.Columns {
		out[i] = rbfm.Attribute{Name: c.Name, Type: c.Type, MaxLength: c.MaxLength}
	}
	return out
}

// Engine is the relation manager. It owns the three catalog tables and
// every open data/index file handle.
type Engine struct {
	dataDir string
	pfmMgr  *pfm.Manager
	rbfmMgr *rbfm.Manager
	ixMgr   *ix.Manager
	session uuid.UUID

	tables  *rbfm.File
	columns *rbfm.File
	indices *rbfm.File

	tablesByName map[string]*tableMeta
	nextTableID  int32

	openData    map[string]*rbfm.File
	openIndices map[string]*ix.File
}

// New returns an Engine rooted at dataDir. Call Open before use.
func New(dataDir string) *Engine {
	p := pfm.New()
	return &Engine{
		dataDir:     dataDir,
		pfmMgr:      p,
		rbfmMgr:     rbfm.New(p),
		ixMgr:       ix.New(p),
		session:     uuid.New(),
		openData:    make(map[string]*rbfm.File),
		openIndices: make(map[string]*ix.File),
	}
}

func (e *Engine) path(fileName string) string {
	return filepath.Join(e.dataDir, fileName)
}

func tablesDescriptor() []rbfm.Attribute {
	return []rbfm.Attribute{
		{Name: "TableId", Type: rbfm.TypeInt},
		{Name: "TableName", Type: rbfm.TypeVarChar, MaxLength: 64},
		{Name: "TableType", Type: rbfm.TypeVarChar, MaxLength: 16},
		{Name: "FileName", Type: rbfm.TypeVarChar, MaxLength: 128},
		{Name: "NumOfColumns", Type: rbfm.TypeInt},
	}
}

func columnsDescriptor() []rbfm.Attribute {
	return []rbfm.Attribute{
		{Name: "TableId", Type: rbfm.TypeInt},
		{Name: "TableName", Type: rbfm.TypeVarChar, MaxLength: 64},
		{Name: "ColumnName", Type: rbfm.TypeVarChar, MaxLength: 64},
		{Name: "ColumnType", Type: rbfm.TypeVarChar, MaxLength: 16},
		{Name: "ColumnPosition", Type: rbfm.TypeInt},
		{Name: "MaxLength", Type: rbfm.TypeInt},
	}
}

func indicesDescriptor() []rbfm.Attribute {
	return []rbfm.Attribute{
		{Name: "TableId", Type: rbfm.TypeInt},
		{Name: "TableName", Type: rbfm.TypeVarChar, MaxLength: 64},
		{Name: "ColumnPosition", Type: rbfm.TypeInt},
		{Name: "ColumnName", Type: rbfm.TypeVarChar, MaxLength: 64},
	}
}

func attrTypeName(t rbfm.AttrType) string {
	switch t {
	case rbfm.TypeInt:
		return "Int"
	case rbfm.TypeReal:
		return "Real"
	default:
		return "VarChar"
	}
}

func attrTypeFromName(s string) rbfm.AttrType {
	switch s {
	case "Int":
		return rbfm.TypeInt
	case "Real":
		return rbfm.TypeReal
	default:
		return rbfm.TypeVarChar
	}
}

func toIXType(t rbfm.AttrType) ix.AttrType {
	switch t {
	case rbfm.TypeInt:
		return ix.TypeInt
	case rbfm.TypeReal:
		return ix.TypeReal
	default:
		return ix.TypeVarChar
	}
}

// Open bootstraps the three catalogs on first use, or reloads every
// in-memory cache from them if they already exist on disk (spec.md
// §4.4, Scenario F).
func (e *Engine) Open() error {
	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		return fmt.Errorf("rm open: %w", err)
	}
	tablesPath := e.path(catalogTables + ".tbl")
	_, err := os.Stat(tablesPath)
	switch {
	case err == nil:
		return e.reload()
	case os.IsNotExist(err):
		return e.bootstrap()
	default:
		return fmt.Errorf("rm open: %w", err)
	}
}

// systemCatalogDescriptors pairs each catalog's well-known name with its
// own descriptor, in catalog-registration order (spec.md §4.4,
// assignment_2_rm/rm.cc's createCatalogs: "tables" first, so its own row
// can be inserted into itself).
func systemCatalogDescriptors() []struct {
	name string
	desc []rbfm.Attribute
} {
	return []struct {
		name string
		desc []rbfm.Attribute
	}{
		{catalogTables, tablesDescriptor()},
		{catalogColumns, columnsDescriptor()},
		{catalogIndices, indicesDescriptor()},
	}
}

func (e *Engine) bootstrap() error {
	for _, name := range []string{catalogTables, catalogColumns, catalogIndices} {
		if err := e.rbfmMgr.CreateFile(e.path(name + ".tbl")); err != nil {
			return fmt.Errorf("rm bootstrap %s: %w", name, err)
		}
	}
	tables, err := e.rbfmMgr.OpenFile(e.path(catalogTables + ".tbl"))
	if err != nil {
		return fmt.Errorf("rm bootstrap: %w", err)
	}
	columns, err := e.rbfmMgr.OpenFile(e.path(catalogColumns + ".tbl"))
	if err != nil {
		return fmt.Errorf("rm bootstrap: %w", err)
	}
	indices, err := e.rbfmMgr.OpenFile(e.path(catalogIndices + ".tbl"))
	if err != nil {
		return fmt.Errorf("rm bootstrap: %w", err)
	}
	e.tables, e.columns, e.indices = tables, columns, indices
	e.tablesByName = make(map[string]*tableMeta)
	e.nextTableID = 1

	// Register the three catalogs as System rows in "tables"/"columns",
	// the same way the original bootstrap makes the catalog
	// self-describing (spec.md §1, §4.4), bypassing CreateTable's
	// reserved-name guard since this is the one legitimate caller
	// allowed to write those rows.
	for _, sc := range systemCatalogDescriptors() {
		id := e.nextTableID
		fileName := sc.name + ".tbl"
		rid, err := e.tables.InsertRecord(tablesDescriptor(),
			encodeTableRow(id, sc.name, "System", fileName, int32(len(sc.desc))))
		if err != nil {
			return fmt.Errorf("rm bootstrap %s: %w", sc.name, err)
		}
		tm := &tableMeta{
			ID: id, Name: sc.name, FileName: fileName, IsSystem: true,
			RID: rid, Indices: make(map[int32]indexEntry),
		}
		for i, col := range sc.desc {
			crid, err := e.columns.InsertRecord(columnsDescriptor(),
				encodeColumnRow(id, sc.name, col.Name, attrTypeName(col.Type), int32(i), int32(col.MaxLength)))
			if err != nil {
				return fmt.Errorf("rm bootstrap %s: %w", sc.name, err)
			}
			tm.Columns = append(tm.Columns, columnEntry{
				Name: col.Name, Type: col.Type, MaxLength: col.MaxLength, Position: int32(i), RID: crid,
			})
		}
		e.tablesByName[sc.name] = tm
		e.nextTableID++
	}

	log.Printf("rm[%s]: bootstrapped catalogs (self-registered) in %s", e.session, e.dataDir)
	return nil
}

func (e *Engine) reload() error {
	tables, err := e.rbfmMgr.OpenFile(e.path(catalogTables + ".tbl"))
	if err != nil {
		return fmt.Errorf("rm reload: %w", err)
	}
	columns, err := e.rbfmMgr.OpenFile(e.path(catalogColumns + ".tbl"))
	if err != nil {
		return fmt.Errorf("rm reload: %w", err)
	}
	indices, err := e.rbfmMgr.OpenFile(e.path(catalogIndices + ".tbl"))
	if err != nil {
		return fmt.Errorf("rm reload: %w", err)
	}
	e.tables, e.columns, e.indices = tables, columns, indices
	e.tablesByName = make(map[string]*tableMeta)

	byID := make(map[int32]*tableMeta)
	var maxID int32

	it, err := e.tables.Scan(tablesDescriptor(), "", rbfm.NoOp, nil, []string{
		"TableId", "TableName", "TableType", "FileName", "NumOfColumns",
	})
	if err != nil {
		return fmt.Errorf("rm reload: %w", err)
	}
	for {
		rid, proj, err := it.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("rm reload: %w", err)
		}
		id, name, ttype, fname, _ := decodeTableRow(proj)
		tm := &tableMeta{
			ID:       id,
			Name:     name,
			FileName: fname,
			IsSystem: ttype == "System",
			RID:      rid,
			Indices:  make(map[int32]indexEntry),
		}
		e.tablesByName[name] = tm
		byID[id] = tm
		if id > maxID {
			maxID = id
		}
	}

	cit, err := e.columns.Scan(columnsDescriptor(), "", rbfm.NoOp, nil, []string{
		"TableId", "ColumnName", "ColumnType", "ColumnPosition", "MaxLength",
	})
	if err != nil {
		return fmt.Errorf("rm reload: %w", err)
	}
	for {
		rid, proj, err := cit.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("rm reload: %w", err)
		}
		tid, cname, ctype, pos, maxLen := decodeColumnRow(proj)
		tm, ok := byID[tid]
		if !ok {
			continue
		}
		tm.Columns = append(tm.Columns, columnEntry{
			Name: cname, Type: attrTypeFromName(ctype), MaxLength: uint32(maxLen),
			Position: pos, RID: rid,
		})
	}
	for _, tm := range byID {
		sort.Slice(tm.Columns, func(i, j int) bool { return tm.Columns[i].Position < tm.Columns[j].Position })
	}

	iit, err := e.indices.Scan(indicesDescriptor(), "", rbfm.NoOp, nil, []string{
		"TableId", "ColumnPosition", "ColumnName",
	})
	if err != nil {
		return fmt.Errorf("rm reload: %w", err)
	}
	for {
		rid, proj, err := iit.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("rm reload: %w", err)
		}
		tid, pos, cname := decodeIndexRow(proj)
		tm, ok := byID[tid]
		if !ok {
			continue
		}
		tm.Indices[pos] = indexEntry{ColumnPosition: pos, ColumnName: cname, RID: rid}
	}

	e.nextTableID = maxID + 1
	log.Printf("rm[%s]: reloaded %d tables from %s, next table id %d", e.session, len(e.tablesByName), e.dataDir, e.nextTableID)
	return nil
}

// Close flushes and closes every open file: the catalogs, every open
// table data file, and every open index file.
func (e *Engine) Close() error {
	for _, f := range e.openIndices {
		if err := f.CloseFile(); err != nil {
			return fmt.Errorf("rm close: %w", err)
		}
	}
	for _, f := range e.openData {
		if err := f.CloseFile(); err != nil {
			return fmt.Errorf("rm close: %w", err)
		}
	}
	if e.tables != nil {
		if err := e.tables.CloseFile(); err != nil {
			return fmt.Errorf("rm close: %w", err)
		}
	}
	if e.columns != nil {
		if err := e.columns.CloseFile(); err != nil {
			return fmt.Errorf("rm close: %w", err)
		}
	}
	if e.indices != nil {
		if err := e.indices.CloseFile(); err != nil {
			return fmt.Errorf("rm close: %w", err)
		}
	}
	return nil
}

func (e *Engine) lookupTable(name string) (*tableMeta, error) {
	tm, ok := e.tablesByName[name]
	if !ok {
		return nil, fmt.Errorf("rm: %w: %s", ErrTableNotFound, name)
	}
	return tm, nil
}

func (e *Engine) openTableFile(tm *tableMeta) (*rbfm.File, error) {
	if f, ok := e.openData[tm.Name]; ok {
		return f, nil
	}
	f, err := e.rbfmMgr.OpenFile(e.path(tm.FileName))
	if err != nil {
		return nil, fmt.Errorf("rm: open table %s: %w", tm.Name, err)
	}
	e.openData[tm.Name] = f
	return f, nil
}

func (e *Engine) indexFileName(tableName, columnName string) string {
	return tableName + "_" + columnName + ".idx"
}

func (e *Engine) openIndexFile(tableName, columnName string, keyType rbfm.AttrType) (*ix.File, error) {
	key := tableName + "_" + columnName
	if f, ok := e.openIndices[key]; ok {
		return f, nil
	}
	f, err := e.ixMgr.OpenFile(e.path(e.indexFileName(tableName, columnName)), toIXType(keyType))
	if err != nil {
		return nil, fmt.Errorf("rm: open index %s: %w", key, err)
	}
	e.openIndices[key] = f
	return f, nil
}
