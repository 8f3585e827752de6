package rm

import (
	"errors"
	"fmt"

	"github.com/malzahar-db/sgbd/ix"
	"github.com/malzahar-db/sgbd/rbfm"
)

// CreateTable creates a user table's data file and registers it (plus
// one row per column) in the catalogs (spec.md §4.4).
func (e *Engine) CreateTable(name string, columns []rbfm.Attribute) error {
	if isReservedName(name) {
		return fmt.Errorf("rm createTable %s: %w", name, ErrReservedName)
	}
	if _, exists := e.tablesByName[name]; exists {
		return fmt.Errorf("rm createTable %s: %w", name, ErrTableExists)
	}

	id := e.nextTableID
	fileName := name + ".tbl"
	if err := e.rbfmMgr.CreateFile(e.path(fileName)); err != nil {
		return fmt.Errorf("rm createTable %s: %w", name, err)
	}

	rid, err := e.tables.InsertRecord(tablesDescriptor(),
		encodeTableRow(id, name, "User", fileName, int32(len(columns))))
	if err != nil {
		return fmt.Errorf("rm createTable %s: %w", name, err)
	}

	tm := &tableMeta{ID: id, Name: name, FileName: fileName, RID: rid, Indices: make(map[int32]indexEntry)}
	for i, col := range columns {
		crid, err := e.columns.InsertRecord(columnsDescriptor(),
			encodeColumnRow(id, name, col.Name, attrTypeName(col.Type), int32(i), int32(col.MaxLength)))
		if err != nil {
			return fmt.Errorf("rm createTable %s: %w", name, err)
		}
		tm.Columns = append(tm.Columns, columnEntry{
			Name: col.Name, Type: col.Type, MaxLength: col.MaxLength, Position: int32(i), RID: crid,
		})
	}

	e.tablesByName[name] = tm
	e.nextTableID++
	return nil
}

// DeleteTable destroys a user table's data file, any indexes built on
// it, and every catalog row that mentions it.
func (e *Engine) DeleteTable(name string) error {
	tm, err := e.lookupTable(name)
	if err != nil {
		return fmt.Errorf("rm deleteTable: %w", err)
	}
	if tm.IsSystem || isReservedName(name) {
		return fmt.Errorf("rm deleteTable %s: %w", name, ErrSystemTable)
	}

	for _, idx := range tm.Indices {
		if err := e.destroyIndexFiles(tm, idx); err != nil {
			return fmt.Errorf("rm deleteTable %s: %w", name, err)
		}
		if err := e.indices.DeleteRecord(idx.RID); err != nil {
			return fmt.Errorf("rm deleteTable %s: %w", name, err)
		}
	}
	for _, col := range tm.Columns {
		if err := e.columns.DeleteRecord(col.RID); err != nil {
			return fmt.Errorf("rm deleteTable %s: %w", name, err)
		}
	}
	if err := e.tables.DeleteRecord(tm.RID); err != nil {
		return fmt.Errorf("rm deleteTable %s: %w", name, err)
	}

	if f, ok := e.openData[name]; ok {
		if err := f.CloseFile(); err != nil {
			return fmt.Errorf("rm deleteTable %s: %w", name, err)
		}
		delete(e.openData, name)
	}
	if err := e.rbfmMgr.DestroyFile(e.path(tm.FileName)); err != nil {
		return fmt.Errorf("rm deleteTable %s: %w", name, err)
	}

	delete(e.tablesByName, name)
	return nil
}

func (e *Engine) destroyIndexFiles(tm *tableMeta, idx indexEntry) error {
	key := tm.Name + "_" + idx.ColumnName
	if f, ok := e.openIndices[key]; ok {
		if err := f.CloseFile(); err != nil {
			return err
		}
		delete(e.openIndices, key)
	}
	return e.ixMgr.DestroyFile(e.path(e.indexFileName(tm.Name, idx.ColumnName)))
}

// GetAttributes returns the table's attribute list in ColumnPosition
// order.
func (e *Engine) GetAttributes(table string) ([]rbfm.Attribute, error) {
	tm, err := e.lookupTable(table)
	if err != nil {
		return nil, fmt.Errorf("rm getAttributes: %w", err)
	}
	return tm.descriptor(), nil
}

// GetAttributeIndex returns the ColumnPosition of attrName within table.
func (e *Engine) GetAttributeIndex(table, attrName string) (int, error) {
	tm, err := e.lookupTable(table)
	if err != nil {
		return 0, fmt.Errorf("rm getAttributeIndex: %w", err)
	}
	for _, c := range tm.Columns {
		if c.Name == attrName {
			return int(c.Position), nil
		}
	}
	return 0, fmt.Errorf("rm getAttributeIndex %s.%s: %w", table, attrName, ErrUnknownAttr)
}

// CreateIndex builds a B+-tree index file over one column of an
// existing table, populated from every row currently in the table
// (spec.md §4.4).
func (e *Engine) CreateIndex(table, attrName string) error {
	tm, err := e.lookupTable(table)
	if err != nil {
		return fmt.Errorf("rm createIndex: %w", err)
	}
	pos, err := e.GetAttributeIndex(table, attrName)
	if err != nil {
		return fmt.Errorf("rm createIndex: %w", err)
	}
	if _, exists := tm.Indices[int32(pos)]; exists {
		return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, ErrIndexExists)
	}

	col := tm.Columns[pos]
	if err := e.ixMgr.CreateFile(e.path(e.indexFileName(table, attrName))); err != nil {
		return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
	}
	idxFile, err := e.openIndexFile(table, attrName, col.Type)
	if err != nil {
		return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
	}

	rid, err := e.indices.InsertRecord(indicesDescriptor(),
		encodeIndexRow(tm.ID, table, int32(pos), attrName))
	if err != nil {
		return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
	}
	tm.Indices[int32(pos)] = indexEntry{ColumnPosition: int32(pos), ColumnName: attrName, RID: rid}

	dataFile, err := e.openTableFile(tm)
	if err != nil {
		return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
	}
	desc := tm.descriptor()
	scan, err := dataFile.Scan(desc, "", rbfm.NoOp, nil, []string{attrName})
	if err != nil {
		return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
	}
	for {
		srid, proj, err := scan.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
		}
		if err := idxFile.Insert(proj, ix.RID{Page: srid.Page, Slot: srid.Slot}); err != nil {
			return fmt.Errorf("rm createIndex %s.%s: %w", table, attrName, err)
		}
	}
	return nil
}

// DestroyIndex removes an index and its catalog row, in the reverse
// order of CreateIndex.
func (e *Engine) DestroyIndex(table, attrName string) error {
	tm, err := e.lookupTable(table)
	if err != nil {
		return fmt.Errorf("rm destroyIndex: %w", err)
	}
	pos, err := e.GetAttributeIndex(table, attrName)
	if err != nil {
		return fmt.Errorf("rm destroyIndex: %w", err)
	}
	idx, exists := tm.Indices[int32(pos)]
	if !exists {
		return fmt.Errorf("rm destroyIndex %s.%s: %w", table, attrName, ErrIndexNotFound)
	}
	if err := e.destroyIndexFiles(tm, idx); err != nil {
		return fmt.Errorf("rm destroyIndex %s.%s: %w", table, attrName, err)
	}
	if err := e.indices.DeleteRecord(idx.RID); err != nil {
		return fmt.Errorf("rm destroyIndex %s.%s: %w", table, attrName, err)
	}
	delete(tm.Indices, int32(pos))
	return nil
}
