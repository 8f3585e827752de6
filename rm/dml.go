package rm

import (
	"fmt"

	"github.com/malzahar-db/sgbd/ix"
	"github.com/malzahar-db/sgbd/rbfm"
)

func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case int32:
		bv, ok := b.(int32)
		return ok && av == bv
	case float32:
		bv, ok := b.(float32)
		if !ok {
			return false
		}
		d := av - bv
		if d < 0 {
			d = -d
		}
		return d <= 1e-5
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	default:
		return false
	}
}

// InsertTuple inserts data into table and into every index defined on
// it (spec.md §4.4).
func (e *Engine) InsertTuple(table string, data []byte) (rbfm.RID, error) {
	if isReservedName(table) {
		return rbfm.RID{}, fmt.Errorf("rm insertTuple %s: %w", table, ErrSystemTable)
	}
	tm, err := e.lookupTable(table)
	if err != nil {
		return rbfm.RID{}, fmt.Errorf("rm insertTuple: %w", err)
	}
	f, err := e.openTableFile(tm)
	if err != nil {
		return rbfm.RID{}, fmt.Errorf("rm insertTuple %s: %w", table, err)
	}
	desc := tm.descriptor()
	rid, err := f.InsertRecord(desc, data)
	if err != nil {
		return rbfm.RID{}, fmt.Errorf("rm insertTuple %s: %w", table, err)
	}

	for pos, idx := range tm.Indices {
		_, raw, err := rbfm.FieldValue(desc, data, int(pos))
		if err != nil {
			return rbfm.RID{}, fmt.Errorf("rm insertTuple %s: %w", table, err)
		}
		idxFile, err := e.openIndexFile(table, idx.ColumnName, desc[pos].Type)
		if err != nil {
			return rbfm.RID{}, fmt.Errorf("rm insertTuple %s: %w", table, err)
		}
		if err := idxFile.Insert(raw, ix.RID{Page: rid.Page, Slot: rid.Slot}); err != nil {
			return rbfm.RID{}, fmt.Errorf("rm insertTuple %s: %w", table, err)
		}
	}
	return rid, nil
}

// DeleteTuple removes rid from table and from every index defined on it.
func (e *Engine) DeleteTuple(table string, rid rbfm.RID) error {
	if isReservedName(table) {
		return fmt.Errorf("rm deleteTuple %s: %w", table, ErrSystemTable)
	}
	tm, err := e.lookupTable(table)
	if err != nil {
		return fmt.Errorf("rm deleteTuple: %w", err)
	}
	f, err := e.openTableFile(tm)
	if err != nil {
		return fmt.Errorf("rm deleteTuple %s: %w", table, err)
	}
	desc := tm.descriptor()

	if len(tm.Indices) > 0 {
		old, err := f.ReadRecord(desc, rid)
		if err != nil {
			return fmt.Errorf("rm deleteTuple %s: %w", table, err)
		}
		for pos, idx := range tm.Indices {
			_, raw, err := rbfm.FieldValue(desc, old, int(pos))
			if err != nil {
				return fmt.Errorf("rm deleteTuple %s: %w", table, err)
			}
			idxFile, err := e.openIndexFile(table, idx.ColumnName, desc[pos].Type)
			if err != nil {
				return fmt.Errorf("rm deleteTuple %s: %w", table, err)
			}
			if err := idxFile.Delete(raw, ix.RID{Page: rid.Page, Slot: rid.Slot}); err != nil {
				return fmt.Errorf("rm deleteTuple %s: %w", table, err)
			}
		}
	}

	if err := f.DeleteRecord(rid); err != nil {
		return fmt.Errorf("rm deleteTuple %s: %w", table, err)
	}
	return nil
}

// UpdateTuple replaces the tuple at rid with data, updating every index
// whose indexed field's value actually changed (spec.md §4.4: numeric
// equality uses the same 10⁻⁵ tolerance as rbfm scan).
func (e *Engine) UpdateTuple(table string, data []byte, rid rbfm.RID) error {
	if isReservedName(table) {
		return fmt.Errorf("rm updateTuple %s: %w", table, ErrSystemTable)
	}
	tm, err := e.lookupTable(table)
	if err != nil {
		return fmt.Errorf("rm updateTuple: %w", err)
	}
	f, err := e.openTableFile(tm)
	if err != nil {
		return fmt.Errorf("rm updateTuple %s: %w", table, err)
	}
	desc := tm.descriptor()

	var old []byte
	if len(tm.Indices) > 0 {
		old, err = f.ReadRecord(desc, rid)
		if err != nil {
			return fmt.Errorf("rm updateTuple %s: %w", table, err)
		}
	}

	if err := f.UpdateRecord(desc, data, rid); err != nil {
		return fmt.Errorf("rm updateTuple %s: %w", table, err)
	}

	for pos, idx := range tm.Indices {
		oldVal, oldRaw, err := rbfm.FieldValue(desc, old, int(pos))
		if err != nil {
			return fmt.Errorf("rm updateTuple %s: %w", table, err)
		}
		newVal, newRaw, err := rbfm.FieldValue(desc, data, int(pos))
		if err != nil {
			return fmt.Errorf("rm updateTuple %s: %w", table, err)
		}
		if valuesEqual(oldVal, newVal) {
			continue
		}
		idxFile, err := e.openIndexFile(table, idx.ColumnName, desc[pos].Type)
		if err != nil {
			return fmt.Errorf("rm updateTuple %s: %w", table, err)
		}
		if err := idxFile.Delete(oldRaw, ix.RID{Page: rid.Page, Slot: rid.Slot}); err != nil {
			return fmt.Errorf("rm updateTuple %s: %w", table, err)
		}
		if err := idxFile.Insert(newRaw, ix.RID{Page: rid.Page, Slot: rid.Slot}); err != nil {
			return fmt.Errorf("rm updateTuple %s: %w", table, err)
		}
	}
	return nil
}

// Scan opens a predicate/projection scan over table, delegating
// directly to rbfm.
func (e *Engine) Scan(table, condAttr string, compOp rbfm.CompOp, value []byte, attrNames []string) (*rbfm.ScanIterator, error) {
	tm, err := e.lookupTable(table)
	if err != nil {
		return nil, fmt.Errorf("rm scan: %w", err)
	}
	f, err := e.openTableFile(tm)
	if err != nil {
		return nil, fmt.Errorf("rm scan %s: %w", table, err)
	}
	return f.Scan(tm.descriptor(), condAttr, compOp, value, attrNames)
}
