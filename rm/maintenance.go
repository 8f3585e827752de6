package rm

import "fmt"

// CompactAll reorganizes every table's data file (the three catalogs
// included), reclaiming space left behind by deletes. It is the backing
// operation for cmd/sgbdctl's "compact" maintenance command; nothing in
// the core DDL/DML path calls it, since spec.md's concurrency model
// allows at most one page touched per operation and reorganization
// rewrites an entire file.
func (e *Engine) CompactAll() (int, error) {
	if err := e.tables.ReorganizeFile(); err != nil {
		return 0, fmt.Errorf("rm compactAll: tables: %w", err)
	}
	if err := e.columns.ReorganizeFile(); err != nil {
		return 0, fmt.Errorf("rm compactAll: columns: %w", err)
	}
	if err := e.indices.ReorganizeFile(); err != nil {
		return 0, fmt.Errorf("rm compactAll: indices: %w", err)
	}

	n := 0
	for name, tm := range e.tablesByName {
		f, err := e.openTableFile(tm)
		if err != nil {
			return n, fmt.Errorf("rm compactAll: %s: %w", name, err)
		}
		if err := f.ReorganizeFile(); err != nil {
			return n, fmt.Errorf("rm compactAll: %s: %w", name, err)
		}
		n++
	}
	return n, nil
}
