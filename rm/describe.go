package rm

import (
	"fmt"
	"sort"
	"strings"
)

// DescribeTable renders a table's columns (in ColumnPosition order) and
// any indices defined on it, for the cmd/sgbdctl describe command.
// Read-only; touches no data file.
func (e *Engine) DescribeTable(name string) (string, error) {
	tm, err := e.lookupTable(name)
	if err != nil {
		return "", fmt.Errorf("rm describeTable: %w", err)
	}

	var b strings.Builder
	kind := "User"
	if tm.IsSystem {
		kind = "System"
	}
	fmt.Fprintf(&b, "table %s (id=%d, %s, file=%s)\n", tm.Name, tm.ID, kind, tm.FileName)
	for _, c := range tm.Columns {
		typeName := attrTypeName(c.Type)
		if typeName == "VarChar" {
			fmt.Fprintf(&b, "  %d: %s %s(%d)\n", c.Position, c.Name, typeName, c.MaxLength)
		} else {
			fmt.Fprintf(&b, "  %d: %s %s\n", c.Position, c.Name, typeName)
		}
	}
	if len(tm.Indices) == 0 {
		fmt.Fprintf(&b, "  (no indices)\n")
		return b.String(), nil
	}
	positions := make([]int32, 0, len(tm.Indices))
	for pos := range tm.Indices {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	for _, pos := range positions {
		idx := tm.Indices[pos]
		fmt.Fprintf(&b, "  index on %s (%s_%s.idx)\n", idx.ColumnName, tm.Name, idx.ColumnName)
	}
	return b.String(), nil
}

// DescribeAllTables lists every table's name, in no particular order
// beyond a stable sort by name, for cmd/sgbdctl's "DESCRIBE TABLES".
func (e *Engine) DescribeAllTables() string {
	names := make([]string, 0, len(e.tablesByName))
	for name := range e.tablesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		tm := e.tablesByName[name]
		kind := "User"
		if tm.IsSystem {
			kind = "System"
		}
		fmt.Fprintf(&b, "%s (id=%d, %s, %d columns)\n", name, tm.ID, kind, len(tm.Columns))
	}
	return b.String()
}
