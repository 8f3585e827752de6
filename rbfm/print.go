package rbfm

import (
	"fmt"
	"strings"
)

// PrintRecord renders an externally-formatted record as a debug string of
// the form "attr1: value1, attr2: value2, ...". It does not touch disk.
// Supplemented from original_source/assignment_1_rbf/rbfm.h's
// printRecord; sgbdctl's SELECT uses it to render each result row.
func PrintRecord(descriptor []Attribute, data []byte) (string, error) {
	var b strings.Builder
	for i, a := range descriptor {
		start, end, err := fieldBounds(descriptor, data, i)
		if err != nil {
			return "", fmt.Errorf("rbfm printRecord: %w", err)
		}
		v, err := decodeValue(a, data[start:end])
		if err != nil {
			return "", fmt.Errorf("rbfm printRecord: %w", err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Name, v)
	}
	return b.String(), nil
}
