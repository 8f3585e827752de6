package ix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// toPageKey strips the external format down to the raw on-page
// representation: Int/Real are already exactly 4 bytes; VarChar's
// 4-byte length prefix is stripped since the slot directory's length
// field already records it (spec.md §4.3.2).
func toPageKey(t AttrType, external []byte) ([]byte, error) {
	switch t {
	case TypeInt, TypeReal:
		if len(external) != 4 {
			return nil, fmt.Errorf("ix: key must be 4 bytes, got %d", len(external))
		}
		return external, nil
	case TypeVarChar:
		if len(external) < 4 {
			return nil, fmt.Errorf("ix: truncated varchar key")
		}
		n := int(binary.LittleEndian.Uint32(external))
		if len(external) < 4+n {
			return nil, fmt.Errorf("ix: truncated varchar key body")
		}
		return external[4 : 4+n], nil
	default:
		return nil, fmt.Errorf("ix: unknown key type")
	}
}

// compareKeys returns -1, 0, or 1. Int/Real use numeric order (strict,
// no tolerance: a B+-tree needs a total order, so the 10⁻⁵ Real equality
// tolerance described in spec.md §9 stays scoped to rbfm scan predicates
// and rm's changed-value check, not to index ordering). VarChar uses
// byte-lexicographic order.
func compareKeys(t AttrType, a, b []byte) int {
	switch t {
	case TypeInt:
		av := int32(binary.LittleEndian.Uint32(a))
		bv := int32(binary.LittleEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case TypeReal:
		av := math.Float32frombits(binary.LittleEndian.Uint32(a))
		bv := math.Float32frombits(binary.LittleEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default: // TypeVarChar
		return bytes.Compare(a, b)
	}
}
