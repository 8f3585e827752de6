package rbfm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// fieldBounds returns the [start, end) external-byte-offset of attribute i
// within an externally-formatted record.
func fieldBounds(descriptor []Attribute, data []byte, i int) (int, int, error) {
	off := 0
	for j, a := range descriptor {
		var l int
		switch a.Type {
		case TypeInt, TypeReal:
			l = 4
		case TypeVarChar:
			if off+4 > len(data) {
				return 0, 0, fmt.Errorf("rbfm: truncated varchar length at attribute %d", j)
			}
			n := int(binary.LittleEndian.Uint32(data[off:]))
			l = 4 + n
		default:
			return 0, 0, fmt.Errorf("rbfm: unknown attribute type for %s", a.Name)
		}
		if off+l > len(data) {
			return 0, 0, fmt.Errorf("rbfm: truncated record at attribute %d", j)
		}
		if j == i {
			return off, off + l, nil
		}
		off += l
	}
	return 0, 0, fmt.Errorf("rbfm: %w: index %d", ErrUnknownAttr, i)
}

// encodeRecord converts an externally-formatted record into its on-page
// payload: [tombFlag=0][off_0]...[off_{N-1}][endOffset][field bytes...].
// Offsets are relative to the start of the payload (the tombFlag).
func encodeRecord(descriptor []Attribute, data []byte) ([]byte, error) {
	n := len(descriptor)
	dirSize := 2 + 2*(n+1)

	fields := make([][]byte, n)
	for i := range descriptor {
		start, end, err := fieldBounds(descriptor, data, i)
		if err != nil {
			return nil, err
		}
		fields[i] = data[start:end]
	}

	total := dirSize
	for _, f := range fields {
		total += len(f)
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], 0) // tombFlag = 0 (not a tombstone)
	pos := dirSize
	for i, f := range fields {
		binary.LittleEndian.PutUint16(buf[2+2*i:], uint16(pos))
		copy(buf[pos:], f)
		pos += len(f)
	}
	binary.LittleEndian.PutUint16(buf[2+2*n:], uint16(pos)) // endOffset
	return buf, nil
}

// isTombstone reports whether an on-page payload is a tombstone stub.
func isTombstone(payload []byte) bool {
	return len(payload) >= 2 && int16(binary.LittleEndian.Uint16(payload[0:2])) == -1
}

// makeTombstone builds the fixed 10-byte tombstone payload pointing at fwd.
func makeTombstone(fwd RID) []byte {
	buf := make([]byte, tombstoneLength)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(int16(-1)))
	binary.LittleEndian.PutUint32(buf[2:6], fwd.Page)
	binary.LittleEndian.PutUint32(buf[6:10], fwd.Slot)
	return buf
}

// readTombstone decodes a tombstone payload's forwarding RID.
func readTombstone(payload []byte) RID {
	return RID{
		Page: binary.LittleEndian.Uint32(payload[2:6]),
		Slot: binary.LittleEndian.Uint32(payload[6:10]),
	}
}

// fieldOffset returns directory offset k (0 <= k <= N) from a decoded
// payload's directory, where N is the number of descriptor attributes.
func fieldOffset(payload []byte, k int) int {
	return int(binary.LittleEndian.Uint16(payload[2+2*k:]))
}

// decodeRecord converts an on-page payload back into external format.
func decodeRecord(descriptor []Attribute, payload []byte) ([]byte, error) {
	n := len(descriptor)
	out := make([]byte, 0, len(payload))
	for i := range descriptor {
		start := fieldOffset(payload, i)
		end := fieldOffset(payload, i+1)
		if start < 0 || end > len(payload) || end < start {
			return nil, fmt.Errorf("rbfm: corrupt record directory at attribute %d", i)
		}
		out = append(out, payload[start:end]...)
	}
	_ = n
	return out, nil
}

// decodeAttribute extracts a single attribute's external bytes (length
// prefix included for VarChar) from a decoded payload.
func decodeAttribute(payload []byte, k int) ([]byte, error) {
	start := fieldOffset(payload, k)
	end := fieldOffset(payload, k+1)
	if start < 0 || end > len(payload) || end < start {
		return nil, fmt.Errorf("rbfm: corrupt record directory at attribute %d", k)
	}
	return payload[start:end], nil
}

// FieldValue extracts attribute i's raw external bytes (length prefix
// included for VarChar) and its decoded Go value from an externally
// formatted tuple. Callers that need to feed a field straight into an ix
// key (same external byte layout) can use the raw bytes directly.
func FieldValue(descriptor []Attribute, data []byte, i int) (interface{}, []byte, error) {
	start, end, err := fieldBounds(descriptor, data, i)
	if err != nil {
		return nil, nil, err
	}
	raw := data[start:end]
	v, err := decodeValue(descriptor[i], raw)
	if err != nil {
		return nil, nil, err
	}
	return v, raw, nil
}

// decodeValue renders a single attribute's external bytes as a Go value
// for comparisons and for PrintRecord.
func decodeValue(a Attribute, raw []byte) (interface{}, error) {
	switch a.Type {
	case TypeInt:
		if len(raw) < 4 {
			return nil, fmt.Errorf("rbfm: truncated int for %s", a.Name)
		}
		return int32(binary.LittleEndian.Uint32(raw)), nil
	case TypeReal:
		if len(raw) < 4 {
			return nil, fmt.Errorf("rbfm: truncated real for %s", a.Name)
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(raw)), nil
	case TypeVarChar:
		if len(raw) < 4 {
			return nil, fmt.Errorf("rbfm: truncated varchar for %s", a.Name)
		}
		n := int(binary.LittleEndian.Uint32(raw))
		if len(raw) < 4+n {
			return nil, fmt.Errorf("rbfm: truncated varchar body for %s", a.Name)
		}
		return string(raw[4 : 4+n]), nil
	default:
		return nil, fmt.Errorf("rbfm: unknown attribute type for %s", a.Name)
	}
}
