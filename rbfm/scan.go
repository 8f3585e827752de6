package rbfm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrScanEOF is returned by ScanIterator.Next when the scan is exhausted.
var ErrScanEOF = errors.New("rbfm: scan EOF")

// ScanIterator walks a data file's pages and slots, evaluating a
// predicate and emitting a projection for each matching live record.
type ScanIterator struct {
	file        *File
	descriptor  []Attribute
	condIdx     int // -1 for NoOp
	compOp      CompOp
	value       interface{}
	projAttrs   []string
	projIdx     []int
	page        int
	slot        int
	pageCount   int
	forwardMap map[RID]RID
	buf        []byte
	slotCount  uint16
}

// Scan opens a scan over f. condAttr/compOp/value select the predicate
// (value may be nil for NO_OP, which always matches); attrNames lists the
// projected attributes in output order.
func (f *File) Scan(descriptor []Attribute, condAttr string, compOp CompOp, value []byte, attrNames []string) (*ScanIterator, error) {
	condIdx := -1
	if compOp != NoOp {
		for i, a := range descriptor {
			if a.Name == condAttr {
				condIdx = i
				break
			}
		}
		if condIdx < 0 {
			return nil, fmt.Errorf("rbfm scan: %w: %s", ErrUnknownAttr, condAttr)
		}
	}

	var decodedValue interface{}
	if value != nil && compOp != NoOp {
		v, err := decodeValue(descriptor[condIdx], value)
		if err != nil {
			return nil, fmt.Errorf("rbfm scan: %w", err)
		}
		decodedValue = v
	}

	projIdx := make([]int, len(attrNames))
	for i, name := range attrNames {
		idx := -1
		for j, a := range descriptor {
			if a.Name == name {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("rbfm scan: %w: %s", ErrUnknownAttr, name)
		}
		projIdx[i] = idx
	}

	n, err := f.data.PageCount()
	if err != nil {
		return nil, fmt.Errorf("rbfm scan: %w", err)
	}

	return &ScanIterator{
		file:       f,
		descriptor: descriptor,
		condIdx:    condIdx,
		compOp:     compOp,
		value:      decodedValue,
		projAttrs:  attrNames,
		projIdx:    projIdx,
		page:       0,
		slot:       1,
		pageCount:  n,
		forwardMap: make(map[RID]RID),
	}, nil
}

func (it *ScanIterator) loadPage() error {
	buf := make([]byte, pageSizeBytes())
	if err := it.file.data.ReadPage(it.page, buf); err != nil {
		return err
	}
	it.buf = buf
	_, slotCount, _ := getFooter(buf)
	it.slotCount = slotCount
	return nil
}

// Next returns the RID and projection buffer of the next matching record,
// or ErrScanEOF when all pages have been exhausted.
func (it *ScanIterator) Next() (RID, []byte, error) {
	for {
		if it.page >= it.pageCount {
			return RID{}, nil, ErrScanEOF
		}
		if it.buf == nil {
			if err := it.loadPage(); err != nil {
				return RID{}, nil, fmt.Errorf("rbfm scan: %w", err)
			}
		}
		if it.slot > int(it.slotCount) {
			it.page++
			it.slot = 1
			it.buf = nil
			continue
		}

		s := it.slot
		it.slot++
		begin, end := getSlot(it.buf, s)
		if isDeleted(begin) || isRecycled(begin, end) {
			continue
		}
		payload := it.buf[begin:end]
		here := RID{Page: uint32(it.page), Slot: uint32(s)}

		if isTombstone(payload) {
			fwd := readTombstone(payload)
			it.forwardMap[fwd] = here
			continue
		}

		reportRID := here
		if orig, ok := it.forwardMap[here]; ok {
			reportRID = orig
		}

		if it.condIdx >= 0 {
			raw, err := decodeAttribute(payload, it.condIdx)
			if err != nil {
				return RID{}, nil, fmt.Errorf("rbfm scan: %w", err)
			}
			v, err := decodeValue(it.descriptor[it.condIdx], raw)
			if err != nil {
				return RID{}, nil, fmt.Errorf("rbfm scan: %w", err)
			}
			if it.value != nil && !compareMatches(v, it.value, it.compOp) {
				continue
			}
		}

		out := make([]byte, 0, len(payload))
		for _, idx := range it.projIdx {
			raw, err := decodeAttribute(payload, idx)
			if err != nil {
				return RID{}, nil, fmt.Errorf("rbfm scan: %w", err)
			}
			out = append(out, raw...)
		}
		return reportRID, out, nil
	}
}

// compareMatches evaluates a decoded attribute value against a decoded
// literal using the given comparison operator. Real equality uses an
// absolute tolerance of 1e-5.
func compareMatches(v, lit interface{}, op CompOp) bool {
	if op == NoOp {
		return true
	}
	switch a := v.(type) {
	case int32:
		b := lit.(int32)
		return intCompare(int64(a), int64(b), op)
	case float32:
		b := lit.(float32)
		return realCompare(a, b, op)
	case string:
		b := lit.(string)
		return stringCompare(a, b, op)
	default:
		return false
	}
}

func intCompare(a, b int64, op CompOp) bool {
	switch op {
	case EQ:
		return a == b
	case LT:
		return a < b
	case GT:
		return a > b
	case LE:
		return a <= b
	case GE:
		return a >= b
	case NE:
		return a != b
	default:
		return true
	}
}

const realTolerance = 1e-5

func realCompare(a, b float32, op CompOp) bool {
	diff := float64(a) - float64(b)
	if diff < 0 {
		diff = -diff
	}
	switch op {
	case EQ:
		return diff <= realTolerance
	case LT:
		return a < b
	case GT:
		return a > b
	case LE:
		return a <= b || diff <= realTolerance
	case GE:
		return a >= b || diff <= realTolerance
	case NE:
		return diff > realTolerance
	default:
		return true
	}
}

func stringCompare(a, b string, op CompOp) bool {
	switch op {
	case EQ:
		return a == b
	case LT:
		return a < b
	case GT:
		return a > b
	case LE:
		return a <= b
	case GE:
		return a >= b
	case NE:
		return a != b
	default:
		return true
	}
}

// EncodeInt/EncodeReal/EncodeVarChar build external-format single-value
// buffers, used by callers (e.g. rm) that need to pass a literal into
// Scan without hand-rolling the binary layout.

func EncodeInt(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

func EncodeReal(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

func EncodeVarChar(s string) []byte {
	buf := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return buf
}
