package ix

import (
	"errors"
	"fmt"
)

// ErrScanEOF signals a range scan has no further entries.
var ErrScanEOF = errors.New("ix: scan exhausted")

// RangeScanIterator walks the leaf chain between an optional low and high
// bound, per spec.md §4.3.6.
type RangeScanIterator struct {
	f         *File
	highKey   []byte
	highIncl  bool
	lp        *leafPage
	idx       int
	exhausted bool
}

// RangeScan returns an iterator over keys in [low, high] (bounds optional,
// inclusivity controlled independently per side). A nil low starts at the
// leftmost leaf; a nil high scans to the end of the chain.
func (f *File) RangeScan(externalLow, externalHigh []byte, lowIncl, highIncl bool) (*RangeScanIterator, error) {
	var lowKey, highKey []byte
	var err error
	if externalLow != nil {
		lowKey, err = toPageKey(f.keyType, externalLow)
		if err != nil {
			return nil, fmt.Errorf("ix rangeScan: %w", err)
		}
	}
	if externalHigh != nil {
		highKey, err = toPageKey(f.keyType, externalHigh)
		if err != nil {
			return nil, fmt.Errorf("ix rangeScan: %w", err)
		}
	}

	root, err := f.rootPage()
	if err != nil {
		return nil, fmt.Errorf("ix rangeScan: %w", err)
	}

	var startLeaf uint32
	if lowKey != nil {
		_, leafNum, err := f.descendToLeaf(root, lowKey)
		if err != nil {
			return nil, fmt.Errorf("ix rangeScan: %w", err)
		}
		startLeaf = leafNum
	} else {
		cur := root
		for {
			buf, err := f.readPage(cur)
			if err != nil {
				return nil, fmt.Errorf("ix rangeScan: %w", err)
			}
			if pageKind(buf) == kindLeaf {
				startLeaf = cur
				break
			}
			cur = wrapInterior(buf).FirstChild()
		}
	}

	buf, err := f.readPage(startLeaf)
	if err != nil {
		return nil, fmt.Errorf("ix rangeScan: %w", err)
	}
	lp := wrapLeaf(buf)

	idx := 0
	if lowKey != nil {
		i, found := leafFindPos(lp, f.keyType, lowKey)
		if found && !lowIncl {
			i++
		}
		idx = i
	}

	return &RangeScanIterator{f: f, highKey: highKey, highIncl: highIncl, lp: lp, idx: idx}, nil
}

// Next returns the next (key, rid) pair in ascending order, or ErrScanEOF
// once the high bound (or the end of the leaf chain) is reached.
func (it *RangeScanIterator) Next() ([]byte, RID, error) {
	if it.exhausted {
		return nil, RID{}, ErrScanEOF
	}
	for {
		if it.idx >= it.lp.NumRecords() {
			next := it.lp.Next()
			if next == noPage {
				it.exhausted = true
				return nil, RID{}, ErrScanEOF
			}
			buf, err := it.f.readPage(next)
			if err != nil {
				return nil, RID{}, fmt.Errorf("ix scan next: %w", err)
			}
			it.lp = wrapLeaf(buf)
			it.idx = 0
			continue
		}

		key := it.lp.KeyAt(it.idx)
		if it.highKey != nil {
			c := compareKeys(it.f.keyType, key, it.highKey)
			if c > 0 || (c == 0 && !it.highIncl) {
				it.exhausted = true
				return nil, RID{}, ErrScanEOF
			}
		}

		rid := it.lp.RIDAt(it.idx)
		out := append([]byte{}, key...)
		it.idx++
		return out, rid, nil
	}
}
