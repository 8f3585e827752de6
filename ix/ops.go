package ix

import (
	"fmt"

	"github.com/malzahar-db/sgbd/pfm"
)

func (f *File) readPage(p uint32) ([]byte, error) {
	buf := make([]byte, pfm.PageSize)
	if err := f.h.ReadPage(int(p), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *File) writePage(p uint32, buf []byte) error {
	return f.h.WritePage(int(p), buf)
}

// findChildIndex returns the index of the largest separator key that is
// <= searchKey, or -1 if searchKey is smaller than every separator
// (meaning the descent should follow firstChild).
func findChildIndex(ip *interiorPage, t AttrType, key []byte) int {
	best := -1
	for i := 0; i < ip.NumRecords(); i++ {
		if compareKeys(t, ip.KeyAt(i), key) <= 0 {
			best = i
		} else {
			break
		}
	}
	return best
}

// interiorInsertPos returns the sorted position at which key should be
// inserted among existing separators.
func interiorInsertPos(ip *interiorPage, t AttrType, key []byte) int {
	for i := 0; i < ip.NumRecords(); i++ {
		if compareKeys(t, ip.KeyAt(i), key) >= 0 {
			return i
		}
	}
	return ip.NumRecords()
}

// leafFindPos returns the index of an exact key match (found=true), or
// the sorted insertion position (found=false): the index of the first
// key greater than key, i.e. one past its predecessor.
func leafFindPos(lp *leafPage, t AttrType, key []byte) (idx int, found bool) {
	for i := 0; i < lp.NumRecords(); i++ {
		c := compareKeys(t, lp.KeyAt(i), key)
		if c == 0 {
			return i, true
		}
		if c > 0 {
			return i, false
		}
	}
	return lp.NumRecords(), false
}

// descendToLeaf walks from root to the leaf that would hold key,
// returning the interior pages visited (root to the leaf's parent, in
// order) and the leaf's page number.
func (f *File) descendToLeaf(root uint32, key []byte) ([]uint32, uint32, error) {
	var path []uint32
	cur := root
	for {
		buf, err := f.readPage(cur)
		if err != nil {
			return nil, 0, err
		}
		if pageKind(buf) == kindLeaf {
			return path, cur, nil
		}
		ip := wrapInterior(buf)
		path = append(path, cur)
		idx := findChildIndex(ip, f.keyType, key)
		if idx < 0 {
			cur = ip.FirstChild()
		} else {
			cur = ip.RightChildAt(idx)
		}
	}
}

// Lookup returns the RID stored for key, following spec.md §4.3.3.
func (f *File) Lookup(externalKey []byte) (RID, bool, error) {
	key, err := toPageKey(f.keyType, externalKey)
	if err != nil {
		return RID{}, false, fmt.Errorf("ix lookup: %w", err)
	}
	root, err := f.rootPage()
	if err != nil {
		return RID{}, false, fmt.Errorf("ix lookup: %w", err)
	}
	_, leafNum, err := f.descendToLeaf(root, key)
	if err != nil {
		return RID{}, false, fmt.Errorf("ix lookup: %w", err)
	}
	buf, err := f.readPage(leafNum)
	if err != nil {
		return RID{}, false, fmt.Errorf("ix lookup: %w", err)
	}
	lp := wrapLeaf(buf)
	idx, found := leafFindPos(lp, f.keyType, key)
	if !found {
		return RID{}, false, nil
	}
	return lp.RIDAt(idx), true, nil
}

const maxKeyLen = pfm.PageSize - leafHeaderSize - ixSlotSize - leafTrailerSize - ixSlotSize

// Insert adds (key, rid) to the tree, per spec.md §4.3.4.
func (f *File) Insert(externalKey []byte, rid RID) error {
	key, err := toPageKey(f.keyType, externalKey)
	if err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}
	if len(key) > maxKeyLen {
		return fmt.Errorf("ix insert: %w", ErrKeyTooBig)
	}

	root, err := f.rootPage()
	if err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}
	path, leafNum, err := f.descendToLeaf(root, key)
	if err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}

	buf, err := f.readPage(leafNum)
	if err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}
	lp := wrapLeaf(buf)
	idx, found := leafFindPos(lp, f.keyType, key)
	if found {
		return fmt.Errorf("ix insert: %w", ErrDuplicateKey)
	}

	needed := len(key) + leafTrailerSize + ixSlotSize
	if lp.freeBytes() < needed {
		lp.compact()
	}
	if lp.freeBytes() >= needed {
		lp.insertAt(idx, key, rid)
		if err := f.writePage(leafNum, lp.buf); err != nil {
			return fmt.Errorf("ix insert: %w", err)
		}
		return nil
	}

	newLeafNum, upKey, err := f.splitLeafAndInsert(leafNum, lp, idx, key, rid)
	if err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}

	curUpKey, curNewChild := upKey, newLeafNum
	for i := len(path) - 1; i >= 0; i-- {
		pnum := path[i]
		ibuf, err := f.readPage(pnum)
		if err != nil {
			return fmt.Errorf("ix insert: %w", err)
		}
		ip := wrapInterior(ibuf)
		sidx := interiorInsertPos(ip, f.keyType, curUpKey)
		needed2 := len(curUpKey) + interiorTrailer + ixSlotSize
		if ip.freeBytes() < needed2 {
			ip.compact()
		}
		if ip.freeBytes() >= needed2 {
			ip.insertAt(sidx, curUpKey, curNewChild)
			if err := f.writePage(pnum, ip.buf); err != nil {
				return fmt.Errorf("ix insert: %w", err)
			}
			return nil
		}

		newIpNum, newUpKey, err := f.splitInteriorAndInsert(pnum, ip, sidx, curUpKey, curNewChild)
		if err != nil {
			return fmt.Errorf("ix insert: %w", err)
		}
		curUpKey, curNewChild = newUpKey, newIpNum
	}

	// The split propagated past the root: create a new root.
	newRoot := newInteriorPage()
	newRoot.setFirstChild(root)
	newRoot.insertAt(0, curUpKey, curNewChild)
	newRootNum, err := f.h.AppendPage(newRoot.buf)
	if err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}
	if err := f.setRootPage(uint32(newRootNum)); err != nil {
		return fmt.Errorf("ix insert: %w", err)
	}
	return nil
}

type leafEntry struct {
	key []byte
	rid RID
}

// splitLeafAndInsert splits leafNum's contents (plus the incoming entry
// at sorted index idx) across the original page and a newly appended
// page, maintaining the leaf chain's prev/next links, and returns the
// new page's number and the up-key to propagate.
func (f *File) splitLeafAndInsert(leafNum uint32, lp *leafPage, idx int, key []byte, rid RID) (uint32, []byte, error) {
	n := lp.NumRecords()
	entries := make([]leafEntry, 0, n+1)
	for i := 0; i < n; i++ {
		if i == idx {
			entries = append(entries, leafEntry{key: append([]byte{}, key...), rid: rid})
		}
		k := append([]byte{}, lp.KeyAt(i)...)
		entries = append(entries, leafEntry{key: k, rid: lp.RIDAt(i)})
	}
	if idx == n {
		entries = append(entries, leafEntry{key: append([]byte{}, key...), rid: rid})
	}

	mid := len(entries) / 2
	oldPrev := lp.Prev()
	oldNext := lp.Next()

	left := newLeafPage()
	left.setPrev(oldPrev)
	for i := 0; i < mid; i++ {
		left.insertAt(i, entries[i].key, entries[i].rid)
	}

	right := newLeafPage()
	right.setPrev(leafNum)
	right.setNext(oldNext)
	for i := mid; i < len(entries); i++ {
		right.insertAt(i-mid, entries[i].key, entries[i].rid)
	}

	rightNum, err := f.h.AppendPage(right.buf)
	if err != nil {
		return 0, nil, err
	}
	left.setNext(uint32(rightNum))
	if err := f.writePage(leafNum, left.buf); err != nil {
		return 0, nil, err
	}

	if oldNext != noPage {
		nbuf, err := f.readPage(oldNext)
		if err != nil {
			return 0, nil, err
		}
		nlp := wrapLeaf(nbuf)
		nlp.setPrev(uint32(rightNum))
		if err := f.writePage(oldNext, nlp.buf); err != nil {
			return 0, nil, err
		}
	}

	return uint32(rightNum), entries[mid].key, nil
}

type interiorEntry struct {
	key   []byte
	child uint32
}

// splitInteriorAndInsert splits pnum's separators (plus the incoming
// separator at sorted index sidx) across the original page and a newly
// appended page, returning the new page's number and the up-key to
// propagate one level higher.
func (f *File) splitInteriorAndInsert(pnum uint32, ip *interiorPage, sidx int, key []byte, rightChild uint32) (uint32, []byte, error) {
	n := ip.NumRecords()
	entries := make([]interiorEntry, 0, n+1)
	for i := 0; i < n; i++ {
		if i == sidx {
			entries = append(entries, interiorEntry{key: append([]byte{}, key...), child: rightChild})
		}
		k := append([]byte{}, ip.KeyAt(i)...)
		entries = append(entries, interiorEntry{key: k, child: ip.RightChildAt(i)})
	}
	if sidx == n {
		entries = append(entries, interiorEntry{key: append([]byte{}, key...), child: rightChild})
	}

	m := len(entries) / 2
	oldFirstChild := ip.FirstChild()

	newIp := newInteriorPage()
	newIp.setFirstChild(entries[m].child)
	for i := m + 1; i < len(entries); i++ {
		newIp.insertAt(i-(m+1), entries[i].key, entries[i].child)
	}
	newIpNum, err := f.h.AppendPage(newIp.buf)
	if err != nil {
		return 0, nil, err
	}

	rebuilt := newInteriorPage()
	rebuilt.setFirstChild(oldFirstChild)
	for i := 0; i < m; i++ {
		rebuilt.insertAt(i, entries[i].key, entries[i].child)
	}
	if err := f.writePage(pnum, rebuilt.buf); err != nil {
		return 0, nil, err
	}

	return uint32(newIpNum), entries[m].key, nil
}

// Delete removes the entry for key, verifying its stored RID matches rid
// (spec.md §4.3.5). No merging or underflow handling is performed.
func (f *File) Delete(externalKey []byte, rid RID) error {
	key, err := toPageKey(f.keyType, externalKey)
	if err != nil {
		return fmt.Errorf("ix delete: %w", err)
	}
	root, err := f.rootPage()
	if err != nil {
		return fmt.Errorf("ix delete: %w", err)
	}
	_, leafNum, err := f.descendToLeaf(root, key)
	if err != nil {
		return fmt.Errorf("ix delete: %w", err)
	}
	buf, err := f.readPage(leafNum)
	if err != nil {
		return fmt.Errorf("ix delete: %w", err)
	}
	lp := wrapLeaf(buf)
	idx, found := leafFindPos(lp, f.keyType, key)
	if !found {
		return fmt.Errorf("ix delete: %w", ErrNotFound)
	}
	stored := lp.RIDAt(idx)
	if stored != rid {
		return fmt.Errorf("ix delete: %w", ErrRIDMismatch)
	}
	lp.deleteAt(idx)
	if err := f.writePage(leafNum, lp.buf); err != nil {
		return fmt.Errorf("ix delete: %w", err)
	}
	return nil
}
