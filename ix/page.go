package ix

import (
	"encoding/binary"

	"github.com/malzahar-db/sgbd/pfm"
)

// Page layout (spec.md §3, §4.3.1):
//
//   Leaf page header (17 bytes):
//     [0]    pageType (1 = leaf)
//     [1:5]  overflow (reserved, always 0 — Open Question (a))
//     [5:9]  next leaf page number (noPage = none)
//     [9:13] prev leaf page number (noPage = none)
//     [13:15] numRecords (uint16)
//     [15:17] tailOffset (uint16) — lowest byte currently used by record
//             data, which grows downward from the page end.
//
//   Interior page header (9 bytes):
//     [0]   pageType (0 = interior)
//     [1:5] firstChild page number
//     [5:7] numRecords (uint16)
//     [7:9] tailOffset (uint16)
//
// In both kinds, the slot directory starts immediately after the header
// and grows forward; each slot is 4 bytes: [offset uint16][totalLen
// uint16]. A leaf's record blob at [offset, offset+totalLen) is
// [keyBytes][pageNum uint32][slotNum uint32] (totalLen = keyLen+8). An
// interior's record blob is [keyBytes][childPage uint32] (totalLen =
// keyLen+4). This mirrors internal/storage/pager/btree_page.go's
// technique of laying custom header fields before a generic slotted-page
// directory, adapted to spec.md's exact field list.

const (
	kindInterior = 0
	kindLeaf     = 1

	leafHeaderSize     = 17
	interiorHeaderSize = 9
	ixSlotSize         = 4
	leafTrailerSize    = 8 // RID: pageNum(4) + slotNum(4)
	interiorTrailer    = 4 // childPage(4)
)

func leU16(buf []byte, off int) uint16 { return binary.LittleEndian.Uint16(buf[off:]) }
func putLeU16(buf []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:], v)
}
func leU32(buf []byte, off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }
func putLeU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

func pageKind(buf []byte) byte { return buf[0] }

// --- slot directory, shared by both page kinds ---

func getSlotEntry(buf []byte, headerSize, i int) (offset, totalLen uint16) {
	off := headerSize + i*ixSlotSize
	return leU16(buf, off), leU16(buf, off+2)
}

func setSlotEntry(buf []byte, headerSize, i int, offset, totalLen uint16) {
	off := headerSize + i*ixSlotSize
	putLeU16(buf, off, offset)
	putLeU16(buf, off+2, totalLen)
}

func slotDirEnd(headerSize, numRecords int) int {
	return headerSize + numRecords*ixSlotSize
}

// --- leaf page ---

type leafPage struct{ buf []byte }

func newLeafPage() *leafPage {
	buf := make([]byte, pfm.PageSize)
	buf[0] = kindLeaf
	p := &leafPage{buf: buf}
	p.setTailOffset(uint16(pfm.PageSize))
	return p
}

func wrapLeaf(buf []byte) *leafPage { return &leafPage{buf: buf} }

func (p *leafPage) NumRecords() int        { return int(leU16(p.buf, 13)) }
func (p *leafPage) setNumRecords(n int)    { putLeU16(p.buf, 13, uint16(n)) }
func (p *leafPage) TailOffset() uint16     { return leU16(p.buf, 15) }
func (p *leafPage) setTailOffset(v uint16) { putLeU16(p.buf, 15, v) }
func (p *leafPage) Next() uint32           { return leU32(p.buf, 5) }
func (p *leafPage) setNext(v uint32)       { putLeU32(p.buf, 5, v) }
func (p *leafPage) Prev() uint32           { return leU32(p.buf, 9) }
func (p *leafPage) setPrev(v uint32)       { putLeU32(p.buf, 9, v) }

func (p *leafPage) KeyAt(i int) []byte {
	off, total := getSlotEntry(p.buf, leafHeaderSize, i)
	return p.buf[off : int(off)+int(total)-leafTrailerSize]
}

func (p *leafPage) RIDAt(i int) RID {
	off, total := getSlotEntry(p.buf, leafHeaderSize, i)
	start := int(off) + int(total) - leafTrailerSize
	return RID{Page: leU32(p.buf, start), Slot: leU32(p.buf, start+4)}
}

// freeBytes returns the bytes available between the slot directory end
// and the current tail.
func (p *leafPage) freeBytes() int {
	return int(p.TailOffset()) - slotDirEnd(leafHeaderSize, p.NumRecords())
}

// insertAt inserts (key, rid) as record i (0-based, shifting later
// records up by one slot), assuming the caller has already verified
// there is room. i must be in [0, NumRecords()].
func (p *leafPage) insertAt(i int, key []byte, rid RID) {
	n := p.NumRecords()
	total := len(key) + leafTrailerSize
	newTail := p.TailOffset() - uint16(total)

	blob := make([]byte, total)
	copy(blob, key)
	putLeU32(blob, len(key), rid.Page)
	putLeU32(blob, len(key)+4, rid.Slot)
	copy(p.buf[newTail:], blob)

	for j := n; j > i; j-- {
		off, tot := getSlotEntry(p.buf, leafHeaderSize, j-1)
		setSlotEntry(p.buf, leafHeaderSize, j, off, tot)
	}
	setSlotEntry(p.buf, leafHeaderSize, i, newTail, uint16(total))
	p.setTailOffset(newTail)
	p.setNumRecords(n + 1)
}

// deleteAt removes record i, left-shifting the slot directory.
func (p *leafPage) deleteAt(i int) {
	n := p.NumRecords()
	for j := i; j < n-1; j++ {
		off, tot := getSlotEntry(p.buf, leafHeaderSize, j+1)
		setSlotEntry(p.buf, leafHeaderSize, j, off, tot)
	}
	p.setNumRecords(n - 1)
}

// compact rewrites live record blobs contiguously at the tail, reclaiming
// space left behind by deletes (spec.md §4.3.7: same algorithm as RBFM's
// reorganize, without the recycled-slot concept since index pages never
// tombstone entries).
func (p *leafPage) compact() {
	n := p.NumRecords()
	type rec struct {
		off, tot uint16
	}
	entries := make([]rec, n)
	for i := 0; i < n; i++ {
		off, tot := getSlotEntry(p.buf, leafHeaderSize, i)
		entries[i] = rec{off, tot}
	}
	blobs := make([][]byte, n)
	for i, e := range entries {
		b := make([]byte, e.tot)
		copy(b, p.buf[e.off:int(e.off)+int(e.tot)])
		blobs[i] = b
	}
	tail := uint16(pfm.PageSize)
	for i := n - 1; i >= 0; i-- {
		tail -= uint16(len(blobs[i]))
		copy(p.buf[tail:], blobs[i])
		setSlotEntry(p.buf, leafHeaderSize, i, tail, uint16(len(blobs[i])))
	}
	p.setTailOffset(tail)
}

// --- interior page ---

type interiorPage struct{ buf []byte }

func newInteriorPage() *interiorPage {
	buf := make([]byte, pfm.PageSize)
	buf[0] = kindInterior
	p := &interiorPage{buf: buf}
	p.setTailOffset(uint16(pfm.PageSize))
	return p
}

func wrapInterior(buf []byte) *interiorPage { return &interiorPage{buf: buf} }

func (p *interiorPage) NumRecords() int        { return int(leU16(p.buf, 5)) }
func (p *interiorPage) setNumRecords(n int)    { putLeU16(p.buf, 5, uint16(n)) }
func (p *interiorPage) TailOffset() uint16     { return leU16(p.buf, 7) }
func (p *interiorPage) setTailOffset(v uint16) { putLeU16(p.buf, 7, v) }
func (p *interiorPage) FirstChild() uint32     { return leU32(p.buf, 1) }
func (p *interiorPage) setFirstChild(v uint32) { putLeU32(p.buf, 1, v) }

func (p *interiorPage) KeyAt(i int) []byte {
	off, total := getSlotEntry(p.buf, interiorHeaderSize, i)
	return p.buf[off : int(off)+int(total)-interiorTrailer]
}

// RightChildAt returns the child pointer to the right of separator i
// (i.e. containing keys >= KeyAt(i) and below the next separator).
func (p *interiorPage) RightChildAt(i int) uint32 {
	off, total := getSlotEntry(p.buf, interiorHeaderSize, i)
	start := int(off) + int(total) - interiorTrailer
	return leU32(p.buf, start)
}

func (p *interiorPage) freeBytes() int {
	return int(p.TailOffset()) - slotDirEnd(interiorHeaderSize, p.NumRecords())
}

func (p *interiorPage) insertAt(i int, key []byte, rightChild uint32) {
	n := p.NumRecords()
	total := len(key) + interiorTrailer
	newTail := p.TailOffset() - uint16(total)

	blob := make([]byte, total)
	copy(blob, key)
	putLeU32(blob, len(key), rightChild)
	copy(p.buf[newTail:], blob)

	for j := n; j > i; j-- {
		off, tot := getSlotEntry(p.buf, interiorHeaderSize, j-1)
		setSlotEntry(p.buf, interiorHeaderSize, j, off, tot)
	}
	setSlotEntry(p.buf, interiorHeaderSize, i, newTail, uint16(total))
	p.setTailOffset(newTail)
	p.setNumRecords(n + 1)
}

func (p *interiorPage) compact() {
	n := p.NumRecords()
	type rec struct {
		off, tot uint16
	}
	entries := make([]rec, n)
	for i := 0; i < n; i++ {
		off, tot := getSlotEntry(p.buf, interiorHeaderSize, i)
		entries[i] = rec{off, tot}
	}
	blobs := make([][]byte, n)
	for i, e := range entries {
		b := make([]byte, e.tot)
		copy(b, p.buf[e.off:int(e.off)+int(e.tot)])
		blobs[i] = b
	}
	tail := uint16(pfm.PageSize)
	for i := n - 1; i >= 0; i-- {
		tail -= uint16(len(blobs[i]))
		copy(p.buf[tail:], blobs[i])
		setSlotEntry(p.buf, interiorHeaderSize, i, tail, uint16(len(blobs[i])))
	}
	p.setTailOffset(tail)
}
