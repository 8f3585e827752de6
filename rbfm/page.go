package rbfm

import (
	"encoding/binary"

	"github.com/malzahar-db/sgbd/pfm"
)

// newPage returns a zeroed page buffer with an empty footer: reorgCount 0,
// slotCount 0, freeSpaceOffset 0.
func newPage() []byte {
	buf := make([]byte, pfm.PageSize)
	setFooter(buf, 0, 0, 0)
	return buf
}

func footerOffset() int { return pfm.PageSize - footerSize }

func getFooter(buf []byte) (reorgCount, slotCount, freeSpaceOffset uint16) {
	off := footerOffset()
	reorgCount = binary.LittleEndian.Uint16(buf[off:])
	slotCount = binary.LittleEndian.Uint16(buf[off+2:])
	freeSpaceOffset = binary.LittleEndian.Uint16(buf[off+4:])
	return
}

func setFooter(buf []byte, reorgCount, slotCount, freeSpaceOffset uint16) {
	off := footerOffset()
	binary.LittleEndian.PutUint16(buf[off:], reorgCount)
	binary.LittleEndian.PutUint16(buf[off+2:], slotCount)
	binary.LittleEndian.PutUint16(buf[off+4:], freeSpaceOffset)
}

// slotEntryOffset returns the byte offset of slot s (1-based) within buf.
func slotEntryOffset(s int) int {
	return footerOffset() - s*slotSize
}

// getSlot returns slot s's (beginAddr, endAddr). Both are signed; a
// negative beginAddr marks a deleted slot.
func getSlot(buf []byte, s int) (begin, end int16) {
	off := slotEntryOffset(s)
	begin = int16(binary.LittleEndian.Uint16(buf[off:]))
	end = int16(binary.LittleEndian.Uint16(buf[off+2:]))
	return
}

func setSlot(buf []byte, s int, begin, end int16) {
	off := slotEntryOffset(s)
	binary.LittleEndian.PutUint16(buf[off:], uint16(begin))
	binary.LittleEndian.PutUint16(buf[off+2:], uint16(end))
}

// isRecycled reports whether slot s is a recycled (0,0) slot holding no
// record.
func isRecycled(begin, end int16) bool { return begin == 0 && end == 0 }

// isDeleted reports whether slot s is a deleted (negative beginAddr) slot.
func isDeleted(begin int16) bool { return begin < 0 }

// slotDirStart is the lowest byte offset used by the slot directory, i.e.
// the boundary between free space and the slot directory for a page with
// slotCount entries.
func slotDirStart(slotCount uint16) int {
	return footerOffset() - int(slotCount)*slotSize
}

// computeFreeBytes derives the free-byte count for a page directly from
// its on-page state (P1): PAGE_SIZE - freeSpaceOffset - 6 - 4*slotCount,
// minus the reserved capacity of every deleted slot.
func computeFreeBytes(buf []byte) uint16 {
	_, slotCount, freeSpaceOffset := getFooter(buf)
	free := int(pfm.PageSize) - int(freeSpaceOffset) - footerSize - int(slotCount)*slotSize
	for s := 1; s <= int(slotCount); s++ {
		begin, end := getSlot(buf, s)
		if isDeleted(begin) {
			free -= int(end) - int(-begin)
		}
	}
	if free < 0 {
		free = 0
	}
	return uint16(free)
}

// reorganizePage rebuilds the page in place: slot count and order are
// retained, live records are compacted to the top of the page,
// freeSpaceOffset is reset, and deleted slots become recycled (0,0)
// slots. Reorg count is incremented.
func reorganizePage(buf []byte) {
	_, slotCount, _ := getFooter(buf)
	type liveSlot struct {
		idx     int
		payload []byte
	}
	var live []liveSlot
	for s := 1; s <= int(slotCount); s++ {
		begin, end := getSlot(buf, s)
		if isDeleted(begin) || isRecycled(begin, end) {
			continue
		}
		payload := make([]byte, end-begin)
		copy(payload, buf[begin:end])
		live = append(live, liveSlot{idx: s, payload: payload})
	}

	// Clear the record region; slot directory and footer are rewritten
	// below without needing to be cleared first.
	for i := range buf[:slotDirStart(slotCount)] {
		buf[i] = 0
	}

	offset := int16(0)
	liveByIdx := make(map[int][]byte, len(live))
	for _, l := range live {
		liveByIdx[l.idx] = l.payload
	}
	for s := 1; s <= int(slotCount); s++ {
		begin, end := getSlot(buf, s)
		if isDeleted(begin) {
			setSlot(buf, s, 0, 0)
			continue
		}
		if isRecycled(begin, end) {
			continue
		}
		payload := liveByIdx[s]
		copy(buf[offset:], payload)
		newBegin := offset
		newEnd := offset + int16(len(payload))
		setSlot(buf, s, newBegin, newEnd)
		offset = newEnd
	}

	reorgCount, _, _ := getFooter(buf)
	setFooter(buf, reorgCount+1, slotCount, uint16(offset))
}
