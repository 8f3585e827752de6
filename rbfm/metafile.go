package rbfm

import (
	"encoding/binary"
	"fmt"

	"github.com/malzahar-db/sgbd/pfm"
)

// metaEntriesPerPage is the maximum number of free-byte entries a single
// metafile page can hold (spec.md §3: "each page holds up to 2000
// entries").
const metaEntriesPerPage = 2000

// loadFreeSpaceVector reads the entire metafile into an in-memory slice,
// one entry per data page, in page order.
func loadFreeSpaceVector(h *pfm.Handle) ([]uint16, error) {
	n, err := h.PageCount()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	var vec []uint16
	buf := make([]byte, pfm.PageSize)
	for p := 0; p < n; p++ {
		if err := h.ReadPage(p, buf); err != nil {
			return nil, fmt.Errorf("rbfm loadFreeSpaceVector: %w", err)
		}
		count := int(binary.LittleEndian.Uint16(buf[0:2]))
		for i := 0; i < count; i++ {
			off := 2 + 2*i
			vec = append(vec, binary.LittleEndian.Uint16(buf[off:]))
		}
	}
	return vec, nil
}

// storeFreeSpaceVector writes the in-memory free-space vector back to the
// metafile, one or more pages as needed.
func storeFreeSpaceVector(h *pfm.Handle, vec []uint16) error {
	existing, err := h.PageCount()
	if err != nil {
		return err
	}

	needed := 1
	if len(vec) > 0 {
		needed = (len(vec) + metaEntriesPerPage - 1) / metaEntriesPerPage
	}

	for p := 0; p < needed; p++ {
		start := p * metaEntriesPerPage
		end := start + metaEntriesPerPage
		if end > len(vec) {
			end = len(vec)
		}
		chunk := vec[start:end]

		buf := make([]byte, pfm.PageSize)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(chunk)))
		for i, v := range chunk {
			binary.LittleEndian.PutUint16(buf[2+2*i:], v)
		}

		if p < existing {
			if err := h.WritePage(p, buf); err != nil {
				return fmt.Errorf("rbfm storeFreeSpaceVector: %w", err)
			}
		} else {
			if _, err := h.AppendPage(buf); err != nil {
				return fmt.Errorf("rbfm storeFreeSpaceVector: %w", err)
			}
		}
	}
	return nil
}
