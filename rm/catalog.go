package rm

import (
	"encoding/binary"

	"github.com/malzahar-db/sgbd/rbfm"
)

// rowCursor walks a concatenated sequence of externally-encoded fields
// (the shape rbfm.Scan's projection returns), the same layout
// rbfm_test.go's encodeIDName helper builds by hand for a single pair.
type rowCursor struct {
	data []byte
	pos  int
}

func (c *rowCursor) readInt() int32 {
	v := int32(binary.LittleEndian.Uint32(c.data[c.pos:]))
	c.pos += 4
	return v
}

func (c *rowCursor) readVarChar() string {
	n := int(binary.LittleEndian.Uint32(c.data[c.pos:]))
	c.pos += 4
	s := string(c.data[c.pos : c.pos+n])
	c.pos += n
	return s
}

func decodeTableRow(proj []byte) (id int32, name, ttype, fileName string, numCols int32) {
	c := &rowCursor{data: proj}
	id = c.readInt()
	name = c.readVarChar()
	ttype = c.readVarChar()
	fileName = c.readVarChar()
	numCols = c.readInt()
	return
}

func decodeColumnRow(proj []byte) (tableID int32, colName, colType string, position int32, maxLength int32) {
	c := &rowCursor{data: proj}
	tableID = c.readInt()
	colName = c.readVarChar()
	colType = c.readVarChar()
	position = c.readInt()
	maxLength = c.readInt()
	return
}

func decodeIndexRow(proj []byte) (tableID, position int32, colName string) {
	c := &rowCursor{data: proj}
	tableID = c.readInt()
	position = c.readInt()
	colName = c.readVarChar()
	return
}

func encodeTableRow(id int32, name, ttype, fileName string, numCols int32) []byte {
	var out []byte
	out = append(out, rbfm.EncodeInt(id)...)
	out = append(out, rbfm.EncodeVarChar(name)...)
	out = append(out, rbfm.EncodeVarChar(ttype)...)
	out = append(out, rbfm.EncodeVarChar(fileName)...)
	out = append(out, rbfm.EncodeInt(numCols)...)
	return out
}

func encodeColumnRow(tableID int32, tableName, colName, colType string, position, maxLength int32) []byte {
	var out []byte
	out = append(out, rbfm.EncodeInt(tableID)...)
	out = append(out, rbfm.EncodeVarChar(tableName)...)
	out = append(out, rbfm.EncodeVarChar(colName)...)
	out = append(out, rbfm.EncodeVarChar(colType)...)
	out = append(out, rbfm.EncodeInt(position)...)
	out = append(out, rbfm.EncodeInt(maxLength)...)
	return out
}

func encodeIndexRow(tableID int32, tableName string, position int32, colName string) []byte {
	var out []byte
	out = append(out, rbfm.EncodeInt(tableID)...)
	out = append(out, rbfm.EncodeVarChar(tableName)...)
	out = append(out, rbfm.EncodeInt(position)...)
	out = append(out, rbfm.EncodeVarChar(colName)...)
	return out
}
