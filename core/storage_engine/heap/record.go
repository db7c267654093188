package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// TConstSize is the fixed width of the title identifier field.
	TConstSize = 10
	// EncodedRecordSize is the number of bytes a Record occupies on a block:
	// tconst, averageRating (float32) and numVotes (int32), little endian.
	EncodedRecordSize = TConstSize + 4 + 4
)

// Record is one row of the ratings dataset.
type Record struct {
	TConst        string
	AverageRating float32
	NumVotes      int32
}

// RecordHandle locates a record on the heap. It stays valid until the record
// is deleted; handles of deleted records may be reissued.
type RecordHandle struct {
	Block uint32
	Slot  uint16
}

func (h RecordHandle) String() string {
	return fmt.Sprintf("%d:%d", h.Block, h.Slot)
}

// encodeRecord writes r into buf, which must hold at least EncodedRecordSize
// bytes. The tconst is zero padded.
func encodeRecord(buf []byte, r Record) error {
	if len(r.TConst) > TConstSize {
		return fmt.Errorf("%w: %q", ErrTConstTooLong, r.TConst)
	}
	clear(buf[:TConstSize])
	copy(buf, r.TConst)
	binary.LittleEndian.PutUint32(buf[TConstSize:], math.Float32bits(r.AverageRating))
	binary.LittleEndian.PutUint32(buf[TConstSize+4:], uint32(r.NumVotes))
	return nil
}

func decodeRecord(buf []byte) Record {
	tconst := buf[:TConstSize]
	if i := bytes.IndexByte(tconst, 0); i >= 0 {
		tconst = tconst[:i]
	}
	return Record{
		TConst:        string(tconst),
		AverageRating: math.Float32frombits(binary.LittleEndian.Uint32(buf[TConstSize:])),
		NumVotes:      int32(binary.LittleEndian.Uint32(buf[TConstSize+4:])),
	}
}
