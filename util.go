package font

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/tdewolff/parse/v2"
)

// ErrInvalidFontData is returned if the font is malformed.
var ErrInvalidFontData = fmt.Errorf("invalid font data")

func calcChecksum(b []byte) uint32 {
	var sum uint32
	n := len(b) &^ 3
	for i := 0; i < n; i += 4 {
		sum += binary.BigEndian.Uint32(b[i : i+4])
	}
	if n < len(b) {
		tail := [4]byte{}
		copy(tail[:], b[n:])
		sum += binary.BigEndian.Uint32(tail[:])
	}
	return sum
}

func uint32ToString(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return string(b)
}

func sortedGlyphs(glyphs map[uint16]bool) []uint16 {
	glyphIDs := make([]uint16, 0, len(glyphs))
	for glyphID := range glyphs {
		glyphIDs = append(glyphIDs, glyphID)
	}
	sort.Slice(glyphIDs, func(i, j int) bool { return glyphIDs[i] < glyphIDs[j] })
	return glyphIDs
}

func sortedRunes(runes map[rune]uint16) []rune {
	rs := make([]rune, 0, len(runes))
	for r := range runes {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	return rs
}

////////////////////////////////////////////////////////////////

// seekLen moves r to offset and reports whether at least n bytes can be read from there.
func seekLen(r *parse.BinaryReader, offset uint32, n int64) bool {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return false
	}
	return n <= r.Len()
}

// readOffset reads an unsigned integer of offSize bytes as used by CFF. The caller must make sure that enough bytes remain.
func readOffset(r *parse.BinaryReader, offSize uint8) uint32 {
	switch offSize {
	case 1:
		return uint32(r.ReadUint8())
	case 2:
		return uint32(r.ReadUint16())
	case 3:
		return r.ReadUint24()
	case 4:
		return r.ReadUint32()
	}
	return 0
}
