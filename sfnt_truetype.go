package font

import (
	"encoding/binary"
	"fmt"

	"github.com/tdewolff/parse/v2"
)

type glyfTable struct {
	data []byte
	loca *locaTable
}

// Get returns the glyph data corresponding to the passed glyphID. It returns nil if the glyph doesn't exist.
func (glyf *glyfTable) Get(glyphID uint16) []byte {
	start, ok1 := glyf.loca.Get(glyphID)
	end, ok2 := glyf.loca.Get(glyphID + 1)
	if !ok1 || !ok2 {
		return nil
	}
	return glyf.data[start:end]
}

// IsComposite returns true if the glyph is a composite glyph
func (glyf *glyfTable) IsComposite(glyphID uint16) bool {
	b := glyf.Get(glyphID)
	if len(b) < 1 {
		return false
	}
	return b[0]&0x80 != 0 // sign bit is set on numberOfContours
}

// Dependencies returns the glyph itself followed by all the glyph IDs that a composite glyph uses.
func (glyf *glyfTable) Dependencies(glyphID uint16) ([]uint16, error) {
	return glyf.dependencies(glyphID, 0)
}

func (glyf *glyfTable) dependencies(glyphID uint16, level int) ([]uint16, error) {
	deps := []uint16{glyphID}
	b := glyf.Get(glyphID)
	if b == nil {
		return nil, fmt.Errorf("glyf: bad glyphID %v", glyphID)
	} else if len(b) == 0 {
		return deps, nil
	}
	r := parse.NewBinaryReaderBytes(b)
	if r.Len() < 10 {
		return nil, fmt.Errorf("glyf: bad table for glyphID %v", glyphID)
	}
	numberOfContours := r.ReadInt16()
	_ = r.ReadBytes(8)
	if numberOfContours < 0 {
		if 7 < level {
			return nil, fmt.Errorf("glyf: compound glyphs too deeply nested")
		}

		// composite glyph
		for {
			if r.Len() < 4 {
				return nil, fmt.Errorf("glyf: bad table for glyphID %v", glyphID)
			}

			flags := r.ReadUint16()
			subGlyphID := r.ReadUint16()
			subDeps, err := glyf.dependencies(subGlyphID, level+1)
			if err != nil {
				return nil, err
			}
			deps = append(deps, subDeps...)

			length, more := glyfCompositeLength(flags)
			if r.Len() < length-4 {
				return nil, fmt.Errorf("glyf: bad table for glyphID %v", glyphID)
			}
			_ = r.ReadBytes(length - 4)
			if !more {
				break
			}
		}
	}
	return deps, nil
}

func glyfCompositeLength(flags uint16) (length int64, more bool) {
	length = 4 + 2
	if flags&0x0001 != 0 { // ARG_1_AND_2_ARE_WORDS
		length += 2
	}
	if flags&0x0008 != 0 { // WE_HAVE_A_SCALE
		length += 2
	} else if flags&0x0040 != 0 { // WE_HAVE_AN_X_AND_Y_SCALE
		length += 4
	} else if flags&0x0080 != 0 { // WE_HAVE_A_TWO_BY_TWO
		length += 8
	}
	more = flags&0x0020 != 0 // MORE_COMPONENTS
	return
}

func (sfnt *SFNT) parseGlyf() error {
	b := sfnt.Tables["glyf"]
	if length, _ := sfnt.Loca.Get(sfnt.Maxp.NumGlyphs); uint32(len(b)) < length {
		return fmt.Errorf("glyf: bad table")
	}

	sfnt.Glyf = &glyfTable{
		data: b,
		loca: sfnt.Loca,
	}
	return nil
}

// subset returns the glyf and loca tables where all glyphs not in glyphs are empty. Glyph IDs are retained. Glyphs are padded to four bytes, the loca format is kept short if the offsets allow.
func (glyf *glyfTable) subset(glyphs map[uint16]bool, numGlyphs uint16, format int16) ([]byte, []byte, int16) {
	w := parse.NewBinaryWriter([]byte{})
	offsets := make([]uint32, int(numGlyphs)+1)
	for glyphID := 0; glyphID < int(numGlyphs); glyphID++ {
		offsets[glyphID] = uint32(w.Len())
		if glyphs[uint16(glyphID)] {
			w.WriteBytes(glyf.Get(uint16(glyphID)))
			for w.Len()%4 != 0 {
				w.WriteUint8(0)
			}
		}
	}
	offsets[numGlyphs] = uint32(w.Len())

	if format == 0 && 0x1FFFE < offsets[numGlyphs] {
		format = 1
	}
	return w.Bytes(), writeLoca(offsets, format), format
}

////////////////////////////////////////////////////////////////

type locaTable struct {
	Format int16
	data   []byte
}

func (loca *locaTable) Get(glyphID uint16) (uint32, bool) {
	if loca.Format == 0 && int(glyphID)*2+2 <= len(loca.data) {
		return 2 * uint32(binary.BigEndian.Uint16(loca.data[int(glyphID)*2:])), true
	} else if loca.Format == 1 && int(glyphID)*4+4 <= len(loca.data) {
		return binary.BigEndian.Uint32(loca.data[int(glyphID)*4:]), true
	}
	return 0, false
}

func (sfnt *SFNT) parseLoca() error {
	b := sfnt.Tables["loca"]
	sfnt.Loca = &locaTable{
		Format: sfnt.Head.IndexToLocFormat,
		data:   b,
	}

	n := int(sfnt.Maxp.NumGlyphs) + 1
	if sfnt.Loca.Format == 0 && len(b) < 2*n || sfnt.Loca.Format == 1 && len(b) < 4*n {
		return fmt.Errorf("loca: bad table")
	}
	var prev uint32
	for glyphID := 0; glyphID < n; glyphID++ {
		offset, _ := sfnt.Loca.Get(uint16(glyphID))
		if offset < prev {
			return fmt.Errorf("loca: bad offsets")
		}
		prev = offset
	}
	return nil
}

func writeLoca(offsets []uint32, format int16) []byte {
	w := parse.NewBinaryWriter([]byte{})
	for _, offset := range offsets {
		if format == 0 {
			w.WriteUint16(uint16(offset / 2))
		} else {
			w.WriteUint32(offset)
		}
	}
	return w.Bytes()
}
