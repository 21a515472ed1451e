package font

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/tdewolff/parse/v2"
)

// MaxCmapSegments is the maximum number of cmap segments that will be accepted.
const MaxCmapSegments = 20000

type cmapSubtable interface {
	Get(rune) (uint16, bool)
	Map() map[rune]uint16 // excludes characters mapped to .notdef
	Codepoints() []rune   // ascending, includes characters mapped to .notdef
}

type cmapFormat0 struct {
	Language     uint16
	GlyphIdArray [256]uint8
}

func (subtable *cmapFormat0) Get(r rune) (uint16, bool) {
	if r < 0 || 256 <= r {
		return 0, false
	}
	return uint16(subtable.GlyphIdArray[r]), true
}

func (subtable *cmapFormat0) Map() map[rune]uint16 {
	m := map[rune]uint16{}
	for r, glyphID := range subtable.GlyphIdArray {
		if glyphID != 0 {
			m[rune(r)] = uint16(glyphID)
		}
	}
	return m
}

func (subtable *cmapFormat0) Codepoints() []rune {
	rs := make([]rune, len(subtable.GlyphIdArray))
	for i := range rs {
		rs[i] = rune(i)
	}
	return rs
}

type cmapFormat4 struct {
	Language      uint16
	StartCode     []uint16
	EndCode       []uint16
	IdDelta       []int16
	IdRangeOffset []uint16
	GlyphIdArray  []uint16
}

func (subtable *cmapFormat4) glyph(i int, r uint16) uint16 {
	if subtable.IdRangeOffset[i] == 0 {
		// is modulo 65536 with the idDelta cast and addition overflow
		return uint16(subtable.IdDelta[i]) + r
	}
	// idRangeOffset/2  ->  offset value to index of words
	// r-startCode  ->  difference of rune with startCode
	// -(n-i)  ->  subtract offset from the current idRangeOffset item
	index := int(subtable.IdRangeOffset[i]/2) + int(r-subtable.StartCode[i]) - (len(subtable.StartCode) - i)
	if index < 0 || len(subtable.GlyphIdArray) <= index || subtable.GlyphIdArray[index] == 0 {
		return 0
	}
	return subtable.GlyphIdArray[index] + uint16(subtable.IdDelta[i])
}

func (subtable *cmapFormat4) Get(r rune) (uint16, bool) {
	if r < 0 || 65536 <= r {
		return 0, false
	}
	i := sort.Search(len(subtable.EndCode), func(i int) bool { return uint16(r) <= subtable.EndCode[i] })
	if i == len(subtable.EndCode) || uint16(r) < subtable.StartCode[i] {
		return 0, false
	}
	return subtable.glyph(i, uint16(r)), true
}

func (subtable *cmapFormat4) Map() map[rune]uint16 {
	m := map[rune]uint16{}
	for i := range subtable.StartCode {
		for r := uint32(subtable.StartCode[i]); r <= uint32(subtable.EndCode[i]); r++ {
			if glyphID := subtable.glyph(i, uint16(r)); glyphID != 0 {
				m[rune(r)] = glyphID
			}
		}
	}
	return m
}

func (subtable *cmapFormat4) Codepoints() []rune {
	var rs []rune
	for i := range subtable.StartCode {
		if i == len(subtable.StartCode)-1 && subtable.EndCode[i] == 0xFFFF {
			break // final segment that maps 0xFFFF
		}
		for r := uint32(subtable.StartCode[i]); r <= uint32(subtable.EndCode[i]); r++ {
			rs = append(rs, rune(r))
		}
	}
	return rs
}

type cmapFormat6 struct {
	Language     uint16
	FirstCode    uint16
	GlyphIdArray []uint16
}

func (subtable *cmapFormat6) Get(r rune) (uint16, bool) {
	if r < rune(subtable.FirstCode) || uint32(len(subtable.GlyphIdArray)) <= uint32(r)-uint32(subtable.FirstCode) {
		return 0, false
	}
	return subtable.GlyphIdArray[uint32(r)-uint32(subtable.FirstCode)], true
}

func (subtable *cmapFormat6) Map() map[rune]uint16 {
	m := map[rune]uint16{}
	for i, glyphID := range subtable.GlyphIdArray {
		if glyphID != 0 {
			m[rune(subtable.FirstCode)+rune(i)] = glyphID
		}
	}
	return m
}

func (subtable *cmapFormat6) Codepoints() []rune {
	rs := make([]rune, len(subtable.GlyphIdArray))
	for i := range rs {
		rs[i] = rune(subtable.FirstCode) + rune(i)
	}
	return rs
}

type cmapFormat12 struct {
	Language      uint32
	StartCharCode []uint32
	EndCharCode   []uint32
	StartGlyphID  []uint32
}

func (subtable *cmapFormat12) Get(r rune) (uint16, bool) {
	if r < 0 {
		return 0, false
	}
	i := sort.Search(len(subtable.EndCharCode), func(i int) bool { return uint32(r) <= subtable.EndCharCode[i] })
	if i == len(subtable.EndCharCode) || uint32(r) < subtable.StartCharCode[i] {
		return 0, false
	}
	return uint16((uint32(r) - subtable.StartCharCode[i]) + subtable.StartGlyphID[i]), true
}

func (subtable *cmapFormat12) Map() map[rune]uint16 {
	m := map[rune]uint16{}
	for i := range subtable.StartCharCode {
		for r := subtable.StartCharCode[i]; r <= subtable.EndCharCode[i]; r++ {
			if glyphID := uint16(r - subtable.StartCharCode[i] + subtable.StartGlyphID[i]); glyphID != 0 {
				m[rune(r)] = glyphID
			}
		}
	}
	return m
}

func (subtable *cmapFormat12) Codepoints() []rune {
	var rs []rune
	for i := range subtable.StartCharCode {
		for r := subtable.StartCharCode[i]; r <= subtable.EndCharCode[i]; r++ {
			rs = append(rs, rune(r))
		}
	}
	return rs
}

type cmapVarSelector struct {
	VarSelector rune
	DefaultUVS  []rune          // base characters that use the default glyph
	NonDefault  map[rune]uint16 // base characters mapped to a variant glyph
}

// cmapFormat14 holds Unicode variation sequences.
type cmapFormat14 struct {
	VarSelectors []cmapVarSelector
}

func (subtable *cmapFormat14) Get(r rune) (uint16, bool) {
	return 0, false
}

func (subtable *cmapFormat14) Map() map[rune]uint16 {
	return map[rune]uint16{}
}

func (subtable *cmapFormat14) Codepoints() []rune {
	return nil
}

// Glyph returns the variant glyph of a variation sequence, or false when the sequence is unknown or uses the default glyph.
func (subtable *cmapFormat14) Glyph(r, varSelector rune) (uint16, bool) {
	for _, record := range subtable.VarSelectors {
		if record.VarSelector == varSelector {
			glyphID, ok := record.NonDefault[r]
			return glyphID, ok
		}
	}
	return 0, false
}

type cmapEncodingRecord struct {
	PlatformID uint16
	EncodingID uint16
	Format     uint16
	Subtable   int
}

func (record cmapEncodingRecord) isUnicode() bool {
	if record.Format == 14 {
		return false
	}
	return record.PlatformID == 0 || record.PlatformID == 3 && (record.EncodingID == 1 || record.EncodingID == 10)
}

func (record cmapEncodingRecord) isSymbol() bool {
	return record.PlatformID == 3 && record.EncodingID == 0
}

type cmapTable struct {
	EncodingRecords []cmapEncodingRecord
	Subtables       []cmapSubtable
}

// Best returns the unicode subtable with the highest priority, or nil when there is none.
func (cmap *cmapTable) Best() cmapSubtable {
	priorities := [][2]uint16{{3, 10}, {0, 6}, {0, 4}, {3, 1}, {0, 3}, {0, 2}, {0, 1}, {0, 0}}
	for _, priority := range priorities {
		for _, record := range cmap.EncodingRecords {
			if record.PlatformID == priority[0] && record.EncodingID == priority[1] && record.Format != 14 {
				return cmap.Subtables[record.Subtable]
			}
		}
	}
	return nil
}

// Get returns the glyph ID for the corresponding rune from the best subtable, or 0 when no match is found.
func (cmap *cmapTable) Get(r rune) uint16 {
	if subtable := cmap.Best(); subtable != nil {
		glyphID, _ := subtable.Get(r)
		return glyphID
	}
	return 0
}

func (sfnt *SFNT) parseCmap() error {
	b := sfnt.Tables["cmap"]
	if len(b) < 4 {
		return fmt.Errorf("cmap: bad table")
	}

	sfnt.Cmap = &cmapTable{}
	r := parse.NewBinaryReaderBytes(b)
	if r.ReadUint16() != 0 {
		return fmt.Errorf("cmap: bad version")
	}
	numTables := r.ReadUint16()
	if uint32(len(b)) < 4+8*uint32(numTables) {
		return fmt.Errorf("cmap: bad table")
	}

	offsets := map[uint32]int{}
	for j := 0; j < int(numTables); j++ {
		platformID := r.ReadUint16()
		encodingID := r.ReadUint16()
		offset := r.ReadUint32()
		if uint32(len(b))-4 < offset { // to extract the subtable format and length
			return fmt.Errorf("cmap: bad subtable %d", j)
		}

		// extract subtable length
		format := binary.BigEndian.Uint16(b[offset:])
		var length uint32
		if format == 0 || format == 2 || format == 4 || format == 6 {
			length = uint32(binary.BigEndian.Uint16(b[offset+2:]))
		} else if format == 8 || format == 10 || format == 12 || format == 13 {
			if uint32(len(b))-8 < offset {
				return fmt.Errorf("cmap: bad subtable %d", j)
			}
			length = binary.BigEndian.Uint32(b[offset+4:])
		} else if format == 14 {
			if uint32(len(b))-6 < offset {
				return fmt.Errorf("cmap: bad subtable %d", j)
			}
			length = binary.BigEndian.Uint32(b[offset+2:])
		} else {
			return fmt.Errorf("cmap: bad format %d for subtable %d", format, j)
		}
		if length < 6 || math.MaxUint32-offset < length || uint32(len(b)) < offset+length {
			return fmt.Errorf("cmap: bad subtable %d", j)
		}

		subtableID, ok := offsets[offset]
		if !ok {
			subtable, err := parseCmapSubtable(format, b[offset:offset+length], sfnt.Maxp.NumGlyphs)
			if err != nil {
				return fmt.Errorf("%v in subtable %d", err, j)
			}
			subtableID = len(sfnt.Cmap.Subtables)
			offsets[offset] = subtableID
			sfnt.Cmap.Subtables = append(sfnt.Cmap.Subtables, subtable)
		}
		sfnt.Cmap.EncodingRecords = append(sfnt.Cmap.EncodingRecords, cmapEncodingRecord{
			PlatformID: platformID,
			EncodingID: encodingID,
			Format:     format,
			Subtable:   subtableID,
		})
	}
	return nil
}

// cmapUnsupported holds subtables in formats that are kept as raw data, such as the high-byte mapping of format 2.
type cmapUnsupported struct {
	Data []byte
}

func (subtable *cmapUnsupported) Get(r rune) (uint16, bool) {
	return 0, false
}

func (subtable *cmapUnsupported) Map() map[rune]uint16 {
	return map[rune]uint16{}
}

func (subtable *cmapUnsupported) Codepoints() []rune {
	return nil
}

func parseCmapSubtable(format uint16, b []byte, numGlyphs uint16) (cmapSubtable, error) {
	r := parse.NewBinaryReaderBytes(b)
	switch format {
	case 0:
		if len(b) < 262 {
			return nil, fmt.Errorf("cmap: bad format 0")
		}
		_ = r.ReadUint16() // format
		_ = r.ReadUint16() // length
		subtable := &cmapFormat0{}
		subtable.Language = r.ReadUint16()
		copy(subtable.GlyphIdArray[:], r.ReadBytes(256))
		return subtable, nil
	case 4:
		if len(b) < 14 {
			return nil, fmt.Errorf("cmap: bad format 4")
		}
		_ = r.ReadUint16() // format
		_ = r.ReadUint16() // length
		subtable := &cmapFormat4{}
		subtable.Language = r.ReadUint16()
		segCount := r.ReadUint16()
		if segCount%2 != 0 || segCount == 0 {
			return nil, fmt.Errorf("cmap: bad segCount")
		}
		segCount /= 2
		if MaxCmapSegments < segCount {
			return nil, fmt.Errorf("cmap: too many segments")
		}
		_ = r.ReadUint16() // searchRange
		_ = r.ReadUint16() // entrySelector
		_ = r.ReadUint16() // rangeShift
		if r.Len() < 2+8*int64(segCount) {
			return nil, fmt.Errorf("cmap: bad format 4")
		}

		subtable.EndCode = make([]uint16, segCount)
		for i := 0; i < int(segCount); i++ {
			endCode := r.ReadUint16()
			if 0 < i && endCode <= subtable.EndCode[i-1] {
				return nil, fmt.Errorf("cmap: bad endCode")
			}
			subtable.EndCode[i] = endCode
		}
		_ = r.ReadUint16() // reservedPad
		subtable.StartCode = make([]uint16, segCount)
		for i := 0; i < int(segCount); i++ {
			startCode := r.ReadUint16()
			if subtable.EndCode[i] < startCode || 0 < i && startCode <= subtable.EndCode[i-1] {
				return nil, fmt.Errorf("cmap: bad startCode")
			}
			subtable.StartCode[i] = startCode
		}
		subtable.IdDelta = make([]int16, segCount)
		for i := 0; i < int(segCount); i++ {
			subtable.IdDelta[i] = r.ReadInt16()
		}
		subtable.IdRangeOffset = make([]uint16, segCount)
		for i := 0; i < int(segCount); i++ {
			idRangeOffset := r.ReadUint16()
			if idRangeOffset%2 != 0 {
				return nil, fmt.Errorf("cmap: bad idRangeOffset")
			}
			subtable.IdRangeOffset[i] = idRangeOffset
		}
		subtable.GlyphIdArray = make([]uint16, r.Len()/2)
		for i := range subtable.GlyphIdArray {
			subtable.GlyphIdArray[i] = r.ReadUint16()
		}
		if subtable.StartCode[segCount-1] == 0xFFFF && subtable.IdRangeOffset[segCount-1] != 0 {
			// last segment is often malformed, it must map 0xFFFF to .notdef
			subtable.IdRangeOffset[segCount-1] = 0
			subtable.IdDelta[segCount-1] = 1
		}
		return subtable, nil
	case 6:
		if len(b) < 10 {
			return nil, fmt.Errorf("cmap: bad format 6")
		}
		_ = r.ReadUint16() // format
		_ = r.ReadUint16() // length
		subtable := &cmapFormat6{}
		subtable.Language = r.ReadUint16()
		subtable.FirstCode = r.ReadUint16()
		entryCount := r.ReadUint16()
		if r.Len() < 2*int64(entryCount) {
			return nil, fmt.Errorf("cmap: bad format 6")
		}
		subtable.GlyphIdArray = make([]uint16, entryCount)
		for i := 0; i < int(entryCount); i++ {
			subtable.GlyphIdArray[i] = r.ReadUint16()
		}
		return subtable, nil
	case 12:
		if len(b) < 16 {
			return nil, fmt.Errorf("cmap: bad format 12")
		}
		_ = r.ReadUint16() // format
		_ = r.ReadUint16() // reserved
		_ = r.ReadUint32() // length
		subtable := &cmapFormat12{}
		subtable.Language = r.ReadUint32()
		numGroups := r.ReadUint32()
		if MaxCmapSegments < numGroups {
			return nil, fmt.Errorf("cmap: too many segments")
		} else if r.Len() < 12*int64(numGroups) {
			return nil, fmt.Errorf("cmap: bad format 12")
		}

		subtable.StartCharCode = make([]uint32, numGroups)
		subtable.EndCharCode = make([]uint32, numGroups)
		subtable.StartGlyphID = make([]uint32, numGroups)
		for i := 0; i < int(numGroups); i++ {
			startCharCode := r.ReadUint32()
			endCharCode := r.ReadUint32()
			startGlyphID := r.ReadUint32()
			if endCharCode < startCharCode || 0 < i && startCharCode <= subtable.EndCharCode[i-1] || unicodeMax < endCharCode {
				return nil, fmt.Errorf("cmap: bad character code range")
			} else if uint32(numGlyphs) <= endCharCode-startCharCode || uint32(numGlyphs)-(endCharCode-startCharCode) <= startGlyphID {
				return nil, fmt.Errorf("cmap: bad glyphID")
			}
			subtable.StartCharCode[i] = startCharCode
			subtable.EndCharCode[i] = endCharCode
			subtable.StartGlyphID[i] = startGlyphID
		}
		return subtable, nil
	case 14:
		if len(b) < 10 {
			return nil, fmt.Errorf("cmap: bad format 14")
		}
		_ = r.ReadUint16() // format
		_ = r.ReadUint32() // length
		numVarSelectorRecords := r.ReadUint32()
		if r.Len()/11 < int64(numVarSelectorRecords) {
			return nil, fmt.Errorf("cmap: bad format 14")
		}

		subtable := &cmapFormat14{}
		for i := 0; i < int(numVarSelectorRecords); i++ {
			record := cmapVarSelector{
				VarSelector: rune(r.ReadUint24()),
				NonDefault:  map[rune]uint16{},
			}
			defaultUVSOffset := r.ReadUint32()
			nonDefaultUVSOffset := r.ReadUint32()
			if defaultUVSOffset != 0 {
				rs := parse.NewBinaryReaderBytes(b)
				if _, err := rs.Seek(int64(defaultUVSOffset), io.SeekStart); err != nil || rs.Len() < 4 {
					return nil, fmt.Errorf("cmap: bad default UVS")
				}
				numUnicodeValueRanges := rs.ReadUint32()
				if rs.Len()/4 < int64(numUnicodeValueRanges) {
					return nil, fmt.Errorf("cmap: bad default UVS")
				}
				for k := 0; k < int(numUnicodeValueRanges); k++ {
					startUnicodeValue := rune(rs.ReadUint24())
					additionalCount := rune(rs.ReadUint8())
					for u := startUnicodeValue; u <= startUnicodeValue+additionalCount; u++ {
						record.DefaultUVS = append(record.DefaultUVS, u)
					}
				}
			}
			if nonDefaultUVSOffset != 0 {
				rs := parse.NewBinaryReaderBytes(b)
				if _, err := rs.Seek(int64(nonDefaultUVSOffset), io.SeekStart); err != nil || rs.Len() < 4 {
					return nil, fmt.Errorf("cmap: bad non-default UVS")
				}
				numUVSMappings := rs.ReadUint32()
				if rs.Len()/5 < int64(numUVSMappings) {
					return nil, fmt.Errorf("cmap: bad non-default UVS")
				}
				for k := 0; k < int(numUVSMappings); k++ {
					unicodeValue := rune(rs.ReadUint24())
					record.NonDefault[unicodeValue] = rs.ReadUint16()
				}
			}
			subtable.VarSelectors = append(subtable.VarSelectors, record)
		}
		return subtable, nil
	}
	return &cmapUnsupported{b}, nil
}

////////////////////////////////////////////////////////////////

const unicodeMax = 0x10FFFF

// subset returns a new cmap table that keeps the encoding records approved by the options. Unicode subtables keep the characters that were requested or whose glyph is retained, legacy and symbol subtables keep only the characters whose glyph is retained. Glyph IDs are not renumbered.
func (cmap *cmapTable) subset(unicodes map[rune]bool, glyphs map[uint16]bool, legacy, symbol bool) *cmapTable {
	keep := func(r rune, glyphID uint16, unicode bool) bool {
		return glyphs[glyphID] || unicode && unicodes[r]
	}

	retained := map[rune]bool{} // characters kept in unicode subtables, for format 14 default UVS
	mapped := map[int]int{}
	out := &cmapTable{}
	for _, record := range cmap.EncodingRecords {
		if record.Format == 14 {
			continue // after all unicode subtables
		} else if !record.isUnicode() && (record.isSymbol() && !symbol || !record.isSymbol() && !legacy) {
			continue
		}
		subtableID, ok := mapped[record.Subtable]
		if !ok {
			var subtable cmapSubtable
			switch orig := cmap.Subtables[record.Subtable].(type) {
			case *cmapFormat0:
				sub := &cmapFormat0{Language: orig.Language}
				for c, glyphID := range orig.GlyphIdArray {
					if keep(rune(c), uint16(glyphID), record.isUnicode()) {
						sub.GlyphIdArray[c] = glyphID
					}
				}
				subtable = sub
			case *cmapFormat6:
				sub := &cmapFormat6{Language: orig.Language, FirstCode: orig.FirstCode}
				sub.GlyphIdArray = make([]uint16, len(orig.GlyphIdArray))
				for i, glyphID := range orig.GlyphIdArray {
					if keep(rune(orig.FirstCode)+rune(i), glyphID, record.isUnicode()) {
						sub.GlyphIdArray[i] = glyphID
					}
				}
				subtable = sub
			case *cmapUnsupported:
				continue
			default:
				runeMap := map[rune]uint16{}
				for c, glyphID := range orig.Map() {
					if keep(c, glyphID, record.isUnicode()) {
						runeMap[c] = glyphID
					}
				}
				if format4, ok := orig.(*cmapFormat4); ok {
					subtable = newCmapFormat4(format4.Language, runeMap)
				} else {
					subtable = newCmapFormat12(orig.(*cmapFormat12).Language, runeMap)
				}
			}
			if record.isUnicode() {
				for c := range subtable.Map() {
					retained[c] = true
				}
			}
			subtableID = len(out.Subtables)
			mapped[record.Subtable] = subtableID
			out.Subtables = append(out.Subtables, subtable)
		}
		record.Subtable = subtableID
		out.EncodingRecords = append(out.EncodingRecords, record)
	}

	for _, record := range cmap.EncodingRecords {
		if record.Format != 14 {
			continue
		}
		orig, ok := cmap.Subtables[record.Subtable].(*cmapFormat14)
		if !ok {
			continue
		}
		sub := &cmapFormat14{}
		for _, varSelector := range orig.VarSelectors {
			rec := cmapVarSelector{VarSelector: varSelector.VarSelector, NonDefault: map[rune]uint16{}}
			for _, c := range varSelector.DefaultUVS {
				if retained[c] {
					rec.DefaultUVS = append(rec.DefaultUVS, c)
				}
			}
			for c, glyphID := range varSelector.NonDefault {
				if glyphs[glyphID] && (retained[c] || unicodes[c]) {
					rec.NonDefault[c] = glyphID
				}
			}
			if 0 < len(rec.DefaultUVS) || 0 < len(rec.NonDefault) {
				sub.VarSelectors = append(sub.VarSelectors, rec)
			}
		}
		if len(sub.VarSelectors) == 0 {
			continue
		}
		record.Subtable = len(out.Subtables)
		out.Subtables = append(out.Subtables, sub)
		out.EncodingRecords = append(out.EncodingRecords, record)
	}
	sort.SliceStable(out.EncodingRecords, func(i, j int) bool {
		a, b := out.EncodingRecords[i], out.EncodingRecords[j]
		return a.PlatformID < b.PlatformID || a.PlatformID == b.PlatformID && a.EncodingID < b.EncodingID
	})
	return out
}

// glyphs returns the glyphs of all unicode subtables for the given runes, including variant glyphs of variation sequences.
func (cmap *cmapTable) glyphs(unicodes map[rune]bool) map[uint16]bool {
	glyphs := map[uint16]bool{}
	for _, record := range cmap.EncodingRecords {
		switch subtable := cmap.Subtables[record.Subtable].(type) {
		case *cmapFormat14:
			for _, varSelector := range subtable.VarSelectors {
				for c, glyphID := range varSelector.NonDefault {
					if unicodes[c] {
						glyphs[glyphID] = true
					}
				}
			}
		default:
			if !record.isUnicode() {
				continue
			}
			for c := range unicodes {
				if glyphID, ok := subtable.Get(c); ok && glyphID != 0 {
					glyphs[glyphID] = true
				}
			}
		}
	}
	return glyphs
}

func newCmapFormat4(language uint16, runeMap map[rune]uint16) *cmapFormat4 {
	subtable := &cmapFormat4{Language: language}
	rs := sortedRunes(runeMap)
	for i := 0; i < len(rs); {
		if 0xFFFF <= rs[i] {
			break
		}

		// find run of consecutive characters
		j := i + 1
		constantDelta := true
		for j < len(rs) && rs[j] < 0xFFFF && rs[j] == rs[j-1]+1 {
			if int(runeMap[rs[j]])-int(rs[j]) != int(runeMap[rs[i]])-int(rs[i]) {
				constantDelta = false
			}
			j++
		}

		subtable.StartCode = append(subtable.StartCode, uint16(rs[i]))
		subtable.EndCode = append(subtable.EndCode, uint16(rs[j-1]))
		if constantDelta {
			subtable.IdDelta = append(subtable.IdDelta, int16(runeMap[rs[i]]-uint16(rs[i])))
			subtable.IdRangeOffset = append(subtable.IdRangeOffset, 0)
		} else {
			// idRangeOffset is fixed up when writing, here it is the index into glyphIdArray
			subtable.IdDelta = append(subtable.IdDelta, 0)
			subtable.IdRangeOffset = append(subtable.IdRangeOffset, uint16(len(subtable.GlyphIdArray)+1))
			for k := i; k < j; k++ {
				subtable.GlyphIdArray = append(subtable.GlyphIdArray, runeMap[rs[k]])
			}
		}
		i = j
	}

	// final segment maps 0xFFFF to .notdef
	subtable.StartCode = append(subtable.StartCode, 0xFFFF)
	subtable.EndCode = append(subtable.EndCode, 0xFFFF)
	subtable.IdDelta = append(subtable.IdDelta, 1)
	subtable.IdRangeOffset = append(subtable.IdRangeOffset, 0)

	// convert glyphIdArray indices into byte offsets from the idRangeOffset entry
	n := len(subtable.StartCode)
	for i, index := range subtable.IdRangeOffset {
		if index != 0 {
			subtable.IdRangeOffset[i] = uint16(2 * (n - i + int(index) - 1))
		}
	}
	return subtable
}

func newCmapFormat12(language uint32, runeMap map[rune]uint16) *cmapFormat12 {
	subtable := &cmapFormat12{Language: language}
	rs := sortedRunes(runeMap)
	for i, r := range rs {
		glyphID := uint32(runeMap[r])
		if n := len(subtable.StartCharCode); 0 < i && 0 < n && uint32(r) == subtable.EndCharCode[n-1]+1 && glyphID == subtable.StartGlyphID[n-1]+uint32(r)-subtable.StartCharCode[n-1] {
			subtable.EndCharCode[n-1] = uint32(r)
			continue
		}
		subtable.StartCharCode = append(subtable.StartCharCode, uint32(r))
		subtable.EndCharCode = append(subtable.EndCharCode, uint32(r))
		subtable.StartGlyphID = append(subtable.StartGlyphID, glyphID)
	}
	return subtable
}

func cmapWriteFormat0(w *parse.BinaryWriter, subtable *cmapFormat0) {
	w.WriteUint16(0)   // format
	w.WriteUint16(262) // length
	w.WriteUint16(subtable.Language)
	w.WriteBytes(subtable.GlyphIdArray[:])
}

func cmapWriteFormat4(w *parse.BinaryWriter, subtable *cmapFormat4) {
	start := int(w.Len())
	w.WriteUint16(4) // format
	w.WriteUint16(0) // length (set later)
	w.WriteUint16(subtable.Language)

	segCount := uint16(len(subtable.StartCode))
	searchRange := uint16(math.Exp2(math.Floor(math.Log2(float64(segCount)))))
	entrySelector := uint16(math.Log2(float64(searchRange)))
	w.WriteUint16(segCount * 2)                 // segCountX2
	w.WriteUint16(searchRange * 2)              // searchRange
	w.WriteUint16(entrySelector)                // entrySelector
	w.WriteUint16((segCount - searchRange) * 2) // rangeShift

	for _, endCode := range subtable.EndCode {
		w.WriteUint16(endCode)
	}
	w.WriteUint16(0) // reservedPad
	for _, startCode := range subtable.StartCode {
		w.WriteUint16(startCode)
	}
	for _, idDelta := range subtable.IdDelta {
		w.WriteInt16(idDelta)
	}
	for _, idRangeOffset := range subtable.IdRangeOffset {
		w.WriteUint16(idRangeOffset)
	}
	for _, glyphID := range subtable.GlyphIdArray {
		w.WriteUint16(glyphID)
	}

	length := int(w.Len()) - start
	if math.MaxUint16 < length {
		length = math.MaxUint16
	}
	binary.BigEndian.PutUint16(w.Bytes()[start+2:], uint16(length)) // set length
}

func cmapWriteFormat6(w *parse.BinaryWriter, subtable *cmapFormat6) {
	w.WriteUint16(6) // format
	w.WriteUint16(uint16(10 + 2*len(subtable.GlyphIdArray)))
	w.WriteUint16(subtable.Language)
	w.WriteUint16(subtable.FirstCode)
	w.WriteUint16(uint16(len(subtable.GlyphIdArray)))
	for _, glyphID := range subtable.GlyphIdArray {
		w.WriteUint16(glyphID)
	}
}

func cmapWriteFormat12(w *parse.BinaryWriter, subtable *cmapFormat12) {
	numGroups := len(subtable.StartCharCode)
	w.WriteUint16(12) // format
	w.WriteUint16(0)  // reserved
	w.WriteUint32(uint32(16 + 12*numGroups))
	w.WriteUint32(subtable.Language)
	w.WriteUint32(uint32(numGroups))
	for i := 0; i < numGroups; i++ {
		w.WriteUint32(subtable.StartCharCode[i])
		w.WriteUint32(subtable.EndCharCode[i])
		w.WriteUint32(subtable.StartGlyphID[i])
	}
}

func cmapWriteFormat14(w *parse.BinaryWriter, subtable *cmapFormat14) {
	start := int(w.Len())
	w.WriteUint16(14) // format
	w.WriteUint32(0)  // length (set later)
	w.WriteUint32(uint32(len(subtable.VarSelectors)))

	records := int(w.Len())
	w.WriteBytes(make([]byte, 11*len(subtable.VarSelectors)))
	for i, varSelector := range subtable.VarSelectors {
		var defaultUVSOffset, nonDefaultUVSOffset int
		if 0 < len(varSelector.DefaultUVS) {
			defaultUVSOffset = int(w.Len()) - start
			sort.Slice(varSelector.DefaultUVS, func(i, j int) bool { return varSelector.DefaultUVS[i] < varSelector.DefaultUVS[j] })

			var starts []rune
			var counts []uint8
			for k, c := range varSelector.DefaultUVS {
				if n := len(starts); 0 < k && c == starts[n-1]+rune(counts[n-1])+1 && counts[n-1] < 255 {
					counts[n-1]++
					continue
				}
				starts = append(starts, c)
				counts = append(counts, 0)
			}
			w.WriteUint32(uint32(len(starts)))
			for k := range starts {
				w.WriteUint8(uint8(starts[k] >> 16))
				w.WriteUint16(uint16(starts[k]))
				w.WriteUint8(counts[k])
			}
		}
		if 0 < len(varSelector.NonDefault) {
			nonDefaultUVSOffset = int(w.Len()) - start
			rs := sortedRunes(varSelector.NonDefault)
			w.WriteUint32(uint32(len(rs)))
			for _, c := range rs {
				w.WriteUint8(uint8(c >> 16))
				w.WriteUint16(uint16(c))
				w.WriteUint16(varSelector.NonDefault[c])
			}
		}

		b := w.Bytes()[records+11*i:]
		b[0] = byte(varSelector.VarSelector >> 16)
		binary.BigEndian.PutUint16(b[1:], uint16(varSelector.VarSelector))
		binary.BigEndian.PutUint32(b[3:], uint32(defaultUVSOffset))
		binary.BigEndian.PutUint32(b[7:], uint32(nonDefaultUVSOffset))
	}
	binary.BigEndian.PutUint32(w.Bytes()[start+2:], uint32(int(w.Len())-start)) // set length
}

// Write serializes the cmap table, it writes each subtable only once when shared by several encoding records.
func (cmap *cmapTable) Write() []byte {
	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint16(0) // version
	w.WriteUint16(uint16(len(cmap.EncodingRecords)))
	w.WriteBytes(make([]byte, 8*len(cmap.EncodingRecords)))

	offsets := make([]uint32, len(cmap.Subtables))
	for i, subtable := range cmap.Subtables {
		offsets[i] = uint32(w.Len())
		switch subtable := subtable.(type) {
		case *cmapFormat0:
			cmapWriteFormat0(w, subtable)
		case *cmapFormat4:
			cmapWriteFormat4(w, subtable)
		case *cmapFormat6:
			cmapWriteFormat6(w, subtable)
		case *cmapFormat12:
			cmapWriteFormat12(w, subtable)
		case *cmapFormat14:
			cmapWriteFormat14(w, subtable)
		case *cmapUnsupported:
			w.WriteBytes(subtable.Data)
		}
		for w.Len()%4 != 0 {
			w.WriteUint8(0)
		}
	}

	b := w.Bytes()
	for i, record := range cmap.EncodingRecords {
		pos := 4 + 8*i
		binary.BigEndian.PutUint16(b[pos:], record.PlatformID)
		binary.BigEndian.PutUint16(b[pos+2:], record.EncodingID)
		binary.BigEndian.PutUint32(b[pos+4:], offsets[record.Subtable])
	}
	return b
}
