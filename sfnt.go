package font

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/tdewolff/parse/v2"
)

// SFNT is a parsed OpenType font.
type SFNT struct {
	Version           string
	IsCFF, IsTrueType bool // only one can be true
	Tables            map[string][]byte

	// required
	Cmap *cmapTable
	Head *headTable
	Maxp *maxpTable
	Name *nameTable

	// TrueType
	Glyf *glyfTable
	Loca *locaTable

	// CFF
	CFF *cffTable

	// optional
	OS2  *os2Table
	Gsub *gsubTable
	Math *mathTable
}

// NumGlyphs returns the number of glyphs the font contains.
func (sfnt *SFNT) NumGlyphs() uint16 {
	return sfnt.Maxp.NumGlyphs
}

// GlyphIndex returns the glyphID for a given rune using the best cmap subtable. When the rune is not defined it returns 0.
func (sfnt *SFNT) GlyphIndex(r rune) uint16 {
	subtable := sfnt.Cmap.Best()
	if subtable == nil {
		return 0
	}
	glyphID, _ := subtable.Get(r)
	return glyphID
}

// BestCmap returns the mapping of the best unicode cmap subtable. Codepoints mapped to .notdef are not included.
func (sfnt *SFNT) BestCmap() (map[rune]uint16, error) {
	subtable := sfnt.Cmap.Best()
	if subtable == nil {
		return nil, fmt.Errorf("cmap: no unicode subtable")
	}
	return subtable.Map(), nil
}

// Codepoints returns all codepoints of the best unicode cmap subtable in ascending order. Unlike BestCmap it includes codepoints that are explicitly mapped to .notdef.
func (sfnt *SFNT) Codepoints() ([]rune, error) {
	subtable := sfnt.Cmap.Best()
	if subtable == nil {
		return nil, fmt.Errorf("cmap: no unicode subtable")
	}
	return subtable.Codepoints(), nil
}

// Rename sets the family, subfamily, full name and PostScript name records of the name table.
func (sfnt *SFNT) Rename(family, subfamily string) error {
	if sfnt.Name == nil {
		return fmt.Errorf("name: missing table")
	}
	if err := sfnt.Name.Rename(family, subfamily); err != nil {
		return err
	}
	sfnt.Tables["name"] = sfnt.Name.Write()
	return nil
}

// ParseSFNT parses an OpenType file format (TTF, OTF, TTC). The index is used for font collections to select a single font.
func ParseSFNT(b []byte, index int) (*SFNT, error) {
	if len(b) < 12 || uint(math.MaxUint32) < uint(len(b)) {
		return nil, ErrInvalidFontData
	}

	r := parse.NewBinaryReaderBytes(b)
	sfntVersion := r.ReadString(4)
	if sfntVersion == "ttcf" {
		majorVersion := r.ReadUint16()
		minorVersion := r.ReadUint16()
		if majorVersion != 1 && majorVersion != 2 || minorVersion != 0 {
			return nil, fmt.Errorf("bad TTC version")
		}

		numFonts := r.ReadUint32()
		if index < 0 || numFonts <= uint32(index) {
			return nil, fmt.Errorf("bad font index %d", index)
		} else if r.Len() < 4*int64(numFonts) {
			return nil, ErrInvalidFontData
		}

		_ = r.ReadBytes(4 * int64(index))
		offset := r.ReadUint32()
		if uint32(len(b))-12 < offset {
			return nil, ErrInvalidFontData
		} else if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, ErrInvalidFontData
		}
		sfntVersion = r.ReadString(4)
	} else if index != 0 {
		return nil, fmt.Errorf("bad font index %d", index)
	}
	if sfntVersion != "OTTO" && sfntVersion != "true" && binary.BigEndian.Uint32([]byte(sfntVersion)) != 0x00010000 {
		return nil, fmt.Errorf("bad SFNT version")
	}
	numTables := r.ReadUint16()
	_ = r.ReadUint16() // searchRange
	_ = r.ReadUint16() // entrySelector
	_ = r.ReadUint16() // rangeShift
	if r.Len() < 16*int64(numTables) {
		return nil, ErrInvalidFontData
	}

	tables := make(map[string][]byte, numTables)
	for i := 0; i < int(numTables); i++ {
		tag := r.ReadString(4)
		_ = r.ReadUint32() // checksum
		offset := r.ReadUint32()
		length := r.ReadUint32()
		if uint32(len(b)) < offset || uint32(len(b))-offset < length {
			return nil, ErrInvalidFontData
		} else if _, ok := tables[tag]; ok {
			return nil, fmt.Errorf("%s: duplicate table", tag)
		}
		tables[tag] = b[offset : offset+length : offset+length]
	}

	sfnt := &SFNT{}
	sfnt.Version = sfntVersion
	sfnt.IsCFF = sfntVersion == "OTTO"
	sfnt.IsTrueType = !sfnt.IsCFF
	sfnt.Tables = tables

	requiredTables := []string{"cmap", "head", "maxp"}
	if sfnt.IsTrueType {
		requiredTables = append(requiredTables, "glyf", "loca")
	} else {
		requiredTables = append(requiredTables, "CFF ")
	}
	for _, requiredTable := range requiredTables {
		if _, ok := tables[requiredTable]; !ok {
			return nil, fmt.Errorf("%s: missing table", requiredTable)
		}
	}

	// order matters
	if err := sfnt.parseHead(); err != nil {
		return nil, err
	} else if err := sfnt.parseMaxp(); err != nil {
		return nil, err
	} else if err := sfnt.parseCmap(); err != nil {
		return nil, err
	}
	if sfnt.IsTrueType {
		if err := sfnt.parseLoca(); err != nil {
			return nil, err
		} else if err := sfnt.parseGlyf(); err != nil {
			return nil, err
		}
	} else if err := sfnt.parseCFF(); err != nil {
		return nil, err
	}
	if _, ok := tables["name"]; ok {
		if err := sfnt.parseName(); err != nil {
			return nil, err
		}
	}
	if _, ok := tables["OS/2"]; ok {
		if err := sfnt.parseOS2(); err != nil {
			return nil, err
		}
	}
	if _, ok := tables["GSUB"]; ok {
		if err := sfnt.parseGSUB(); err != nil {
			return nil, err
		}
	}
	if _, ok := tables["MATH"]; ok {
		if err := sfnt.parseMATH(); err != nil {
			return nil, err
		}
	}
	return sfnt, nil
}

// WriteOptions are the options for writing out a font.
type WriteOptions struct {
	// PreserveTimestamp keeps the modified date of the head table, otherwise it is set to the current time.
	PreserveTimestamp bool
}

// Write writes out the SFNT file.
func (sfnt *SFNT) Write(opts WriteOptions) []byte {
	tags := make([]string, 0, len(sfnt.Tables))
	for tag := range sfnt.Tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	// write header
	w := parse.NewBinaryWriter([]byte{})
	if sfnt.IsCFF {
		w.WriteBytes([]byte("OTTO")) // sfntVersion
	} else if sfnt.Version == "true" {
		w.WriteBytes([]byte("true")) // sfntVersion
	} else {
		w.WriteUint32(0x00010000) // sfntVersion
	}
	numTables := uint16(len(tags))
	entrySelector := uint16(0)
	if 0 < numTables {
		entrySelector = uint16(math.Log2(float64(numTables)))
	}
	searchRange := uint16(1 << (entrySelector + 4))
	w.WriteUint16(numTables)                  // numTables
	w.WriteUint16(searchRange)                // searchRange
	w.WriteUint16(entrySelector)              // entrySelector
	w.WriteUint16(numTables<<4 - searchRange) // rangeShift

	// we'll write the table records at the end
	w.WriteBytes(make([]byte, int(numTables)<<4))

	// write tables
	checksumAdjustmentPos := -1
	offsets, lengths := make([]int, numTables), make([]int, numTables)
	for i, tag := range tags {
		offsets[i] = int(w.Len())
		table := sfnt.Tables[tag]
		if tag == "head" && 36 <= len(table) {
			checksumAdjustmentPos = offsets[i] + 8
			w.WriteBytes(table[:8])
			w.WriteUint32(0) // checksumAdjustment
			w.WriteBytes(table[12:28])
			if opts.PreserveTimestamp {
				w.WriteBytes(table[28:36])
			} else {
				w.WriteInt64(int64(time.Now().UTC().Sub(time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)) / time.Second)) // modified
			}
			w.WriteBytes(table[36:])
		} else {
			w.WriteBytes(table)
		}
		lengths[i] = int(w.Len()) - offsets[i]

		padding := (4 - lengths[i]&3) & 3
		for j := 0; j < padding; j++ {
			w.WriteUint8(0)
		}
	}

	// add table record entries
	buf := w.Bytes()
	for i, tag := range tags {
		pos := 12 + i<<4
		copy(buf[pos:], []byte(tag))
		padding := (4 - lengths[i]&3) & 3
		checksum := calcChecksum(buf[offsets[i] : offsets[i]+lengths[i]+padding])
		binary.BigEndian.PutUint32(buf[pos+4:], checksum)
		binary.BigEndian.PutUint32(buf[pos+8:], uint32(offsets[i]))
		binary.BigEndian.PutUint32(buf[pos+12:], uint32(lengths[i]))
	}
	if checksumAdjustmentPos != -1 {
		binary.BigEndian.PutUint32(buf[checksumAdjustmentPos:], 0xB1B0AFBA-calcChecksum(buf))
	}
	return buf
}

////////////////////////////////////////////////////////////////

type headTable struct {
	FontRevision      uint32
	Flags             uint16
	UnitsPerEm        uint16
	Created, Modified time.Time
	IndexToLocFormat  int16
}

func (sfnt *SFNT) parseHead() error {
	b := sfnt.Tables["head"]
	if len(b) != 54 {
		return fmt.Errorf("head: bad table")
	}

	sfnt.Head = &headTable{}
	r := parse.NewBinaryReaderBytes(b)
	majorVersion := r.ReadUint16()
	_ = r.ReadUint16() // minorVersion
	if majorVersion != 1 {
		return fmt.Errorf("head: bad version")
	}
	sfnt.Head.FontRevision = r.ReadUint32()
	_ = r.ReadUint32()                // checksumAdjustment
	if r.ReadUint32() != 0x5F0F3CF5 { // magicNumber
		return fmt.Errorf("head: bad magic version")
	}
	sfnt.Head.Flags = r.ReadUint16()
	sfnt.Head.UnitsPerEm = r.ReadUint16()
	created := r.ReadUint64()
	modified := r.ReadUint64()
	if math.MaxInt64/uint64(time.Second) < created || math.MaxInt64/uint64(time.Second) < modified {
		return fmt.Errorf("head: created and/or modified dates too large")
	}
	sfnt.Head.Created = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Second * time.Duration(created))
	sfnt.Head.Modified = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Second * time.Duration(modified))
	_ = r.ReadBytes(8) // xMin, yMin, xMax, yMax
	_ = r.ReadUint16() // macStyle
	_ = r.ReadUint16() // lowestRecPPEM
	_ = r.ReadInt16()  // fontDirectionHint
	sfnt.Head.IndexToLocFormat = r.ReadInt16()
	if sfnt.Head.IndexToLocFormat != 0 && sfnt.Head.IndexToLocFormat != 1 {
		return fmt.Errorf("head: bad indexToLocFormat")
	}
	return nil
}

// setIndexToLocFormat updates the head table when the loca format changes.
func (sfnt *SFNT) setIndexToLocFormat(format int16) {
	if sfnt.Head.IndexToLocFormat == format {
		return
	}
	head := make([]byte, len(sfnt.Tables["head"]))
	copy(head, sfnt.Tables["head"])
	binary.BigEndian.PutUint16(head[50:], uint16(format))
	sfnt.Tables["head"] = head
	sfnt.Head.IndexToLocFormat = format
}

////////////////////////////////////////////////////////////////

type maxpTable struct {
	NumGlyphs uint16
}

func (sfnt *SFNT) parseMaxp() error {
	b := sfnt.Tables["maxp"]
	if len(b) < 6 {
		return fmt.Errorf("maxp: bad table")
	}

	sfnt.Maxp = &maxpTable{}
	r := parse.NewBinaryReaderBytes(b)
	version := r.ReadUint32()
	if version != 0x00005000 && version != 0x00010000 {
		return fmt.Errorf("maxp: bad version")
	}
	sfnt.Maxp.NumGlyphs = r.ReadUint16()
	if sfnt.Maxp.NumGlyphs == 0 {
		return fmt.Errorf("maxp: bad numGlyphs")
	}
	return nil
}
