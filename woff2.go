package font

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/tdewolff/parse/v2"
)

// Specification:
// https://www.w3.org/TR/WOFF2/

// MaxMemory is the maximum size of a decompressed WOFF2 font.
var MaxMemory uint32 = 30 * 1024 * 1024

var woff2TableTags = []string{
	"cmap", "head", "hhea", "hmtx",
	"maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca",
	"prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern",
	"LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS",
	"GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL",
	"SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar",
	"fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar",
	"mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat",
	"Gloc", "Feat", "Sill",
}

func woff2TagIndex(tag string) int {
	for i, woff2Tag := range woff2TableTags {
		if woff2Tag == tag {
			return i
		}
	}
	return 63
}

// woff2NullTransform returns the transform version that stores a table as is.
func woff2NullTransform(tag string) byte {
	if tag == "glyf" || tag == "loca" {
		return 3
	}
	return 0
}

// WriteWOFF2 writes out the font in the WOFF2 format. Tables are stored untransformed and compressed with Brotli.
func (sfnt *SFNT) WriteWOFF2(opts WriteOptions) ([]byte, error) {
	tags := make([]string, 0, len(sfnt.Tables))
	for tag := range sfnt.Tables {
		if tag == "DSIG" {
			continue // signature is invalid after recompression
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	// head gets the compressed flag and the checksum adjustment of the decompressed font
	tables := make(map[string][]byte, len(tags))
	for _, tag := range tags {
		tables[tag] = sfnt.Tables[tag]
	}
	if head := tables["head"]; 36 <= len(head) {
		head = append([]byte{}, head...)
		binary.BigEndian.PutUint16(head[16:], binary.BigEndian.Uint16(head[16:])|0x0800)
		tables["head"] = head
		decompressed := &SFNT{IsCFF: sfnt.IsCFF, Version: sfnt.Version, Tables: tables}
		tables["head"] = sfntTable(decompressed.Write(opts), "head")
	}

	totalSfntSize := uint32(12 + 16*len(tags))
	for _, tag := range tags {
		totalSfntSize += (uint32(len(tables[tag])) + 3) &^ 3
	}

	flavor := sfnt.Version
	if sfnt.IsTrueType && flavor != "true" {
		flavor = "\x00\x01\x00\x00"
	}

	w := parse.NewBinaryWriter([]byte{})
	w.WriteBytes([]byte("wOF2"))     // signature
	w.WriteBytes([]byte(flavor))     // flavor
	w.WriteUint32(0)                 // length
	w.WriteUint16(uint16(len(tags))) // numTables
	w.WriteUint16(0)                 // reserved
	w.WriteUint32(totalSfntSize)     // totalSfntSize
	w.WriteUint32(0)                 // totalCompressedSize
	w.WriteUint16(1)                 // majorVersion
	w.WriteUint16(0)                 // minorVersion
	w.WriteUint32(0)                 // metaOffset
	w.WriteUint32(0)                 // metaLength
	w.WriteUint32(0)                 // metaOrigLength
	w.WriteUint32(0)                 // privOffset
	w.WriteUint32(0)                 // privLength
	for _, tag := range tags {
		tagIndex := woff2TagIndex(tag)
		w.WriteUint8(woff2NullTransform(tag)<<6 | byte(tagIndex)) // flags
		if tagIndex == 63 {
			w.WriteBytes([]byte(tag))
		}
		writeUintBase128(w, uint32(len(tables[tag]))) // origLength
	}

	var compressed bytes.Buffer
	wBrotli := brotli.NewWriterLevel(&compressed, brotli.BestCompression)
	for _, tag := range tags {
		if _, err := wBrotli.Write(tables[tag]); err != nil {
			return nil, err
		}
	}
	if err := wBrotli.Close(); err != nil {
		return nil, err
	}
	w.WriteBytes(compressed.Bytes())

	// pad to 4-byte boundary, required by at least Firefox
	for w.Len()%4 != 0 {
		w.WriteUint8(0)
	}

	b := w.Bytes()
	binary.BigEndian.PutUint32(b[8:], uint32(len(b)))            // length
	binary.BigEndian.PutUint32(b[20:], uint32(compressed.Len())) // totalCompressedSize
	return b, nil
}

// sfntTable returns the table with the given tag from a written SFNT file.
func sfntTable(b []byte, tag string) []byte {
	numTables := int(binary.BigEndian.Uint16(b[4:]))
	for i := 0; i < numTables; i++ {
		record := b[12+16*i:]
		if string(record[:4]) == tag {
			offset := binary.BigEndian.Uint32(record[8:])
			length := binary.BigEndian.Uint32(record[12:])
			return b[offset : offset+length]
		}
	}
	return nil
}

func writeUintBase128(w *parse.BinaryWriter, accum uint32) {
	// see https://www.w3.org/TR/WOFF2/#DataTypes
	n := 1
	for v := accum >> 7; v != 0; v >>= 7 {
		n++
	}
	for i := n - 1; 0 <= i; i-- {
		b := byte(accum>>(7*uint(i))) & 0x7F
		if i != 0 {
			b |= 0x80
		}
		w.WriteUint8(b)
	}
}

func readUintBase128(r *parse.BinaryReader) (uint32, error) {
	// see https://www.w3.org/TR/WOFF2/#DataTypes
	var accum uint32
	for i := 0; i < 5; i++ {
		if r.Len() < 1 {
			return 0, ErrInvalidFontData
		}
		dataByte := r.ReadUint8()
		if i == 0 && dataByte == 0x80 {
			return 0, fmt.Errorf("readUintBase128: must not start with leading zeros")
		} else if accum&0xFE000000 != 0 {
			return 0, fmt.Errorf("readUintBase128: overflow")
		}
		accum = accum<<7 | uint32(dataByte&0x7F)
		if dataByte&0x80 == 0 {
			return accum, nil
		}
	}
	return 0, fmt.Errorf("readUintBase128: exceeds 5 bytes")
}

// ParseWOFF2 parses a WOFF2 font whose tables are stored untransformed, such as those written by WriteWOFF2, and returns the contained SFNT font.
func ParseWOFF2(b []byte) ([]byte, error) {
	sfnt, err := parseWOFF2Tables(b)
	if err != nil {
		return nil, err
	}
	return sfnt.Write(WriteOptions{PreserveTimestamp: true}), nil
}

// parseWOFF2Tables returns the tables as stored in the compressed stream.
func parseWOFF2Tables(b []byte) (*SFNT, error) {
	if len(b) < 48 {
		return nil, ErrInvalidFontData
	}

	r := parse.NewBinaryReaderBytes(b)
	if r.ReadString(4) != "wOF2" {
		return nil, fmt.Errorf("bad signature")
	}
	flavor := r.ReadString(4)
	if flavor == "ttcf" {
		return nil, fmt.Errorf("collections are unsupported")
	}
	length := r.ReadUint32()
	numTables := r.ReadUint16()
	reserved := r.ReadUint16()
	_ = r.ReadUint32() // totalSfntSize
	totalCompressedSize := r.ReadUint32()
	_ = r.ReadBytes(24) // versions, metadata and private block
	if length != uint32(len(b)) {
		return nil, fmt.Errorf("length in header must match file size")
	} else if numTables == 0 {
		return nil, fmt.Errorf("numTables in header must not be zero")
	} else if reserved != 0 {
		return nil, fmt.Errorf("reserved in header must be zero")
	}

	sfnt := &SFNT{
		Version: flavor,
		IsCFF:   flavor == "OTTO",
		Tables:  map[string][]byte{},
	}
	tags := make([]string, 0, numTables)
	origLengths := make([]uint32, 0, numTables)
	var uncompressedSize uint32
	for i := 0; i < int(numTables); i++ {
		if r.Len() < 1 {
			return nil, ErrInvalidFontData
		}
		flags := r.ReadUint8()
		tagIndex := int(flags & 0x3F)
		transformVersion := flags >> 6

		var tag string
		if tagIndex == 63 {
			if r.Len() < 4 {
				return nil, ErrInvalidFontData
			}
			tag = r.ReadString(4)
		} else if tagIndex < len(woff2TableTags) {
			tag = woff2TableTags[tagIndex]
		} else {
			return nil, fmt.Errorf("bad table tag index %d", tagIndex)
		}
		if transformVersion != woff2NullTransform(tag) {
			return nil, fmt.Errorf("%s: transformed tables are unsupported", tag)
		}

		origLength, err := readUintBase128(r)
		if err != nil {
			return nil, err
		} else if math.MaxUint32-uncompressedSize < origLength {
			return nil, ErrInvalidFontData
		}
		uncompressedSize += origLength
		tags = append(tags, tag)
		origLengths = append(origLengths, origLength)
	}

	if r.Len() < int64(totalCompressedSize) {
		return nil, ErrInvalidFontData
	}
	compData := r.ReadBytes(int64(totalCompressedSize))
	if MaxMemory < uncompressedSize {
		return nil, fmt.Errorf("decompressed font exceeds %d bytes", MaxMemory)
	}
	data := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(brotli.NewReader(bytes.NewReader(compData)), data); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}

	var offset uint32
	for i, tag := range tags {
		if _, ok := sfnt.Tables[tag]; ok {
			return nil, fmt.Errorf("%s: table defined more than once", tag)
		}
		sfnt.Tables[tag] = data[offset : offset+origLengths[i] : offset+origLengths[i]]
		offset += origLengths[i]
	}
	return sfnt, nil
}
