package font

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/tdewolff/parse/v2"
)

// cffEndchar is the Type 2 charstring of an empty glyph.
var cffEndchar = []byte{0x0E}

// CFF DICT operators that hold offsets, two byte operators are prefixed with 256
const (
	cffOpCharset     = 15
	cffOpEncoding    = 16
	cffOpCharStrings = 17
	cffOpPrivate     = 18
	cffOpSubrs       = 19
	cffOpROS         = 256 + 30
	cffOpFDArray     = 256 + 36
	cffOpFDSelect    = 256 + 37
)

type cffTable struct {
	major, minor uint8
	name         []byte // raw INDEX
	top          cffDICT
	strings      []byte // raw INDEX
	globalSubrs  []byte // raw INDEX
	charStrings  *cffINDEX

	charset  []byte // nil for predefined charsets
	encoding []byte // nil for predefined encodings
	fdSelect []byte // CID fonts only

	fontDICTs []cffDICT // CID fonts only
	privates  []cffPrivate
}

type cffPrivate struct {
	dict  cffDICT
	subrs []byte // raw INDEX, nil if absent
}

// IsCID returns true for CID-keyed fonts.
func (cff *cffTable) IsCID() bool {
	return cff.top.Has(cffOpROS)
}

// NumGlyphs returns the number of charstrings.
func (cff *cffTable) NumGlyphs() int {
	return cff.charStrings.Len()
}

// CharString returns the Type 2 charstring of a glyph.
func (cff *cffTable) CharString(glyphID uint16) []byte {
	return cff.charStrings.Get(glyphID)
}

func (sfnt *SFNT) parseCFF() error {
	b := sfnt.Tables["CFF "]
	if len(b) < 4 {
		return fmt.Errorf("CFF: bad table")
	}
	r := parse.NewBinaryReaderBytes(b)
	major := r.ReadUint8()
	minor := r.ReadUint8()
	if major != 1 {
		return fmt.Errorf("CFF: bad version")
	}
	hdrSize := r.ReadUint8()
	if hdrSize < 4 {
		return fmt.Errorf("CFF: bad hdrSize")
	}
	offSize := r.ReadUint8() // offSize, not actually used
	if offSize == 0 || 4 < offSize {
		return fmt.Errorf("CFF: bad offSize")
	}
	if _, err := r.Seek(int64(hdrSize), io.SeekStart); err != nil {
		return fmt.Errorf("CFF: bad hdrSize")
	}

	cff := &cffTable{
		major: major,
		minor: minor,
	}

	nameINDEX, err := parseINDEX(b, r)
	if err != nil {
		return fmt.Errorf("CFF: Name INDEX: %w", err)
	} else if nameINDEX.Len() != 1 {
		return fmt.Errorf("CFF: Name INDEX: bad count")
	}
	cff.name = nameINDEX.raw

	topINDEX, err := parseINDEX(b, r)
	if err != nil {
		return fmt.Errorf("CFF: Top INDEX: %w", err)
	} else if topINDEX.Len() != 1 {
		return fmt.Errorf("CFF: Top INDEX: bad count")
	}
	if cff.top, err = parseDICT(topINDEX.Get(0)); err != nil {
		return fmt.Errorf("CFF: Top DICT: %w", err)
	}

	stringINDEX, err := parseINDEX(b, r)
	if err != nil {
		return fmt.Errorf("CFF: String INDEX: %w", err)
	}
	cff.strings = stringINDEX.raw

	globalSubrsINDEX, err := parseINDEX(b, r)
	if err != nil {
		return fmt.Errorf("CFF: Global Subrs INDEX: %w", err)
	}
	cff.globalSubrs = globalSubrsINDEX.raw

	if charstringType, ok := cff.top.Int(256+6, 0); ok && charstringType != 2 {
		return fmt.Errorf("CFF: Type %d Charstring format not supported", charstringType)
	}

	charStrings, ok := cff.top.Int(cffOpCharStrings, 0)
	if !ok || charStrings < 0 || len(b) <= charStrings {
		return fmt.Errorf("CFF: bad CharStrings offset")
	}
	_, _ = r.Seek(int64(charStrings), io.SeekStart)
	if cff.charStrings, err = parseINDEX(b, r); err != nil {
		return fmt.Errorf("CFF: CharStrings INDEX: %w", err)
	}
	nGlyphs := cff.charStrings.Len()
	if nGlyphs == 0 || int(sfnt.Maxp.NumGlyphs) != nGlyphs {
		return fmt.Errorf("CFF: CharStrings INDEX: bad count")
	}

	if charset, ok := cff.top.Int(cffOpCharset, 0); ok && 2 < charset {
		if cff.charset, err = cffCharsetBytes(b, charset, nGlyphs); err != nil {
			return fmt.Errorf("CFF: charset: %w", err)
		}
	}
	if encoding, ok := cff.top.Int(cffOpEncoding, 0); ok && 1 < encoding {
		if cff.encoding, err = cffEncodingBytes(b, encoding); err != nil {
			return fmt.Errorf("CFF: encoding: %w", err)
		}
	}

	if !cff.IsCID() {
		private, err := parsePrivate(b, cff.top)
		if err != nil {
			return fmt.Errorf("CFF: %w", err)
		}
		cff.privates = []cffPrivate{private}
	} else {
		fdArray, ok := cff.top.Int(cffOpFDArray, 0)
		if !ok || fdArray < 0 || len(b) <= fdArray {
			return fmt.Errorf("CFF: bad FDArray offset")
		}
		_, _ = r.Seek(int64(fdArray), io.SeekStart)
		fontINDEX, err := parseINDEX(b, r)
		if err != nil {
			return fmt.Errorf("CFF: Font INDEX: %w", err)
		}
		for i := 0; i < fontINDEX.Len(); i++ {
			fontDICT, err := parseDICT(fontINDEX.Get(uint16(i)))
			if err != nil {
				return fmt.Errorf("CFF: Font DICT: %w", err)
			}
			private, err := parsePrivate(b, fontDICT)
			if err != nil {
				return fmt.Errorf("CFF: Font DICT %d: %w", i, err)
			}
			cff.fontDICTs = append(cff.fontDICTs, fontDICT)
			cff.privates = append(cff.privates, private)
		}

		fdSelect, ok := cff.top.Int(cffOpFDSelect, 0)
		if !ok || fdSelect < 0 || len(b) <= fdSelect {
			return fmt.Errorf("CFF: bad FDSelect offset")
		}
		if cff.fdSelect, err = cffFDSelectBytes(b, fdSelect, nGlyphs); err != nil {
			return fmt.Errorf("CFF: FDSelect: %w", err)
		}
	}
	sfnt.CFF = cff
	return nil
}

func parsePrivate(b []byte, dict cffDICT) (cffPrivate, error) {
	size, okSize := dict.Int(cffOpPrivate, 0)
	offset, okOffset := dict.Int(cffOpPrivate, 1)
	if !okSize || !okOffset {
		return cffPrivate{}, fmt.Errorf("missing Private DICT")
	} else if size < 0 || offset < 0 || len(b) < offset || len(b)-offset < size {
		return cffPrivate{}, fmt.Errorf("bad Private DICT offset")
	}

	private := cffPrivate{}
	var err error
	if private.dict, err = parseDICT(b[offset : offset+size]); err != nil {
		return cffPrivate{}, fmt.Errorf("Private DICT: %w", err)
	}
	if subrs, ok := private.dict.Int(cffOpSubrs, 0); ok && subrs != 0 {
		if subrs < 0 || len(b)-offset <= subrs {
			return cffPrivate{}, fmt.Errorf("bad Local Subrs INDEX offset")
		}
		r := parse.NewBinaryReaderBytes(b)
		_, _ = r.Seek(int64(offset+subrs), io.SeekStart)
		subrsINDEX, err := parseINDEX(b, r)
		if err != nil {
			return cffPrivate{}, fmt.Errorf("Local Subrs INDEX: %w", err)
		}
		private.subrs = subrsINDEX.raw
	}
	return private, nil
}

func cffCharsetBytes(b []byte, offset, nGlyphs int) ([]byte, error) {
	r := parse.NewBinaryReaderBytes(b)
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil || r.Len() < 1 {
		return nil, ErrInvalidFontData
	}
	format := r.ReadUint8()
	switch format {
	case 0:
		if r.Len() < 2*int64(nGlyphs-1) {
			return nil, ErrInvalidFontData
		}
		_ = r.ReadBytes(2 * int64(nGlyphs-1))
	case 1, 2:
		rangeSize := int64(3)
		if format == 2 {
			rangeSize = 4
		}
		for covered := 1; covered < nGlyphs; {
			if r.Len() < rangeSize {
				return nil, ErrInvalidFontData
			}
			_ = r.ReadUint16() // first
			if format == 1 {
				covered += int(r.ReadUint8()) + 1
			} else {
				covered += int(r.ReadUint16()) + 1
			}
		}
	default:
		return nil, fmt.Errorf("bad format")
	}
	return b[offset:r.Pos()], nil
}

func cffEncodingBytes(b []byte, offset int) ([]byte, error) {
	r := parse.NewBinaryReaderBytes(b)
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil || r.Len() < 2 {
		return nil, ErrInvalidFontData
	}
	format := r.ReadUint8()
	var n int64
	switch format & 0x7F {
	case 0:
		n = int64(r.ReadUint8()) // nCodes
	case 1:
		n = 2 * int64(r.ReadUint8()) // nRanges
	default:
		return nil, fmt.Errorf("bad format")
	}
	if r.Len() < n {
		return nil, ErrInvalidFontData
	}
	_ = r.ReadBytes(n)
	if format&0x80 != 0 {
		if r.Len() < 1 {
			return nil, ErrInvalidFontData
		}
		nSups := int64(r.ReadUint8())
		if r.Len() < 3*nSups {
			return nil, ErrInvalidFontData
		}
		_ = r.ReadBytes(3 * nSups)
	}
	return b[offset:r.Pos()], nil
}

func cffFDSelectBytes(b []byte, offset, nGlyphs int) ([]byte, error) {
	r := parse.NewBinaryReaderBytes(b)
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil || r.Len() < 1 {
		return nil, ErrInvalidFontData
	}
	format := r.ReadUint8()
	var n int64
	switch format {
	case 0:
		n = int64(nGlyphs)
	case 3:
		if r.Len() < 2 {
			return nil, ErrInvalidFontData
		}
		n = 3*int64(r.ReadUint16()) + 2 // ranges and sentinel
	default:
		return nil, fmt.Errorf("bad format")
	}
	if r.Len() < n {
		return nil, ErrInvalidFontData
	}
	_ = r.ReadBytes(n)
	return b[offset:r.Pos()], nil
}

// subset replaces the charstrings of all glyphs not in glyphs by an empty charstring and rebuilds the table. Glyph IDs, subroutines, strings and charset are retained.
func (cff *cffTable) subset(glyphs map[uint16]bool) {
	charStrings := &cffINDEX{}
	for glyphID := 0; glyphID < cff.charStrings.Len(); glyphID++ {
		if glyphs[uint16(glyphID)] {
			charStrings.Add(cff.charStrings.Get(uint16(glyphID)))
		} else {
			charStrings.Add(cffEndchar)
		}
	}
	cff.charStrings = charStrings
}

// Write serializes the CFF table. All offsets in the DICTs are written as five byte integers so that the DICT sizes are known before the layout is.
func (cff *cffTable) Write() ([]byte, error) {
	charStrings, err := cff.charStrings.Write()
	if err != nil {
		return nil, fmt.Errorf("CFF: CharStrings INDEX: %w", err)
	}

	// placeholder DICTs to determine sizes
	topSize := len(cff.top.bytes(nil))
	privateSizes := make([]int, len(cff.privates))
	for i, private := range cff.privates {
		privateSizes[i] = len(private.dict.bytes(nil))
	}
	fontDICTSizes := make([]int, len(cff.fontDICTs))
	for i, fontDICT := range cff.fontDICTs {
		fontDICTSizes[i] = len(fontDICT.bytes(nil))
	}

	// layout
	pos := 4 + len(cff.name)
	pos += cffINDEXSize([]int{topSize})
	pos += len(cff.strings) + len(cff.globalSubrs)
	charsetOffset := pos
	pos += len(cff.charset)
	encodingOffset := pos
	pos += len(cff.encoding)
	fdSelectOffset := pos
	pos += len(cff.fdSelect)
	charStringsOffset := pos
	pos += len(charStrings)
	fdArrayOffset := pos
	if cff.IsCID() {
		pos += cffINDEXSize(fontDICTSizes)
	}
	privateOffsets := make([]int, len(cff.privates))
	for i, private := range cff.privates {
		privateOffsets[i] = pos
		pos += privateSizes[i] + len(private.subrs)
	}
	if math.MaxInt32 < pos {
		return nil, fmt.Errorf("CFF: table too large")
	}

	// write DICTs with final offsets
	topValues := map[int][]int{
		cffOpCharStrings: {charStringsOffset},
	}
	if cff.charset != nil {
		topValues[cffOpCharset] = []int{charsetOffset}
	}
	if cff.encoding != nil {
		topValues[cffOpEncoding] = []int{encodingOffset}
	}
	if cff.IsCID() {
		topValues[cffOpFDArray] = []int{fdArrayOffset}
		topValues[cffOpFDSelect] = []int{fdSelectOffset}
	} else {
		topValues[cffOpPrivate] = []int{privateSizes[0], privateOffsets[0]}
	}
	top := cff.top.bytes(topValues)

	fontINDEX := &cffINDEX{}
	for i, fontDICT := range cff.fontDICTs {
		fontINDEX.Add(fontDICT.bytes(map[int][]int{
			cffOpPrivate: {privateSizes[i], privateOffsets[i]},
		}))
	}

	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint8(cff.major)
	w.WriteUint8(cff.minor)
	w.WriteUint8(4) // hdrSize
	w.WriteUint8(4) // offSize
	w.WriteBytes(cff.name)
	topINDEX := &cffINDEX{}
	topINDEX.Add(top)
	topBytes, err := topINDEX.Write()
	if err != nil {
		return nil, fmt.Errorf("CFF: Top INDEX: %w", err)
	}
	w.WriteBytes(topBytes)
	w.WriteBytes(cff.strings)
	w.WriteBytes(cff.globalSubrs)
	w.WriteBytes(cff.charset)
	w.WriteBytes(cff.encoding)
	w.WriteBytes(cff.fdSelect)
	w.WriteBytes(charStrings)
	if cff.IsCID() {
		fontBytes, err := fontINDEX.Write()
		if err != nil {
			return nil, fmt.Errorf("CFF: Font INDEX: %w", err)
		}
		w.WriteBytes(fontBytes)
	}
	for i, private := range cff.privates {
		var values map[int][]int
		if private.subrs != nil {
			values = map[int][]int{cffOpSubrs: {privateSizes[i]}}
		}
		w.WriteBytes(private.dict.bytes(values))
		w.WriteBytes(private.subrs)
	}
	if int(w.Len()) != pos {
		return nil, fmt.Errorf("CFF: bad layout")
	}
	return w.Bytes(), nil
}

////////////////////////////////////////////////////////////////

type cffINDEX struct {
	offset []uint32
	data   []byte
	raw    []byte // INDEX as it was parsed
}

func (t *cffINDEX) Len() int {
	if len(t.offset) == 0 {
		return 0
	}
	return len(t.offset) - 1
}

func (t *cffINDEX) Get(i uint16) []byte {
	if int(i) < t.Len() {
		return t.data[t.offset[i]:t.offset[i+1]]
	}
	return nil
}

func (t *cffINDEX) Add(data []byte) int {
	if len(t.offset) == 0 {
		t.offset = append(t.offset, 0)
	}
	t.data = append(t.data, data...)
	t.offset = append(t.offset, uint32(len(t.data)))
	return len(t.offset) - 2
}

// parseINDEX parses the INDEX at the position of r, where r reads from b.
func parseINDEX(b []byte, r *parse.BinaryReader) (*cffINDEX, error) {
	start := r.Pos()
	t := &cffINDEX{}
	if r.Len() < 2 {
		return nil, ErrInvalidFontData
	}
	count := uint32(r.ReadUint16())
	if count == 0 {
		t.raw = b[start:r.Pos()]
		return t, nil
	} else if r.Len() < 1 {
		return nil, ErrInvalidFontData
	}

	offSize := r.ReadUint8()
	if offSize == 0 || 4 < offSize {
		return nil, fmt.Errorf("bad offSize")
	} else if r.Len() < int64(offSize)*int64(count+1) {
		return nil, fmt.Errorf("bad data")
	}

	t.offset = make([]uint32, count+1)
	for i := uint32(0); i < count+1; i++ {
		offset := readOffset(r, offSize)
		if offset == 0 || 0 < i && offset-1 < t.offset[i-1] {
			return nil, fmt.Errorf("bad offset")
		}
		t.offset[i] = offset - 1
	}
	if t.offset[0] != 0 || r.Len() < int64(t.offset[count]) {
		return nil, fmt.Errorf("bad data")
	}
	t.data = r.ReadBytes(int64(t.offset[count]))
	t.raw = b[start:r.Pos()]
	return t, nil
}

func cffINDEXOffSize(n int) int {
	if n <= math.MaxUint8 {
		return 1
	} else if n <= math.MaxUint16 {
		return 2
	} else if n <= 1<<24-1 {
		return 3
	}
	return 4
}

// cffINDEXSize returns the size of an INDEX holding items of the given sizes.
func cffINDEXSize(sizes []int) int {
	if len(sizes) == 0 {
		return 2
	}
	n := 0
	for _, size := range sizes {
		n += size
	}
	return 3 + cffINDEXOffSize(n+1)*(len(sizes)+1) + n
}

func (t *cffINDEX) Write() ([]byte, error) {
	if math.MaxUint16 < t.Len() {
		return nil, fmt.Errorf("too many indices")
	} else if t.Len() == 0 {
		return []byte{0, 0}, nil // zero count
	}

	offSize := cffINDEXOffSize(len(t.data) + 1)
	w := parse.NewBinaryWriter(make([]byte, 0, 3+len(t.data)+offSize*len(t.offset)))
	w.WriteUint16(uint16(t.Len()))
	w.WriteUint8(uint8(offSize))
	for _, offset := range t.offset {
		switch offSize {
		case 1:
			w.WriteUint8(uint8(offset + 1))
		case 2:
			w.WriteUint16(uint16(offset + 1))
		case 3:
			w.WriteUint8(uint8((offset + 1) >> 16))
			w.WriteUint16(uint16(offset + 1))
		default:
			w.WriteUint32(offset + 1)
		}
	}
	w.WriteBytes(t.data)
	return w.Bytes(), nil
}

////////////////////////////////////////////////////////////////

// cffDICTEntry is an operator with its operands as raw bytes, so that entries can be written back unchanged.
type cffDICTEntry struct {
	op       int
	operands [][]byte
}

type cffDICT []cffDICTEntry

func parseDICT(b []byte) (cffDICT, error) {
	dict := cffDICT{}
	r := parse.NewBinaryReaderBytes(b)
	operands := [][]byte{}
	for 0 < r.Len() {
		start := r.Pos()
		b0 := r.ReadUint8()
		if b0 < 22 {
			// operator
			op := int(b0)
			if b0 == 12 {
				if r.Len() < 1 {
					return nil, ErrInvalidFontData
				}
				op = 256 + int(r.ReadUint8())
			}
			dict = append(dict, cffDICTEntry{op: op, operands: operands})
			operands = [][]byte{}
			continue
		}

		var n int64
		switch {
		case b0 == 28:
			n = 2
		case b0 == 29:
			n = 4
		case b0 == 30:
			for {
				if r.Len() < 1 {
					return nil, ErrInvalidFontData
				}
				nibbles := r.ReadUint8()
				if nibbles&0x0F == 0x0F || nibbles&0xF0 == 0xF0 {
					break
				}
			}
		case 32 <= b0 && b0 <= 246:
		case 247 <= b0 && b0 <= 254:
			n = 1
		default:
			return nil, fmt.Errorf("bad operand")
		}
		if r.Len() < n {
			return nil, ErrInvalidFontData
		}
		_ = r.ReadBytes(n)
		if 48 <= len(operands) {
			return nil, fmt.Errorf("too many operands for operator")
		}
		operands = append(operands, b[start:r.Pos()])
	}
	if len(operands) != 0 {
		return nil, fmt.Errorf("operands without operator")
	}
	return dict, nil
}

// Has returns true if the operator is in the DICT.
func (dict cffDICT) Has(op int) bool {
	for _, entry := range dict {
		if entry.op == op {
			return true
		}
	}
	return false
}

// Int returns the i-th operand of the operator as an integer.
func (dict cffDICT) Int(op, i int) (int, bool) {
	for _, entry := range dict {
		if entry.op == op {
			if len(entry.operands) <= i {
				return 0, false
			}
			return cffDICTInt(entry.operands[i])
		}
	}
	return 0, false
}

func cffDICTInt(b []byte) (int, bool) {
	b0 := int(b[0])
	switch {
	case b0 == 28:
		return int(int16(binary.BigEndian.Uint16(b[1:]))), true
	case b0 == 29:
		return int(int32(binary.BigEndian.Uint32(b[1:]))), true
	case 32 <= b0 && b0 <= 246:
		return b0 - 139, true
	case 247 <= b0 && b0 <= 250:
		return (b0-247)*256 + int(b[1]) + 108, true
	case 251 <= b0 && b0 <= 254:
		return -(b0-251)*256 - int(b[1]) - 108, true
	}
	return 0, false // real number
}

// bytes serializes the DICT. Operators in values get their operands replaced by five byte integers, operators that appear in values but not in the DICT are not added.
func (dict cffDICT) bytes(values map[int][]int) []byte {
	offsetOps := map[int]int{
		cffOpCharset:     1,
		cffOpEncoding:    1,
		cffOpCharStrings: 1,
		cffOpPrivate:     2,
		cffOpSubrs:       1,
		cffOpFDArray:     1,
		cffOpFDSelect:    1,
	}

	w := parse.NewBinaryWriter([]byte{})
	for _, entry := range dict {
		n, isOffset := offsetOps[entry.op]
		if isOffset && (entry.op == cffOpCharset && !cffIsCustomOffset(entry, 2) || entry.op == cffOpEncoding && !cffIsCustomOffset(entry, 1)) {
			isOffset = false // predefined charset or encoding
		}
		if isOffset && len(entry.operands) == n {
			vals := values[entry.op]
			for i := 0; i < n; i++ {
				val := 0
				if i < len(vals) {
					val = vals[i]
				}
				w.WriteUint8(29)
				w.WriteUint32(uint32(int32(val)))
			}
		} else {
			for _, operand := range entry.operands {
				w.WriteBytes(operand)
			}
		}
		if 256 <= entry.op {
			w.WriteUint8(12)
			w.WriteUint8(uint8(entry.op - 256))
		} else {
			w.WriteUint8(uint8(entry.op))
		}
	}
	return w.Bytes()
}

func cffIsCustomOffset(entry cffDICTEntry, maxPredefined int) bool {
	if len(entry.operands) != 1 {
		return false
	}
	offset, ok := cffDICTInt(entry.operands[0])
	return ok && maxPredefined < offset
}
