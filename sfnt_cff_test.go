package font

import (
	"testing"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/test"
)

func TestCFFINDEX(t *testing.T) {
	var tests = []struct {
		items   [][]byte
		offSize byte
	}{
		{[][]byte{}, 0},
		{[][]byte{[]byte("a"), []byte("bc")}, 1},
		{[][]byte{make([]byte, 300)}, 2},
		{[][]byte{make([]byte, 70000)}, 3},
	}
	for _, tt := range tests {
		index := &cffINDEX{}
		sizes := []int{}
		for _, item := range tt.items {
			index.Add(item)
			sizes = append(sizes, len(item))
		}
		b, err := index.Write()
		test.Error(t, err)
		test.T(t, len(b), cffINDEXSize(sizes))
		if tt.offSize != 0 {
			test.T(t, b[2], tt.offSize)
		}

		parsed, err := parseINDEX(b, parse.NewBinaryReaderBytes(b))
		test.Error(t, err)
		test.T(t, parsed.Len(), len(tt.items))
		for i, item := range tt.items {
			test.T(t, parsed.Get(uint16(i)), item)
		}
		test.T(t, parsed.raw, b)
	}

	for _, b := range [][]byte{
		{0},                // count
		{0, 1},             // offSize
		{0, 1, 5, 1, 2},    // bad offSize
		{0, 2, 1, 1, 2},    // offsets
		{0, 1, 1, 1, 3, 9}, // data
	} {
		_, err := parseINDEX(b, parse.NewBinaryReaderBytes(b))
		test.That(t, err != nil, b)
	}
}

func TestCFFDICT(t *testing.T) {
	// 100 CharStrings, -200 1000 Private, 1 charset, 0.5 12 6
	b := []byte{239, 17, 28, 0xFF, 0x38, 28, 0x03, 0xE8, 18, 140, 15, 30, 0x0A, 0x5F, 12, 6}
	dict, err := parseDICT(b)
	test.Error(t, err)
	test.T(t, len(dict), 4)

	v, ok := dict.Int(cffOpCharStrings, 0)
	test.That(t, ok)
	test.T(t, v, 100)
	v, _ = dict.Int(cffOpPrivate, 0)
	test.T(t, v, -200)
	v, _ = dict.Int(cffOpPrivate, 1)
	test.T(t, v, 1000)
	_, ok = dict.Int(256+6, 0)
	test.That(t, !ok, "real number")
	test.That(t, dict.Has(256+6))
	test.That(t, !dict.Has(cffOpFDArray))

	out, err := parseDICT(dict.bytes(map[int][]int{cffOpCharStrings: {12345}, cffOpPrivate: {7, 8}}))
	test.Error(t, err)
	v, _ = out.Int(cffOpCharStrings, 0)
	test.T(t, v, 12345)
	v, _ = out.Int(cffOpPrivate, 1)
	test.T(t, v, 8)
	v, _ = out.Int(cffOpCharset, 0)
	test.T(t, v, 1, "predefined charset is kept")

	_, err = parseDICT([]byte{139})
	test.That(t, err != nil, "operand without operator")
	_, err = parseDICT([]byte{28, 1})
	test.That(t, err != nil, "truncated operand")
	_, err = parseDICT([]byte{30, 0x12})
	test.That(t, err != nil, "unterminated real number")
	_, err = parseDICT([]byte{139, 12})
	test.That(t, err != nil, "truncated escaped operator")
}

func TestCFFSubset(t *testing.T) {
	font := testFont(t)
	glyphs := map[uint16]bool{0: true, 3: true}
	font.CFF.subset(glyphs)
	b, err := font.CFF.Write()
	test.Error(t, err)
	font.Tables["CFF "] = b

	font, err = ParseSFNT(font.Write(WriteOptions{PreserveTimestamp: true}), 0)
	test.Error(t, err)
	test.T(t, font.CFF.NumGlyphs(), testNumGlyphs)
	for glyphID := uint16(0); glyphID < testNumGlyphs; glyphID++ {
		if glyphs[glyphID] {
			test.T(t, font.CFF.CharString(glyphID), []byte{byte(139 + glyphID), 0x0E})
		} else {
			test.T(t, font.CFF.CharString(glyphID), cffEndchar)
		}
	}
}

func TestCFFBadNumGlyphs(t *testing.T) {
	font := testFont(t)
	font.Tables["maxp"] = concat(u32(0x00005000), u16(testNumGlyphs+1))
	_, err := ParseSFNT(font.Write(WriteOptions{PreserveTimestamp: true}), 0)
	test.That(t, err != nil)
}
