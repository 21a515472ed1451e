package font

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestParseMATH(t *testing.T) {
	font := testFont(t)
	test.T(t, font.Math.constructions, map[uint16][]uint16{4: {8, 9}})

	glyphs := map[uint16]bool{1: true, 4: true}
	test.That(t, font.Math.closure(glyphs))
	test.T(t, sortedGlyphs(glyphs), []uint16{1, 4, 8, 9})
	test.That(t, !font.Math.closure(glyphs), "nothing to add")
}

func TestMATHClosureChain(t *testing.T) {
	math := &mathTable{constructions: map[uint16][]uint16{1: {2}, 2: {3, 4}}}
	glyphs := map[uint16]bool{1: true}
	test.That(t, math.closure(glyphs))
	test.T(t, sortedGlyphs(glyphs), []uint16{1, 2, 3, 4})
}

func TestParseMATHErrors(t *testing.T) {
	var tests = []struct {
		name string
		b    []byte
	}{
		{"short", u16(1, 0)},
		{"version", u16(2, 0, 0, 0, 0)},
		{"variants offset", u16(1, 0, 0, 0, 100)},
		{"glyph count", concat(u16(1, 0, 0, 0, 10), u16(0, 14, 0, 2, 0, 20, 20), coverage(4))},
		{"construction", concat(u16(1, 0, 0, 0, 10), u16(0, 12, 0, 1, 0, 200), coverage(4))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			font := &SFNT{Tables: map[string][]byte{"MATH": tt.b}}
			test.That(t, font.parseMATH() != nil)
		})
	}
}
