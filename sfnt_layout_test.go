package font

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestParseCoverage(t *testing.T) {
	glyphs, err := parseCoverage(concat(u16(0), coverage(3, 5, 9)), 2)
	test.Error(t, err)
	test.T(t, glyphs, []uint16{3, 5, 9})

	_, err = parseCoverage(u16(2, 2, 4, 6, 0, 10, 11, 3), 0)
	test.That(t, err != nil, "zero offset")

	glyphs, err = parseCoverage(concat(u16(0), u16(2, 2, 4, 6, 0, 10, 11, 3)), 2)
	test.Error(t, err)
	test.T(t, glyphs, []uint16{4, 5, 6, 10, 11})

	_, err = parseCoverage(concat(u16(0), u16(2, 1, 4, 6, 1)), 2)
	test.That(t, err != nil, "bad start coverage index")
	_, err = parseCoverage(concat(u16(0), u16(3, 0)), 2)
	test.That(t, err != nil, "bad format")
}

func TestParseGSUB(t *testing.T) {
	font := testFont(t)
	test.T(t, len(font.Gsub.features), 4)
	test.T(t, font.Gsub.features[1].tag, "liga")
	test.T(t, len(font.Gsub.lookups), 5)
	test.T(t, font.Gsub.lookups[2].lookupType, uint16(7))

	single := font.Gsub.lookups[0].subtables[0].(*singleSubst)
	test.T(t, single.coverage, []uint16{1})
	test.T(t, single.substitutes, []uint16{5})

	ligatures := font.Gsub.lookups[1].subtables[0].(*ligatureSubst)
	test.T(t, ligatures.ligatures[0][0].ligatureGlyph, uint16(6))
	test.T(t, ligatures.ligatures[0][0].componentGlyphIDs, []uint16{3})

	extension := font.Gsub.lookups[2].subtables[0].(*singleSubst)
	test.T(t, extension.substitutes, []uint16{7})

	context := font.Gsub.lookups[3].subtables[0].(*contextSubst)
	test.T(t, context.coverage, []uint16{11})
	test.T(t, context.lookups, []uint16{4})
}

func TestParseGSUBErrors(t *testing.T) {
	var tests = []struct {
		name string
		b    []byte
	}{
		{"short", u16(1, 0)},
		{"version", u16(2, 0, 0, 0, 0)},
		{"lookup type", concat(u16(1, 0, 0, 0, 10), gsubLookupListBytes(gsubLookupBytes(9, u16(1))))},
		{"nested extension", concat(u16(1, 0, 0, 0, 10), gsubLookupListBytes(gsubLookupBytes(7, concat(u16(1, 7), u32(8), u16(0)))))},
		{"coverage", concat(u16(1, 0, 0, 0, 10), gsubLookupListBytes(gsubLookupBytes(1, u16(2, 200, 0))))},
		{"truncated subtable", concat(u16(1, 0, 0, 0, 10), gsubLookupListBytes(gsubLookupBytes(1, u16(1, 6))))},
		{"truncated feature list", concat(u16(1, 0, 0, 10, 0), u16(1))},
		{"truncated lookup list", concat(u16(1, 0, 0, 0, 10), u16(2, 6))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			font := &SFNT{Tables: map[string][]byte{"GSUB": tt.b}}
			test.That(t, font.parseGSUB() != nil)
		})
	}
}

func TestGSUBClosure(t *testing.T) {
	var tests = []struct {
		glyphs   []uint16
		features map[string]bool
		closure  []uint16
	}{
		{[]uint16{0, 1}, nil, []uint16{0, 1, 5}},
		{[]uint16{2}, nil, []uint16{2}},
		{[]uint16{2, 3}, nil, []uint16{2, 3, 6}},
		{[]uint16{1, 2, 3}, map[string]bool{"liga": true}, []uint16{1, 2, 3, 6}},
		{[]uint16{10}, nil, []uint16{7, 10}},
		{[]uint16{11}, nil, []uint16{11, 12}},
		{[]uint16{11}, map[string]bool{"ssty": true}, []uint16{11}},
		{[]uint16{13}, nil, []uint16{13}},
	}
	font := testFont(t)
	for _, tt := range tests {
		glyphs := map[uint16]bool{}
		for _, glyphID := range tt.glyphs {
			glyphs[glyphID] = true
		}
		added := font.Gsub.closure(glyphs, tt.features)
		test.T(t, sortedGlyphs(glyphs), tt.closure, tt.glyphs)
		test.T(t, added, len(tt.glyphs) != len(tt.closure))
	}
}

func TestGSUBNesting(t *testing.T) {
	// lookup 0 is a context lookup that refers to itself
	gsub := &gsubTable{
		features: []gsubFeature{{tag: "calt", lookups: []uint16{0}}},
		lookups: []gsubLookup{{
			lookupType: 5,
			subtables:  []interface{}{&contextSubst{coverage: []uint16{1}, lookups: []uint16{0, 1}}},
		}, {
			lookupType: 1,
			subtables:  []interface{}{&singleSubst{coverage: []uint16{1}, substitutes: []uint16{2}}},
		}},
	}
	glyphs := map[uint16]bool{1: true}
	test.That(t, gsub.closure(glyphs, nil))
	test.T(t, glyphs, map[uint16]bool{1: true, 2: true})
}
