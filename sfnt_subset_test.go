package font

import (
	"testing"

	"github.com/golang/freetype/truetype"
	"github.com/tdewolff/test"
	"golang.org/x/image/font/gofont/goregular"
)

// keepAllOptions keeps everything but the unused glyphs.
func keepAllOptions() SubsetOptions {
	return SubsetOptions{
		LayoutFeatures:    []string{All},
		NameIDs:           []string{All},
		NameLegacy:        true,
		NameLanguages:     []string{All},
		GlyphNames:        true,
		NotdefGlyph:       true,
		RecommendedGlyphs: true,
		LegacyCmap:        true,
		SymbolCmap:        true,
	}
}

func TestNewSubsetter(t *testing.T) {
	s, err := NewSubsetter(DefaultSubsetOptions())
	test.Error(t, err)
	test.That(t, s.features["liga"])
	test.That(t, !s.features["salt"])
	test.That(t, s.nameIDs[NamePostScript])
	test.That(t, !s.nameIDs[NamePreferredFamily])
	test.T(t, s.languages, map[uint16]bool{0x0409: true})
	test.That(t, s.dropTables["DSIG"])

	s, err = NewSubsetter(SubsetOptions{NameIDs: []string{"16"}, DropTables: []string{"cvt"}})
	test.Error(t, err)
	test.T(t, len(s.nameIDs), 8, "IDs 0 to 6 are always kept")
	test.That(t, s.dropTables["cvt "])

	s, err = NewSubsetter(keepAllOptions())
	test.Error(t, err)
	test.That(t, s.features == nil && s.nameIDs == nil && s.languages == nil)

	var tests = []SubsetOptions{
		{LayoutFeatures: []string{"toolong"}},
		{NameIDs: []string{"x"}},
		{NameIDs: []string{"70000"}},
		{NameLanguages: []string{"-1"}},
		{DropTables: []string{""}},
		{DropTables: []string{"GSUBX"}},
	}
	for _, opts := range tests {
		_, err := NewSubsetter(opts)
		test.That(t, err != nil, opts)
	}
}

func TestSubsetterClosure(t *testing.T) {
	var tests = []struct {
		runes    string
		features []string
		glyphs   []uint16
	}{
		{"", []string{All}, []uint16{0}},
		{"A", []string{All}, []uint16{0, 1, 5}},
		{"BC", []string{All}, []uint16{0, 2, 3, 6}},
		{"ABC", []string{"liga"}, []uint16{0, 1, 2, 3, 6}},
		{"D", []string{All}, []uint16{0, 4, 8, 9}},
		{"EF", []string{All}, []uint16{0, 7, 10, 11, 12}},
		{"G", []string{All}, []uint16{0, 13}},
		{"Z", []string{All}, []uint16{0}},
	}
	font := testFont(t)
	for _, tt := range tests {
		opts := keepAllOptions()
		opts.LayoutFeatures = tt.features
		s, err := NewSubsetter(opts)
		test.Error(t, err)
		s.Populate([]rune(tt.runes))

		glyphs, err := s.closure(font)
		test.Error(t, err)
		test.T(t, sortedGlyphs(glyphs), tt.glyphs, tt.runes)
	}
}

func TestSubsetCFF(t *testing.T) {
	font := testFont(t)
	s, err := NewSubsetter(keepAllOptions())
	test.Error(t, err)
	s.Populate([]rune("AD"))
	test.Error(t, s.Subset(font))

	font, err = ParseSFNT(font.Write(WriteOptions{PreserveTimestamp: true}), 0)
	test.Error(t, err)
	test.T(t, font.NumGlyphs(), uint16(testNumGlyphs), "glyph IDs are retained")
	runeMap, err := font.BestCmap()
	test.Error(t, err)
	test.T(t, runeMap, map[rune]uint16{'A': 1, 'D': 4})

	kept := map[uint16]bool{0: true, 1: true, 4: true, 5: true, 8: true, 9: true}
	for glyphID := uint16(0); glyphID < testNumGlyphs; glyphID++ {
		if kept[glyphID] {
			test.T(t, font.CFF.CharString(glyphID), []byte{byte(139 + glyphID), 0x0E}, glyphID)
		} else {
			test.T(t, font.CFF.CharString(glyphID), cffEndchar, glyphID)
		}
	}
	test.T(t, len(font.Name.NameRecord), 8, "all names are kept")
	test.T(t, len(font.Tables["post"]), 32+2+11, "glyph names are kept")
	test.T(t, font.OS2.UlUnicodeRange[0], uint32(0xFFFFFFFF), "unicode ranges are kept")
	test.That(t, font.Gsub != nil && font.Math != nil)
}

func TestSubsetDefaultOptions(t *testing.T) {
	font := testFont(t)
	opts := DefaultSubsetOptions()
	opts.NotdefGlyph = false
	opts.DropTables = append(opts.DropTables, "GSUB", "head")
	s, err := NewSubsetter(opts)
	test.Error(t, err)
	s.Populate([]rune("A"))
	test.Error(t, s.Subset(font))

	font, err = ParseSFNT(font.Write(WriteOptions{PreserveTimestamp: true}), 0)
	test.Error(t, err)
	test.T(t, font.CFF.CharString(0), cffEndchar, "notdef is emptied")
	test.T(t, font.CFF.CharString(1), []byte{140, 0x0E})
	test.T(t, font.CFF.CharString(5), []byte{144, 0x0E}, "ssty is a default feature")
	test.That(t, font.Gsub == nil, "GSUB is dropped")
	test.That(t, font.Head != nil, "head is required")
	test.T(t, len(font.Name.NameRecord), 5, "Windows English IDs 0 to 6")
	test.T(t, font.Tables["post"][:4], []byte{0, 3, 0, 0})
	test.T(t, len(font.Tables["post"]), 32)
	test.T(t, font.OS2.UlUnicodeRange, [4]uint32{1, 0, 0, 0})
	test.T(t, font.OS2.UsFirstCharIndex, uint16('A'))
	test.T(t, font.OS2.UsLastCharIndex, uint16('A'))
}

func TestSubsetTrueType(t *testing.T) {
	font, err := ParseSFNT(goregular.TTF, 0)
	test.Error(t, err)
	orig, err := ParseSFNT(goregular.TTF, 0)
	test.Error(t, err)

	s, err := NewSubsetter(keepAllOptions())
	test.Error(t, err)
	rs := []rune("Fira∑")
	s.Populate(rs)
	glyphs, err := s.closure(font)
	test.Error(t, err)
	test.Error(t, s.Subset(font))

	b := font.Write(WriteOptions{PreserveTimestamp: true})
	font, err = ParseSFNT(b, 0)
	test.Error(t, err)
	test.T(t, font.NumGlyphs(), orig.NumGlyphs())
	for glyphID := uint16(0); glyphID < orig.NumGlyphs(); glyphID++ {
		if glyphs[glyphID] {
			test.T(t, font.Glyf.Get(glyphID)[:len(orig.Glyf.Get(glyphID))], orig.Glyf.Get(glyphID), glyphID)
		} else {
			test.T(t, len(font.Glyf.Get(glyphID)), 0, glyphID)
		}
	}
	for glyphID := uint16(0); glyphID < 4; glyphID++ {
		test.That(t, glyphs[glyphID], "recommended glyph", glyphID)
	}

	ttf, err := truetype.Parse(b)
	test.Error(t, err)
	for _, r := range rs {
		if orig.GlyphIndex(r) != 0 {
			test.T(t, uint16(ttf.Index(r)), orig.GlyphIndex(r), string(r))
		}
	}
	test.T(t, ttf.Index('z'), truetype.Index(0), "other characters are removed")
}

func TestSubsetTrueTypeComposite(t *testing.T) {
	font, err := ParseSFNT(goregular.TTF, 0)
	test.Error(t, err)

	composite := -1
	for glyphID := uint16(0); glyphID < font.NumGlyphs(); glyphID++ {
		if font.Glyf.IsComposite(glyphID) {
			composite = int(glyphID)
			break
		}
	}
	if composite == -1 {
		t.Skip("font has no composite glyphs")
	}

	deps, err := font.Glyf.Dependencies(uint16(composite))
	test.Error(t, err)
	test.That(t, 1 < len(deps))

	var r rune = -1
	runeMap, err := font.BestCmap()
	test.Error(t, err)
	for c, glyphID := range runeMap {
		if int(glyphID) == composite {
			r = c
			break
		}
	}
	if r == -1 {
		t.Skip("composite glyph has no character")
	}

	s, err := NewSubsetter(keepAllOptions())
	test.Error(t, err)
	s.Populate([]rune{r})
	glyphs, err := s.closure(font)
	test.Error(t, err)
	for _, dep := range deps {
		test.That(t, glyphs[dep], "component", dep)
	}
}
