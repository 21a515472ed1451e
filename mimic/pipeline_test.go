package mimic

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/firamath/font"
	"github.com/google/go-cmp/cmp"
	"github.com/tdewolff/test"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

var testPairs = []Pair{
	{Reference: "KaTeX_AMS-Regular.ttf", Template: "FiraMath-AMS-Regular.otf"},
	{Reference: "KaTeX_Main-Italic.ttf", Template: "FiraMath-Italic.otf"},
	{Reference: "KaTeX_Main-Regular.ttf", Template: "FiraMath-Regular.otf"},
	{Reference: "KaTeX_Math-Italic.ttf", Template: "FiraMath-Italic.otf"},
	{Reference: "KaTeX_Size1-Regular.ttf", Template: "FiraMath-SIZEONE.otf"},
	{Reference: "KaTeX_Size2-Regular.ttf", Template: "FiraMath-SIZETWO.otf"},
}

func writeTestFonts(t *testing.T, dir string, b []byte, filenames ...string) {
	for _, filename := range filenames {
		test.Error(t, os.WriteFile(filepath.Join(dir, filename), b, 0644))
	}
}

// subsetTestFont returns Go Regular reduced to the given characters.
func subsetTestFont(t *testing.T, rs string) []byte {
	sfnt, err := font.ParseSFNT(goregular.TTF, 0)
	test.Error(t, err)
	subsetter, err := font.NewSubsetter(SubsetOptions())
	test.Error(t, err)
	subsetter.Populate([]rune(rs))
	test.Error(t, subsetter.Subset(sfnt))
	return sfnt.Write(font.WriteOptions{PreserveTimestamp: true})
}

func TestExtractCodepoints(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, subsetTestFont(t, "cab"), "KaTeX_Main-Regular.ttf")

	cps, err := ExtractCodepoints(filepath.Join(dir, "KaTeX_Main-Regular.ttf"))
	test.Error(t, err)
	for _, r := range "abc" {
		test.That(t, containsRune(cps, r), string(r))
	}
	test.That(t, !containsRune(cps, 'd'))
	test.That(t, sort.SliceIsSorted(cps, func(i, j int) bool { return cps[i] < cps[j] }))

	_, err = ExtractCodepoints(filepath.Join(dir, "missing.ttf"))
	test.That(t, errors.Is(err, os.ErrNotExist))

	writeTestFonts(t, dir, []byte("not a font"), "bad.ttf")
	_, err = ExtractCodepoints(filepath.Join(dir, "bad.ttf"))
	test.That(t, err != nil)
	test.That(t, strings.HasPrefix(err.Error(), filepath.Join(dir, "bad.ttf")))
}

func TestExtractCodepointsIdempotent(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "KaTeX_Main-Regular.ttf")
	writeTestFonts(t, dir, subsetTestFont(t, "zyx=+0"), "KaTeX_Main-Regular.ttf")

	cps, err := ExtractCodepoints(filename)
	test.Error(t, err)
	cps2, err := ExtractCodepoints(filename)
	test.Error(t, err)
	if diff := cmp.Diff(cps, cps2); diff != "" {
		t.Errorf("codepoints mismatch (-first +second):\n%s", diff)
	}
	test.That(t, containsRune(cps, '='))
}

func TestSubsetFont(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, goregular.TTF, "FiraMath-Regular.otf")
	dst := filepath.Join(dir, "FiraMath_Main.otf")
	cps := Codepoints{'a', 'b', 'é'}
	test.Error(t, SubsetFont(filepath.Join(dir, "FiraMath-Regular.otf"), cps, dst, "Regular", Options{Verify: true, WOFF2: true}))

	b, err := os.ReadFile(dst)
	test.Error(t, err)
	out, err := font.ParseSFNT(b, 0)
	test.Error(t, err)
	orig, err := font.ParseSFNT(goregular.TTF, 0)
	test.Error(t, err)
	test.T(t, out.NumGlyphs(), orig.NumGlyphs(), "glyph IDs are retained")

	ref, err := sfnt.Parse(b)
	test.Error(t, err)
	buf := &sfnt.Buffer{}
	for _, r := range cps {
		glyphID, err := ref.GlyphIndex(buf, r)
		test.Error(t, err)
		test.T(t, uint16(glyphID), orig.GlyphIndex(r), string(r))
	}
	name, err := ref.Name(buf, sfnt.NameIDFamily)
	test.Error(t, err)
	test.T(t, name, "FiraMath_Main")
	name, err = ref.Name(buf, sfnt.NameIDFull)
	test.Error(t, err)
	test.T(t, name, "FiraMath_Main-Regular")

	woff2, err := os.ReadFile(filepath.Join(dir, "FiraMath_Main.woff2"))
	test.Error(t, err)
	_, err = font.ParseWOFF2(woff2)
	test.Error(t, err)
}

func TestSubsetFontMissingGlyphs(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, goregular.TTF, "FiraMath-Regular.otf")
	src := filepath.Join(dir, "FiraMath-Regular.otf")
	dst := filepath.Join(dir, "FiraMath_Main.otf")

	// Go Regular has no glyph for U+1D400
	warnings := &bytes.Buffer{}
	opts := Options{Warning: log.New(warnings, "", 0), Verify: true}
	test.Error(t, SubsetFont(src, Codepoints{'a', 0x1D400}, dst, "Regular", opts))
	test.That(t, strings.Contains(warnings.String(), "no glyph for 1 codepoints: U+1D400"), warnings.String())

	cps, err := ExtractCodepoints(dst)
	test.Error(t, err)
	test.That(t, containsRune(cps, 'a'))
	test.That(t, !containsRune(cps, 0x1D400))
}

func TestVerify(t *testing.T) {
	b := subsetTestFont(t, "ab")
	warnings := &bytes.Buffer{}
	warning := log.New(warnings, "", 0)
	test.Error(t, verify(b, Codepoints{'a', 'b'}, "FiraMath_Main", warning))
	test.That(t, strings.Contains(warnings.String(), "FiraMath_Main"), "family differs")

	err := verify(b, Codepoints{'a', 'z'}, "Go", warning)
	test.That(t, err != nil)
	test.That(t, strings.Contains(err.Error(), "U+007A"), err)

	err = verify([]byte("not a font"), Codepoints{'a'}, "Go", warning)
	test.That(t, err != nil)
}

func TestCoverage(t *testing.T) {
	sfnt, err := font.ParseSFNT(subsetTestFont(t, "abc"), 0)
	test.Error(t, err)
	covered, missing := coverage(sfnt, Codepoints{'a', 'b', 'z', 0x1D400})
	test.T(t, covered, Codepoints{'a', 'b'})
	test.T(t, missing, Codepoints{'z', 0x1D400})
	test.T(t, missing.String(), "U+007A U+1D400")
}

func TestSubsetFontWarnings(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, goregular.TTF, "FiraMath-Regular.otf")

	warnings := &bytes.Buffer{}
	written := map[string]int{}
	opts := Options{
		Warning: log.New(warnings, "", 0),
		Verify:  true,
		WriteFile: func(filename string, b []byte) error {
			written[filepath.Base(filename)] = len(b)
			return nil
		},
	}
	test.Error(t, SubsetFont(filepath.Join(dir, "FiraMath-Regular.otf"), nil, filepath.Join(dir, "FiraMath_Main.otf"), "Regular", opts))
	test.That(t, strings.Contains(warnings.String(), "no codepoints to keep"), warnings.String())
	test.That(t, 0 < written["FiraMath_Main.otf"])
	test.T(t, len(written), 1)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	for _, pair := range testPairs {
		writeTestFonts(t, dir, subsetTestFont(t, "αβ+-="), pair.Reference)
		writeTestFonts(t, dir, goregular.TTF, pair.Template)
	}

	stdout := &bytes.Buffer{}
	cfg := Config{
		Dir:     dir,
		Prefix:  DefaultPrefix,
		Pairs:   testPairs,
		Options: Options{Verify: true},
	}
	test.Error(t, Run(cfg, stdout))

	lines := []string{}
	for _, pair := range testPairs {
		lines = append(lines, "Subsetted "+pair.Template+" to "+pair.Reference)
	}
	test.T(t, stdout.String(), strings.Join(lines, "\n")+"\n")

	outputs := map[string]string{
		"FiraMath_AMS.otf":         "Regular",
		"FiraMath_Main-Italic.otf": "Italic",
		"FiraMath_Main.otf":        "Regular",
		"FiraMath_Math-Italic.otf": "Italic",
		"FiraMath_Size1.otf":       "Regular",
		"FiraMath_Size2.otf":       "Regular",
	}
	for output, subfamily := range outputs {
		b, err := os.ReadFile(filepath.Join(dir, output))
		test.Error(t, err, output)
		ref, err := sfnt.Parse(b)
		test.Error(t, err, output)
		name, err := ref.Name(&sfnt.Buffer{}, sfnt.NameIDSubfamily)
		test.Error(t, err)
		test.T(t, name, subfamily, output)
		name, err = ref.Name(&sfnt.Buffer{}, sfnt.NameIDFamily)
		test.Error(t, err)
		test.T(t, name, FamilyFromOutput(output), output)
	}

	cps, err := ExtractCodepoints(filepath.Join(dir, "FiraMath_AMS.otf"))
	test.Error(t, err)
	refCps, err := ExtractCodepoints(filepath.Join(dir, "KaTeX_AMS-Regular.ttf"))
	test.Error(t, err)
	for _, r := range refCps {
		test.That(t, containsRune(cps, r), string(r))
	}
}

func containsRune(cps Codepoints, r rune) bool {
	for _, c := range cps {
		if c == r {
			return true
		}
	}
	return false
}

func TestRunReferenceLargerThanTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, subsetTestFont(t, "abz"), "KaTeX_Main-Regular.ttf")
	writeTestFonts(t, dir, subsetTestFont(t, "abc"), "FiraMath-Regular.otf")

	warnings := &bytes.Buffer{}
	stdout := &bytes.Buffer{}
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Pairs = []Pair{{Reference: "KaTeX_Main-Regular.ttf", Template: "FiraMath-Regular.otf"}}
	cfg.Options.Warning = log.New(warnings, "", 0)
	test.That(t, cfg.Options.Verify)
	test.Error(t, Run(cfg, stdout))
	test.T(t, stdout.String(), "Subsetted FiraMath-Regular.otf to KaTeX_Main-Regular.ttf\n")
	test.That(t, strings.Contains(warnings.String(), "U+007A"), warnings.String())

	cps, err := ExtractCodepoints(filepath.Join(dir, "FiraMath_Main.otf"))
	test.Error(t, err)
	test.That(t, containsRune(cps, 'a') && containsRune(cps, 'b'))
	test.That(t, !containsRune(cps, 'z'))
}

func TestRunOutputName(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, subsetTestFont(t, "ab"), "KaTeX_AMS-Regular.ttf")
	writeTestFonts(t, dir, goregular.TTF, "FiraMath-AMS-Regular.otf")

	cfg := Config{
		Dir:    dir,
		Prefix: DefaultPrefix,
		Pairs: []Pair{
			{Reference: "KaTeX_AMS-Regular.ttf", Template: "FiraMath-AMS-Regular.otf", Output: "FiraMath_AMS-Regular.otf"},
		},
	}
	test.Error(t, Run(cfg, &bytes.Buffer{}))

	b, err := os.ReadFile(filepath.Join(dir, "FiraMath_AMS-Regular.otf"))
	test.Error(t, err)
	ref, err := sfnt.Parse(b)
	test.Error(t, err)
	name, err := ref.Name(&sfnt.Buffer{}, sfnt.NameIDFamily)
	test.Error(t, err)
	test.T(t, name, "FiraMath_AMS")
	name, err = ref.Name(&sfnt.Buffer{}, sfnt.NameIDFull)
	test.Error(t, err)
	test.T(t, name, "FiraMath_AMS-Regular")
}

func TestRunDisabled(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, goregular.TTF, "KaTeX_Main-Regular.ttf", "FiraMath-Regular.otf")

	warnings := &bytes.Buffer{}
	stdout := &bytes.Buffer{}
	cfg := Config{
		Dir:    dir,
		Prefix: DefaultPrefix,
		Pairs: []Pair{
			{Reference: "KaTeX_Main-Bold.ttf", Template: "FiraMath-Bold.otf", Disabled: true},
			{Reference: "KaTeX_Main-Regular.ttf", Template: "FiraMath-Regular.otf"},
		},
		Options: Options{Warning: log.New(warnings, "", 0)},
	}
	test.Error(t, Run(cfg, stdout))
	test.T(t, stdout.String(), "Subsetted FiraMath-Regular.otf to KaTeX_Main-Regular.ttf\n")
	test.That(t, strings.Contains(warnings.String(), "KaTeX_Main-Bold.ttf"))
	_, err := os.Stat(filepath.Join(dir, "FiraMath_Main-Bold.otf"))
	test.That(t, errors.Is(err, os.ErrNotExist))
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	writeTestFonts(t, dir, goregular.TTF, "KaTeX_Main-Regular.ttf")
	writeTestFonts(t, dir, gomono.TTF, "FiraMath-Mono.otf")

	stdout := &bytes.Buffer{}
	cfg := Config{
		Dir:    dir,
		Prefix: DefaultPrefix,
		Pairs: []Pair{
			{Reference: "KaTeX_Main-Regular.ttf", Template: "FiraMath-Regular.otf"},
		},
	}
	err := Run(cfg, stdout)
	test.That(t, errors.Is(err, os.ErrNotExist), "missing template")
	test.That(t, strings.HasPrefix(err.Error(), "FiraMath-Regular.otf to KaTeX_Main-Regular.ttf: "), err)
	test.T(t, stdout.Len(), 0)

	cfg.Pairs = []Pair{{Reference: "KaTeX_Size3-Regular.ttf", Template: "FiraMath-Mono.otf"}}
	err = Run(cfg, stdout)
	test.That(t, errors.Is(err, os.ErrNotExist), "missing reference")
}
