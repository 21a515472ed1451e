package mimic

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/firamath/font"
)

// Codepoints is an ascending list of unicode codepoints.
type Codepoints []rune

// Options are the options of the pipeline.
type Options struct {
	Warning *log.Logger // non-fatal observations, discarded if nil
	WOFF2   bool        // also write a WOFF2 file next to each output
	Verify  bool        // re-read each output with independent parsers

	// WriteFile writes an output file, os.WriteFile is used if nil.
	WriteFile func(filename string, b []byte) error
}

func (opts Options) warning() *log.Logger {
	if opts.Warning == nil {
		return log.New(io.Discard, "", 0)
	}
	return opts.Warning
}

func (opts Options) writeFile(filename string, b []byte) error {
	if opts.WriteFile != nil {
		return opts.WriteFile(filename, b)
	}
	return os.WriteFile(filename, b, 0644)
}

// SubsetOptions returns the subset options that keep everything but the unused glyphs.
func SubsetOptions() font.SubsetOptions {
	return font.SubsetOptions{
		LayoutFeatures:     []string{font.All},
		NameIDs:            []string{font.All},
		NameLegacy:         true,
		NameLanguages:      []string{font.All},
		GlyphNames:         true,
		NotdefGlyph:        true,
		RecommendedGlyphs:  true,
		LegacyCmap:         true,
		SymbolCmap:         true,
		PruneUnicodeRanges: false,
		DropTables:         []string{},
	}
}

func readFont(filename string) (*font.SFNT, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	sfnt, err := font.ParseSFNT(b, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return sfnt, nil
}

// ExtractCodepoints returns the codepoints of the best unicode cmap subtable of a font, including those mapped to .notdef.
func ExtractCodepoints(filename string) (Codepoints, error) {
	sfnt, err := readFont(filename)
	if err != nil {
		return nil, err
	}
	cps, err := sfnt.Codepoints()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return Codepoints(cps), nil
}

// coverage splits the codepoints into those the font has a glyph for and those it has not.
func coverage(sfnt *font.SFNT, cps Codepoints) (Codepoints, Codepoints) {
	var covered, missing Codepoints
	for _, r := range cps {
		if sfnt.GlyphIndex(r) != 0 {
			covered = append(covered, r)
		} else {
			missing = append(missing, r)
		}
	}
	return covered, missing
}

// String returns the codepoints in U+XXXX notation.
func (cps Codepoints) String() string {
	sb := strings.Builder{}
	for i, r := range cps {
		if 0 < i {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "U+%04X", r)
	}
	return sb.String()
}

// SubsetFont subsets the font at src to the codepoints, renames it after dst and the subfamily, and writes it to dst. Codepoints that the font has no glyph for are skipped with a warning.
func SubsetFont(src string, cps Codepoints, dst, subfamily string, opts Options) error {
	sfnt, err := readFont(src)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		opts.warning().Printf("%s: no codepoints to keep\n", src)
	}
	covered, missing := coverage(sfnt, cps)
	if 0 < len(missing) {
		opts.warning().Printf("%s: no glyph for %d codepoints: %s\n", src, len(missing), missing)
	}

	subsetter, err := font.NewSubsetter(SubsetOptions())
	if err != nil {
		return err
	}
	subsetter.Populate(cps)
	if err := subsetter.Subset(sfnt); err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}

	family := FamilyFromOutput(dst)
	if err := sfnt.Rename(family, subfamily); err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}

	writeOpts := font.WriteOptions{PreserveTimestamp: true}
	b := sfnt.Write(writeOpts)
	if _, err := font.ParseSFNT(b, 0); err != nil {
		return fmt.Errorf("%s: written font is invalid: %w", dst, err)
	}
	if opts.Verify {
		if err := verify(b, covered, family, opts.warning()); err != nil {
			return fmt.Errorf("%s: %w", dst, err)
		}
	}
	if err := opts.writeFile(dst, b); err != nil {
		return err
	}

	if opts.WOFF2 {
		woff2, err := sfnt.WriteWOFF2(writeOpts)
		if err != nil {
			return fmt.Errorf("%s: %w", dst, err)
		}
		if err := opts.writeFile(strings.TrimSuffix(dst, filepath.Ext(dst))+".woff2", woff2); err != nil {
			return err
		}
	}
	return nil
}

// Run subsets the template of every enabled pair to the codepoints of its reference, and prints a line to stdout for each pair. It stops at the first failure.
func Run(cfg Config, stdout io.Writer) error {
	for _, pair := range cfg.Pairs {
		if pair.Disabled {
			cfg.Options.warning().Printf("skipping %s\n", pair.Reference)
			continue
		}

		reference := filepath.Join(cfg.Dir, pair.Reference)
		template := filepath.Join(cfg.Dir, pair.Template)
		output := filepath.Join(cfg.Dir, cfg.OutputName(pair))

		cps, err := ExtractCodepoints(reference)
		if err != nil {
			return fmt.Errorf("%s to %s: %w", pair.Template, pair.Reference, err)
		}
		if err := SubsetFont(template, cps, output, Subfamily(pair.Reference), cfg.Options); err != nil {
			return fmt.Errorf("%s to %s: %w", pair.Template, pair.Reference, err)
		}
		fmt.Fprintf(stdout, "Subsetted %s to %s\n", pair.Template, pair.Reference)
	}
	return nil
}
