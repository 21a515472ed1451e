package mimic

import (
	"bytes"
	"fmt"
	"log"

	"github.com/golang/freetype/truetype"
	"seehuhn.de/go/sfnt"
)

// verify re-reads a written font with independent OpenType parsers and checks that every codepoint has a glyph.
func verify(b []byte, cps Codepoints, family string, warning *log.Logger) error {
	info, err := sfnt.Read(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	subtable, err := info.CMapTable.GetBest()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, r := range cps {
		if subtable.Lookup(r) == 0 {
			return fmt.Errorf("verify: no glyph for U+%04X", r)
		}
	}
	if info.FamilyName != family {
		// a typographic family name takes precedence over the renamed family
		warning.Printf("verify: family name is %q instead of %q\n", info.FamilyName, family)
	}

	if bytes.HasPrefix(b, []byte("OTTO")) {
		return nil
	}
	ttf, err := truetype.Parse(b)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, r := range cps {
		if ttf.Index(r) == 0 {
			return fmt.Errorf("verify: no TrueType glyph for U+%04X", r)
		}
	}
	return nil
}
