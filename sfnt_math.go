package font

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

type mathTable struct {
	// constructions maps a glyph to the variant and assembly part glyphs used to stretch it, vertically and horizontally
	constructions map[uint16][]uint16
}

func parseMathGlyphConstruction(b []byte, offset uint32) ([]uint16, error) {
	b, err := subtableAt(b, offset)
	if err != nil {
		return nil, fmt.Errorf("bad glyph construction offset")
	} else if len(b) < 4 {
		return nil, fmt.Errorf("bad glyph construction")
	}

	r := parse.NewBinaryReaderBytes(b)
	glyphAssemblyOffset := uint32(r.ReadUint16())
	variantCount := r.ReadUint16()
	if r.Len() < 4*int64(variantCount) {
		return nil, fmt.Errorf("bad glyph construction")
	}
	glyphs := make([]uint16, 0, variantCount)
	for i := 0; i < int(variantCount); i++ {
		glyphs = append(glyphs, r.ReadUint16())
		_ = r.ReadUint16() // advanceMeasurement
	}

	if glyphAssemblyOffset != 0 {
		assembly, err := subtableAt(b, glyphAssemblyOffset)
		if err != nil {
			return nil, fmt.Errorf("bad glyph assembly offset")
		} else if len(assembly) < 6 {
			return nil, fmt.Errorf("bad glyph assembly")
		}
		ra := parse.NewBinaryReaderBytes(assembly)
		_ = ra.ReadBytes(4) // italicsCorrection
		partCount := ra.ReadUint16()
		if ra.Len() < 10*int64(partCount) {
			return nil, fmt.Errorf("bad glyph assembly")
		}
		for i := 0; i < int(partCount); i++ {
			glyphs = append(glyphs, ra.ReadUint16())
			_ = ra.ReadBytes(8) // connector lengths, fullAdvance, partFlags
		}
	}
	return glyphs, nil
}

func (sfnt *SFNT) parseMATH() error {
	b := sfnt.Tables["MATH"]
	if len(b) < 10 {
		return fmt.Errorf("MATH: bad table")
	}

	r := parse.NewBinaryReaderBytes(b)
	majorVersion := r.ReadUint16()
	_ = r.ReadUint16() // minorVersion
	if majorVersion != 1 {
		return fmt.Errorf("MATH: bad version")
	}
	_ = r.ReadUint16() // mathConstantsOffset
	_ = r.ReadUint16() // mathGlyphInfoOffset
	mathVariantsOffset := uint32(r.ReadUint16())

	table := &mathTable{
		constructions: map[uint16][]uint16{},
	}
	if mathVariantsOffset != 0 {
		variants, err := subtableAt(b, mathVariantsOffset)
		if err != nil || len(variants) < 10 {
			return fmt.Errorf("MATH: bad mathVariants offset")
		}

		rv := parse.NewBinaryReaderBytes(variants)
		_ = rv.ReadUint16() // minConnectorOverlap
		vertGlyphCoverageOffset := uint32(rv.ReadUint16())
		horizGlyphCoverageOffset := uint32(rv.ReadUint16())
		vertGlyphCount := rv.ReadUint16()
		horizGlyphCount := rv.ReadUint16()
		if rv.Len() < 2*(int64(vertGlyphCount)+int64(horizGlyphCount)) {
			return fmt.Errorf("MATH: bad mathVariants")
		}

		for _, dir := range []struct {
			name           string
			coverageOffset uint32
			count          uint16
		}{
			{"vertical", vertGlyphCoverageOffset, vertGlyphCount},
			{"horizontal", horizGlyphCoverageOffset, horizGlyphCount},
		} {
			if dir.count == 0 {
				continue
			}
			coverage, err := parseCoverage(variants, dir.coverageOffset)
			if err != nil {
				return fmt.Errorf("MATH: %s variants: %w", dir.name, err)
			} else if len(coverage) != int(dir.count) {
				return fmt.Errorf("MATH: %s variants: bad glyph count", dir.name)
			}
			for _, glyphID := range coverage {
				glyphs, err := parseMathGlyphConstruction(variants, uint32(rv.ReadUint16()))
				if err != nil {
					return fmt.Errorf("MATH: %s variants of glyphID %d: %w", dir.name, glyphID, err)
				}
				table.constructions[glyphID] = append(table.constructions[glyphID], glyphs...)
			}
		}
	}
	sfnt.Math = table
	return nil
}

// closure adds the size variants and assembly parts of all glyphs. It returns true if glyphs were added.
func (math *mathTable) closure(glyphs map[uint16]bool) bool {
	added := false
	for changed := true; changed; {
		changed = false
		for _, glyphID := range sortedGlyphs(glyphs) {
			for _, dep := range math.constructions[glyphID] {
				if !glyphs[dep] {
					glyphs[dep] = true
					changed = true
					added = true
				}
			}
		}
	}
	return added
}
