package font

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// MaxLookupNesting is the maximum depth of contextual lookups that refer to other lookups.
const MaxLookupNesting = 8

func subtableAt(b []byte, offset uint32) ([]byte, error) {
	if offset == 0 || uint32(len(b)) <= offset {
		return nil, ErrInvalidFontData
	}
	return b[offset:], nil
}

// skipUint16s reads a count followed by that many uint16 values and discards the values.
func skipUint16s(r *parse.BinaryReader) (uint16, error) {
	if r.Len() < 2 {
		return 0, ErrInvalidFontData
	}
	count := r.ReadUint16()
	if r.Len() < 2*int64(count) {
		return 0, ErrInvalidFontData
	}
	_ = r.ReadBytes(2 * int64(count))
	return count, nil
}

// parseCoverage returns the covered glyphs in order of their coverage index.
func parseCoverage(b []byte, offset uint32) ([]uint16, error) {
	b, err := subtableAt(b, offset)
	if err != nil {
		return nil, fmt.Errorf("bad coverage offset")
	} else if len(b) < 4 {
		return nil, fmt.Errorf("bad coverage table")
	}

	r := parse.NewBinaryReaderBytes(b)
	coverageFormat := r.ReadUint16()
	var glyphs []uint16
	if coverageFormat == 1 {
		glyphCount := r.ReadUint16()
		if r.Len() < 2*int64(glyphCount) {
			return nil, fmt.Errorf("bad coverage table")
		}
		glyphs = make([]uint16, glyphCount)
		for i := range glyphs {
			glyphs[i] = r.ReadUint16()
		}
	} else if coverageFormat == 2 {
		rangeCount := r.ReadUint16()
		if r.Len() < 6*int64(rangeCount) {
			return nil, fmt.Errorf("bad coverage table")
		}
		for i := 0; i < int(rangeCount); i++ {
			startGlyphID := r.ReadUint16()
			endGlyphID := r.ReadUint16()
			startCoverageIndex := r.ReadUint16()
			if endGlyphID < startGlyphID || int(startCoverageIndex) != len(glyphs) {
				return nil, fmt.Errorf("bad coverage range")
			}
			for glyphID := uint32(startGlyphID); glyphID <= uint32(endGlyphID); glyphID++ {
				glyphs = append(glyphs, uint16(glyphID))
			}
		}
	} else {
		return nil, fmt.Errorf("bad coverage table format")
	}
	return glyphs, nil
}

func intersects(glyphs []uint16, set map[uint16]bool) bool {
	for _, glyphID := range glyphs {
		if set[glyphID] {
			return true
		}
	}
	return false
}

////////////////////////////////////////////////////////////////

type singleSubst struct {
	coverage    []uint16
	substitutes []uint16
}

// multipleSubst is used for both multiple and alternate substitutions.
type multipleSubst struct {
	coverage  []uint16
	sequences [][]uint16
}

type ligature struct {
	ligatureGlyph     uint16
	componentGlyphIDs []uint16
}

type ligatureSubst struct {
	coverage  []uint16
	ligatures [][]ligature
}

// contextSubst is a (chained) contextual substitution. Nested lookups are applied when any glyph of the input coverage is present.
type contextSubst struct {
	coverage []uint16
	lookups  []uint16
}

type gsubLookup struct {
	lookupType uint16
	subtables  []interface{}
}

type gsubFeature struct {
	tag     string
	lookups []uint16
}

type gsubTable struct {
	features []gsubFeature
	lookups  []gsubLookup
}

func parseSingleSubst(b []byte) (interface{}, error) {
	if len(b) < 6 {
		return nil, ErrInvalidFontData
	}
	r := parse.NewBinaryReaderBytes(b)
	substFormat := r.ReadUint16()
	coverage, err := parseCoverage(b, uint32(r.ReadUint16()))
	if err != nil {
		return nil, err
	}

	table := &singleSubst{coverage: coverage}
	if substFormat == 1 {
		deltaGlyphID := r.ReadInt16()
		table.substitutes = make([]uint16, len(coverage))
		for i, glyphID := range coverage {
			// uint16 does modulo%65536
			table.substitutes[i] = uint16(int(glyphID) + int(deltaGlyphID))
		}
	} else if substFormat == 2 {
		glyphCount := r.ReadUint16()
		if int(glyphCount) != len(coverage) || r.Len() < 2*int64(glyphCount) {
			return nil, fmt.Errorf("bad single substitution table")
		}
		table.substitutes = make([]uint16, glyphCount)
		for i := range table.substitutes {
			table.substitutes[i] = r.ReadUint16()
		}
	} else {
		return nil, fmt.Errorf("bad single substitution table format")
	}
	return table, nil
}

func parseMultipleSubst(b []byte) (interface{}, error) {
	if len(b) < 6 {
		return nil, ErrInvalidFontData
	}
	r := parse.NewBinaryReaderBytes(b)
	substFormat := r.ReadUint16()
	if substFormat != 1 {
		return nil, fmt.Errorf("bad multiple substitution table format")
	}
	coverage, err := parseCoverage(b, uint32(r.ReadUint16()))
	if err != nil {
		return nil, err
	}

	sequenceCount := r.ReadUint16()
	if int(sequenceCount) != len(coverage) || r.Len() < 2*int64(sequenceCount) {
		return nil, fmt.Errorf("bad multiple substitution table")
	}
	r2 := parse.NewBinaryReaderBytes(b)
	sequences := make([][]uint16, sequenceCount)
	for i := 0; i < int(sequenceCount); i++ {
		if !seekLen(r2, uint32(r.ReadUint16()), 2) {
			return nil, ErrInvalidFontData
		}
		glyphCount := r2.ReadUint16()
		if r2.Len() < 2*int64(glyphCount) {
			return nil, fmt.Errorf("bad multiple substitution sequence")
		}
		sequences[i] = make([]uint16, glyphCount)
		for j := range sequences[i] {
			sequences[i][j] = r2.ReadUint16()
		}
	}
	return &multipleSubst{
		coverage:  coverage,
		sequences: sequences,
	}, nil
}

func parseLigatureSubst(b []byte) (interface{}, error) {
	if len(b) < 6 {
		return nil, ErrInvalidFontData
	}
	r := parse.NewBinaryReaderBytes(b)
	substFormat := r.ReadUint16()
	if substFormat != 1 {
		return nil, fmt.Errorf("bad ligature substitution table format")
	}
	coverage, err := parseCoverage(b, uint32(r.ReadUint16()))
	if err != nil {
		return nil, err
	}

	ligatureSetCount := r.ReadUint16()
	if int(ligatureSetCount) != len(coverage) || r.Len() < 2*int64(ligatureSetCount) {
		return nil, fmt.Errorf("bad ligature substitution table")
	}
	r2 := parse.NewBinaryReaderBytes(b)
	r3 := parse.NewBinaryReaderBytes(b)
	ligatures := make([][]ligature, ligatureSetCount)
	for i := 0; i < int(ligatureSetCount); i++ {
		ligatureSetOffset := uint32(r.ReadUint16())
		if !seekLen(r2, ligatureSetOffset, 2) {
			return nil, ErrInvalidFontData
		}
		ligatureCount := r2.ReadUint16()
		if r2.Len() < 2*int64(ligatureCount) {
			return nil, fmt.Errorf("bad ligature set")
		}
		ligatures[i] = make([]ligature, ligatureCount)
		for j := 0; j < int(ligatureCount); j++ {
			if !seekLen(r3, ligatureSetOffset+uint32(r2.ReadUint16()), 4) {
				return nil, ErrInvalidFontData
			}
			ligatures[i][j].ligatureGlyph = r3.ReadUint16()
			componentCount := r3.ReadUint16()
			if componentCount == 0 || r3.Len() < 2*int64(componentCount-1) {
				return nil, fmt.Errorf("bad ligature table")
			}
			ligatures[i][j].componentGlyphIDs = make([]uint16, componentCount-1)
			for k := range ligatures[i][j].componentGlyphIDs {
				ligatures[i][j].componentGlyphIDs[k] = r3.ReadUint16()
			}
		}
	}
	return &ligatureSubst{
		coverage:  coverage,
		ligatures: ligatures,
	}, nil
}

// readSubstLookupRecords reads the lookup indices of seqLookupRecords.
func readSubstLookupRecords(r *parse.BinaryReader, count uint16) ([]uint16, error) {
	if r.Len() < 4*int64(count) {
		return nil, ErrInvalidFontData
	}
	lookups := make([]uint16, 0, count)
	for i := 0; i < int(count); i++ {
		_ = r.ReadUint16() // sequenceIndex
		lookups = append(lookups, r.ReadUint16())
	}
	return lookups, nil
}

// parseRuleSets calls rule for every rule of the rule sets of a (chained) context substitution table of format 1 or 2, with r positioned after the set count.
func parseRuleSets(b []byte, r *parse.BinaryReader, setCount uint16, rule func(*parse.BinaryReader) error) error {
	if r.Len() < 2*int64(setCount) {
		return ErrInvalidFontData
	}
	r2 := parse.NewBinaryReaderBytes(b)
	r3 := parse.NewBinaryReaderBytes(b)
	for i := 0; i < int(setCount); i++ {
		setOffset := uint32(r.ReadUint16())
		if setOffset == 0 {
			continue
		} else if !seekLen(r2, setOffset, 2) {
			return ErrInvalidFontData
		}
		ruleCount := r2.ReadUint16()
		if r2.Len() < 2*int64(ruleCount) {
			return ErrInvalidFontData
		}
		for j := 0; j < int(ruleCount); j++ {
			if !seekLen(r3, setOffset+uint32(r2.ReadUint16()), 0) {
				return ErrInvalidFontData
			} else if err := rule(r3); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseContextSubst(b []byte) (interface{}, error) {
	if len(b) < 6 {
		return nil, ErrInvalidFontData
	}
	r := parse.NewBinaryReaderBytes(b)
	format := r.ReadUint16()
	if format != 1 && r.Len() < 6 {
		return nil, ErrInvalidFontData
	}
	table := &contextSubst{}
	var err error
	switch format {
	case 1, 2:
		if table.coverage, err = parseCoverage(b, uint32(r.ReadUint16())); err != nil {
			return nil, err
		}
		if format == 2 {
			_ = r.ReadUint16() // classDefOffset
		}
		setCount := r.ReadUint16()
		err = parseRuleSets(b, r, setCount, func(r *parse.BinaryReader) error {
			if r.Len() < 4 {
				return ErrInvalidFontData
			}
			glyphCount := r.ReadUint16()
			substCount := r.ReadUint16()
			if glyphCount == 0 {
				return fmt.Errorf("bad context rule")
			} else if r.Len() < 2*int64(glyphCount-1) {
				return ErrInvalidFontData
			}
			_ = r.ReadBytes(2 * int64(glyphCount-1)) // input sequence or classes
			lookups, err := readSubstLookupRecords(r, substCount)
			table.lookups = append(table.lookups, lookups...)
			return err
		})
		if err != nil {
			return nil, err
		}
	case 3:
		glyphCount := r.ReadUint16()
		substCount := r.ReadUint16()
		if glyphCount == 0 {
			return nil, fmt.Errorf("bad context table")
		}
		if table.coverage, err = parseCoverage(b, uint32(r.ReadUint16())); err != nil {
			return nil, err
		} else if r.Len() < 2*int64(glyphCount-1) {
			return nil, ErrInvalidFontData
		}
		_ = r.ReadBytes(2 * int64(glyphCount-1)) // other coverage offsets
		if table.lookups, err = readSubstLookupRecords(r, substCount); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("bad context substitution table format")
	}
	return table, nil
}

// skipChainSequences skips the backtrack, input and lookahead sequences of a chained context rule and returns the number of lookup records that follow. The first input glyph is not stored in the rule.
func skipChainSequences(r *parse.BinaryReader) (uint16, error) {
	if _, err := skipUint16s(r); err != nil {
		return 0, err
	} else if r.Len() < 2 {
		return 0, ErrInvalidFontData
	}
	inputCount := r.ReadUint16()
	if inputCount == 0 {
		return 0, fmt.Errorf("bad chained context rule")
	} else if r.Len() < 2*int64(inputCount-1) {
		return 0, ErrInvalidFontData
	}
	_ = r.ReadBytes(2 * int64(inputCount-1))
	if _, err := skipUint16s(r); err != nil {
		return 0, err
	} else if r.Len() < 2 {
		return 0, ErrInvalidFontData
	}
	return r.ReadUint16(), nil
}

func parseChainContextSubst(b []byte) (interface{}, error) {
	if len(b) < 6 {
		return nil, ErrInvalidFontData
	}
	r := parse.NewBinaryReaderBytes(b)
	format := r.ReadUint16()
	table := &contextSubst{}
	var err error
	switch format {
	case 1, 2:
		if table.coverage, err = parseCoverage(b, uint32(r.ReadUint16())); err != nil {
			return nil, err
		}
		if format == 2 {
			if r.Len() < 8 {
				return nil, ErrInvalidFontData
			}
			_ = r.ReadUint16() // backtrackClassDefOffset
			_ = r.ReadUint16() // inputClassDefOffset
			_ = r.ReadUint16() // lookaheadClassDefOffset
		}
		setCount := r.ReadUint16()
		err = parseRuleSets(b, r, setCount, func(r *parse.BinaryReader) error {
			substCount, err := skipChainSequences(r)
			if err != nil {
				return err
			}
			lookups, err := readSubstLookupRecords(r, substCount)
			table.lookups = append(table.lookups, lookups...)
			return err
		})
		if err != nil {
			return nil, err
		}
	case 3:
		if _, err := skipUint16s(r); err != nil { // backtrack coverages
			return nil, err
		} else if r.Len() < 4 {
			return nil, ErrInvalidFontData
		}
		inputCount := r.ReadUint16()
		if inputCount == 0 {
			return nil, fmt.Errorf("bad chained context table")
		}
		if table.coverage, err = parseCoverage(b, uint32(r.ReadUint16())); err != nil {
			return nil, err
		} else if r.Len() < 2*int64(inputCount-1) {
			return nil, ErrInvalidFontData
		}
		_ = r.ReadBytes(2 * int64(inputCount-1))
		if _, err := skipUint16s(r); err != nil { // lookahead coverages
			return nil, err
		} else if r.Len() < 2 {
			return nil, ErrInvalidFontData
		}
		if table.lookups, err = readSubstLookupRecords(r, r.ReadUint16()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("bad chained context substitution table format")
	}
	return table, nil
}

func parseReverseChainSingleSubst(b []byte) (interface{}, error) {
	if len(b) < 6 {
		return nil, ErrInvalidFontData
	}
	r := parse.NewBinaryReaderBytes(b)
	if r.ReadUint16() != 1 {
		return nil, fmt.Errorf("bad reverse chaining substitution table format")
	}
	coverage, err := parseCoverage(b, uint32(r.ReadUint16()))
	if err != nil {
		return nil, err
	}
	if _, err := skipUint16s(r); err != nil { // backtrack coverages
		return nil, err
	} else if _, err := skipUint16s(r); err != nil { // lookahead coverages
		return nil, err
	} else if r.Len() < 2 {
		return nil, ErrInvalidFontData
	}
	glyphCount := r.ReadUint16()
	if int(glyphCount) != len(coverage) || r.Len() < 2*int64(glyphCount) {
		return nil, fmt.Errorf("bad reverse chaining substitution table")
	}
	table := &singleSubst{coverage: coverage}
	table.substitutes = make([]uint16, glyphCount)
	for i := range table.substitutes {
		table.substitutes[i] = r.ReadUint16()
	}
	return table, nil
}

var gsubSubtableParsers = map[uint16]func([]byte) (interface{}, error){
	1: parseSingleSubst,
	2: parseMultipleSubst,
	3: parseMultipleSubst, // alternate substitution has the same layout
	4: parseLigatureSubst,
	5: parseContextSubst,
	6: parseChainContextSubst,
	8: parseReverseChainSingleSubst,
}

func (sfnt *SFNT) parseGSUB() error {
	b := sfnt.Tables["GSUB"]
	if len(b) < 10 {
		return fmt.Errorf("GSUB: bad table")
	}

	r := parse.NewBinaryReaderBytes(b)
	majorVersion := r.ReadUint16()
	minorVersion := r.ReadUint16()
	if majorVersion != 1 || 1 < minorVersion {
		return fmt.Errorf("GSUB: bad version")
	}
	_ = r.ReadUint16() // scriptListOffset
	featureListOffset := uint32(r.ReadUint16())
	lookupListOffset := uint32(r.ReadUint16())

	table := &gsubTable{}
	if featureListOffset != 0 {
		featureList, err := subtableAt(b, featureListOffset)
		if err != nil {
			return fmt.Errorf("GSUB: bad featureList offset")
		}
		rf := parse.NewBinaryReaderBytes(featureList)
		rf2 := parse.NewBinaryReaderBytes(featureList)
		if rf.Len() < 2 {
			return fmt.Errorf("GSUB: bad featureList")
		}
		featureCount := rf.ReadUint16()
		if rf.Len() < 6*int64(featureCount) {
			return fmt.Errorf("GSUB: bad featureList")
		}
		table.features = make([]gsubFeature, featureCount)
		for i := 0; i < int(featureCount); i++ {
			table.features[i].tag = rf.ReadString(4)
			if !seekLen(rf2, uint32(rf.ReadUint16()), 4) {
				return fmt.Errorf("GSUB: bad featureList")
			}
			_ = rf2.ReadUint16() // featureParamsOffset
			lookupIndexCount := rf2.ReadUint16()
			if rf2.Len() < 2*int64(lookupIndexCount) {
				return fmt.Errorf("GSUB: bad featureList")
			}
			table.features[i].lookups = make([]uint16, lookupIndexCount)
			for j := range table.features[i].lookups {
				table.features[i].lookups[j] = rf2.ReadUint16()
			}
		}
	}

	if lookupListOffset != 0 {
		lookupList, err := subtableAt(b, lookupListOffset)
		if err != nil {
			return fmt.Errorf("GSUB: bad lookupList offset")
		}
		rl := parse.NewBinaryReaderBytes(lookupList)
		rl2 := parse.NewBinaryReaderBytes(lookupList)
		if rl.Len() < 2 {
			return fmt.Errorf("GSUB: bad lookupList")
		}
		lookupCount := rl.ReadUint16()
		if rl.Len() < 2*int64(lookupCount) {
			return fmt.Errorf("GSUB: bad lookupList")
		}
		table.lookups = make([]gsubLookup, lookupCount)
		for i := 0; i < int(lookupCount); i++ {
			lookupOffset := uint32(rl.ReadUint16())
			if !seekLen(rl2, lookupOffset, 6) {
				return fmt.Errorf("GSUB: bad lookup %d", i)
			}
			lookupType := rl2.ReadUint16()
			_ = rl2.ReadUint16() // lookupFlag
			subtableCount := rl2.ReadUint16()
			if rl2.Len() < 2*int64(subtableCount) {
				return fmt.Errorf("GSUB: bad lookup %d", i)
			}
			table.lookups[i].lookupType = lookupType
			for j := 0; j < int(subtableCount); j++ {
				subtable, err := subtableAt(lookupList, lookupOffset+uint32(rl2.ReadUint16()))
				if err != nil {
					return fmt.Errorf("GSUB: bad subtable offset in lookup %d", i)
				}

				subtableType := lookupType
				if lookupType == 7 {
					// extension substitution
					if len(subtable) < 8 {
						return fmt.Errorf("GSUB: bad extension table in lookup %d", i)
					}
					re := parse.NewBinaryReaderBytes(subtable)
					if re.ReadUint16() != 1 {
						return fmt.Errorf("GSUB: bad extension table format in lookup %d", i)
					}
					subtableType = re.ReadUint16()
					if subtable, err = subtableAt(subtable, re.ReadUint32()); err != nil || subtableType == 7 {
						return fmt.Errorf("GSUB: bad extension table in lookup %d", i)
					}
				}

				parseSubtable, ok := gsubSubtableParsers[subtableType]
				if !ok {
					return fmt.Errorf("GSUB: bad lookup type %d", subtableType)
				}
				parsed, err := parseSubtable(subtable)
				if err != nil {
					return fmt.Errorf("GSUB: lookup %d: %w", i, err)
				}
				table.lookups[i].subtables = append(table.lookups[i].subtables, parsed)
			}
		}
	}
	sfnt.Gsub = table
	return nil
}

// closure adds all glyphs that can be produced from the glyph set by the lookups of the given features, a nil features set selects all features. It returns true if glyphs were added.
func (gsub *gsubTable) closure(glyphs map[uint16]bool, features map[string]bool) bool {
	lookups := map[uint16]bool{}
	for _, feature := range gsub.features {
		if features == nil || features[feature.tag] {
			for _, lookupIndex := range feature.lookups {
				lookups[lookupIndex] = true
			}
		}
	}

	added := false
	for changed := true; changed; {
		changed = false
		for _, lookupIndex := range sortedGlyphs(lookups) {
			if gsub.apply(lookupIndex, glyphs, 0) {
				changed = true
				added = true
			}
		}
	}
	return added
}

func (gsub *gsubTable) apply(lookupIndex uint16, glyphs map[uint16]bool, level int) bool {
	if len(gsub.lookups) <= int(lookupIndex) || MaxLookupNesting < level {
		return false
	}

	added := false
	add := func(glyphID uint16) {
		if !glyphs[glyphID] {
			glyphs[glyphID] = true
			added = true
		}
	}
	for _, subtable := range gsub.lookups[lookupIndex].subtables {
		switch table := subtable.(type) {
		case *singleSubst:
			for i, glyphID := range table.coverage {
				if glyphs[glyphID] {
					add(table.substitutes[i])
				}
			}
		case *multipleSubst:
			for i, glyphID := range table.coverage {
				if glyphs[glyphID] {
					for _, substitute := range table.sequences[i] {
						add(substitute)
					}
				}
			}
		case *ligatureSubst:
			for i, glyphID := range table.coverage {
				if !glyphs[glyphID] {
					continue
				}
			LigatureLoop:
				for _, ligature := range table.ligatures[i] {
					for _, componentGlyphID := range ligature.componentGlyphIDs {
						if !glyphs[componentGlyphID] {
							continue LigatureLoop
						}
					}
					add(ligature.ligatureGlyph)
				}
			}
		case *contextSubst:
			if intersects(table.coverage, glyphs) {
				for _, nested := range table.lookups {
					if nested != lookupIndex && gsub.apply(nested, glyphs, level+1) {
						added = true
					}
				}
			}
		}
	}
	return added
}
