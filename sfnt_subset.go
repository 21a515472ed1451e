package font

import (
	"fmt"
	"strconv"
	"strings"
)

// All selects every feature, name ID, or language in the subset options.
const All = "*"

// SubsetOptions are the options for subsetting a font. Option lists that contain All select everything.
type SubsetOptions struct {
	LayoutFeatures     []string // GSUB feature tags whose lookups are followed
	NameIDs            []string // name IDs to keep, IDs 0 to 6 are always kept
	NameLegacy         bool     // keep name records of non-Unicode platforms
	NameLanguages      []string // Windows language IDs to keep, such as 0x0409
	GlyphNames         bool     // keep the glyph names of the post table
	NotdefGlyph        bool     // keep the outline of the .notdef glyph
	RecommendedGlyphs  bool     // keep glyph IDs 0 to 3 for TrueType fonts
	LegacyCmap         bool     // keep legacy cmap subtables
	SymbolCmap         bool     // keep the symbol cmap subtable
	PruneUnicodeRanges bool     // recalculate the OS/2 unicode ranges
	DropTables         []string // table tags to remove
}

// DefaultSubsetOptions returns the options for a minimal subset.
func DefaultSubsetOptions() SubsetOptions {
	return SubsetOptions{
		LayoutFeatures:     []string{"calt", "ccmp", "clig", "curs", "dnom", "frac", "kern", "liga", "locl", "mark", "mkmk", "numr", "rclt", "rlig", "rvrn", "ssty"},
		NameIDs:            []string{"0", "1", "2", "3", "4", "5", "6"},
		NameLanguages:      []string{"0x0409"},
		NotdefGlyph:        true,
		PruneUnicodeRanges: true,
		DropTables:         []string{"BASE", "JSTF", "DSIG", "EBDT", "EBLC", "EBSC", "PCLT", "LTSH", "Feat", "Glat", "Gloc", "Silf", "Sill"},
	}
}

// requiredTables are never dropped.
var requiredTables = map[string]bool{
	"head": true,
	"maxp": true,
	"cmap": true,
	"name": true,
	"hhea": true,
	"hmtx": true,
	"post": true,
	"OS/2": true,
	"glyf": true,
	"loca": true,
	"CFF ": true,
}

// Subsetter reduces fonts to the glyphs needed for a set of characters. Glyph IDs are retained.
type Subsetter struct {
	opts       SubsetOptions
	features   map[string]bool // nil is all
	nameIDs    map[NameID]bool // nil is all
	languages  map[uint16]bool // nil is all
	dropTables map[string]bool
	unicodes   map[rune]bool
}

func containsAll(list []string) bool {
	for _, item := range list {
		if item == All {
			return true
		}
	}
	return false
}

func parseUint16List(list []string) (map[uint16]bool, error) {
	if containsAll(list) {
		return nil, nil
	}
	m := map[uint16]bool{}
	for _, item := range list {
		v, err := strconv.ParseUint(strings.TrimSpace(item), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", item)
		}
		m[uint16(v)] = true
	}
	return m, nil
}

// NewSubsetter returns a subsetter for the given options.
func NewSubsetter(opts SubsetOptions) (*Subsetter, error) {
	s := &Subsetter{
		opts:       opts,
		dropTables: map[string]bool{},
		unicodes:   map[rune]bool{},
	}
	if !containsAll(opts.LayoutFeatures) {
		s.features = map[string]bool{}
		for _, tag := range opts.LayoutFeatures {
			if len(tag) != 4 {
				return nil, fmt.Errorf("bad layout feature %q", tag)
			}
			s.features[tag] = true
		}
	}

	nameIDs, err := parseUint16List(opts.NameIDs)
	if err != nil {
		return nil, fmt.Errorf("name IDs: %w", err)
	} else if nameIDs != nil {
		s.nameIDs = map[NameID]bool{}
		for nameID := range nameIDs {
			s.nameIDs[NameID(nameID)] = true
		}
		for nameID := NameCopyrightNotice; nameID <= NamePostScript; nameID++ {
			s.nameIDs[nameID] = true
		}
	}
	if s.languages, err = parseUint16List(opts.NameLanguages); err != nil {
		return nil, fmt.Errorf("name languages: %w", err)
	}

	for _, tag := range opts.DropTables {
		if 4 < len(tag) || len(tag) == 0 {
			return nil, fmt.Errorf("bad table tag %q", tag)
		}
		s.dropTables[tag+strings.Repeat(" ", 4-len(tag))] = true
	}
	return s, nil
}

// Populate adds the characters that the subset must support.
func (s *Subsetter) Populate(unicodes []rune) {
	for _, r := range unicodes {
		s.unicodes[r] = true
	}
}

// closure returns all glyphs required to render the populated characters.
func (s *Subsetter) closure(sfnt *SFNT) (map[uint16]bool, error) {
	numGlyphs := sfnt.NumGlyphs()
	glyphs := sfnt.Cmap.glyphs(s.unicodes)
	glyphs[0] = true
	if s.opts.RecommendedGlyphs && sfnt.IsTrueType {
		for glyphID := uint16(1); glyphID < 4 && glyphID < numGlyphs; glyphID++ {
			glyphs[glyphID] = true
		}
	}

	prune := func() {
		for glyphID := range glyphs {
			if numGlyphs <= glyphID {
				delete(glyphs, glyphID)
			}
		}
	}
	for changed := true; changed; {
		changed = false
		prune()
		if sfnt.Gsub != nil && sfnt.Gsub.closure(glyphs, s.features) {
			changed = true
		}
		prune()
		if sfnt.Math != nil && sfnt.Math.closure(glyphs) {
			changed = true
		}
		prune()
		if sfnt.IsTrueType {
			for _, glyphID := range sortedGlyphs(glyphs) {
				deps, err := sfnt.Glyf.Dependencies(glyphID)
				if err != nil {
					return nil, err
				}
				for _, dep := range deps[1:] {
					if !glyphs[dep] {
						glyphs[dep] = true
						changed = true
					}
				}
			}
		}
	}
	prune()
	return glyphs, nil
}

// Subset removes all glyphs from the font that are not needed for the populated characters, and applies the table options.
func (s *Subsetter) Subset(sfnt *SFNT) error {
	glyphs, err := s.closure(sfnt)
	if err != nil {
		return err
	}
	if !s.opts.NotdefGlyph {
		delete(glyphs, 0)
	}

	cmap := sfnt.Cmap.subset(s.unicodes, glyphs, s.opts.LegacyCmap, s.opts.SymbolCmap)
	sfnt.Cmap = cmap
	sfnt.Tables["cmap"] = cmap.Write()

	if sfnt.IsTrueType {
		glyf, loca, format := sfnt.Glyf.subset(glyphs, sfnt.NumGlyphs(), sfnt.Head.IndexToLocFormat)
		sfnt.Tables["glyf"] = glyf
		sfnt.Tables["loca"] = loca
		sfnt.setIndexToLocFormat(format)
		if err := sfnt.parseLoca(); err != nil {
			return err
		} else if err := sfnt.parseGlyf(); err != nil {
			return err
		}
	} else {
		sfnt.CFF.subset(glyphs)
		b, err := sfnt.CFF.Write()
		if err != nil {
			return err
		}
		sfnt.Tables["CFF "] = b
	}

	if sfnt.Name != nil {
		n := len(sfnt.Name.NameRecord)
		sfnt.Name.subset(s.nameIDs, s.opts.NameLegacy, s.languages)
		if len(sfnt.Name.NameRecord) != n {
			sfnt.Tables["name"] = sfnt.Name.Write()
		}
	}

	if post, ok := sfnt.Tables["post"]; ok && !s.opts.GlyphNames && 32 <= len(post) {
		b := make([]byte, 32)
		copy(b, post)
		copy(b, []byte{0x00, 0x03, 0x00, 0x00}) // version 3.0
		sfnt.Tables["post"] = b
	}

	if s.opts.PruneUnicodeRanges {
		var rs []rune
		if best, err := sfnt.BestCmap(); err == nil {
			rs = sortedRunes(best)
		}
		sfnt.setUnicodeRanges(rs)
	}

	for tag := range s.dropTables {
		if requiredTables[tag] {
			continue
		}
		delete(sfnt.Tables, tag)
		switch tag {
		case "GSUB":
			sfnt.Gsub = nil
		case "MATH":
			sfnt.Math = nil
		}
	}
	return nil
}
