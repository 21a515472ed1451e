package font

import (
	"fmt"
	"sort"

	"github.com/tdewolff/parse/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// PlatformID is the platform identifier of name and cmap records.
type PlatformID uint16

// see PlatformID
const (
	PlatformUnicode   PlatformID = 0
	PlatformMacintosh PlatformID = 1
	PlatformISO       PlatformID = 2
	PlatformWindows   PlatformID = 3
	PlatformCustom    PlatformID = 4
)

func (platform PlatformID) String() string {
	switch platform {
	case PlatformUnicode:
		return "Unicode"
	case PlatformMacintosh:
		return "Macintosh"
	case PlatformISO:
		return "ISO"
	case PlatformWindows:
		return "Windows"
	case PlatformCustom:
		return "Custom"
	}
	return fmt.Sprintf("Platform(%d)", uint16(platform))
}

// EncodingID is the platform-specific encoding identifier of name and cmap records.
type EncodingID uint16

// see EncodingID
const (
	EncodingMacintoshRoman              EncodingID = 0
	EncodingMacintoshJapanese           EncodingID = 1
	EncodingMacintoshChineseTraditional EncodingID = 2
	EncodingMacintoshKorean             EncodingID = 3
	EncodingMacintoshCyrillic           EncodingID = 7
	EncodingMacintoshChineseSimplified  EncodingID = 25
	EncodingWindowsSymbol               EncodingID = 0
	EncodingWindowsUnicodeBMP           EncodingID = 1
	EncodingWindowsShiftJIS             EncodingID = 2
	EncodingWindowsPRC                  EncodingID = 3
	EncodingWindowsBig5                 EncodingID = 4
	EncodingWindowsWansung              EncodingID = 5
	EncodingWindowsUnicodeFull          EncodingID = 10
	EncodingISOASCII                    EncodingID = 0
	EncodingISO10646                    EncodingID = 1
	EncodingISO8859_1                   EncodingID = 2
)

// NameID is the identifier of a name record.
type NameID uint16

// see NameID
const (
	NameCopyrightNotice NameID = iota
	NameFontFamily
	NameFontSubfamily
	NameUniqueIdentifier
	NameFull
	NameVersion
	NamePostScript
	NameTrademark
	NameManufacturer
	NameDesigner
	NameDescription
	NameVendorURL
	NameDesignerURL
	NameLicense
	NameLicenseURL
	NameReserved
	NamePreferredFamily
	NamePreferredSubfamily
	NameCompatibleFull
	NameSampleText
	NamePostScriptCID
	NameWWSFamily
	NameWWSSubfamily
	NameLightBackgroundPalette
	NameDarkBackgroundPalette
	NameVariationsPostScriptPrefix
)

// NameRole is the role a name record plays when renaming a font.
type NameRole int

// see NameRole
const (
	RoleOther NameRole = iota
	RoleFamily
	RoleSubfamily
	RoleFullName
	RolePostScriptName
)

var nameRoles = map[NameID]NameRole{
	NameFontFamily:    RoleFamily,
	NameFontSubfamily: RoleSubfamily,
	NameFull:          RoleFullName,
	NamePostScript:    RolePostScriptName,
}

// Role returns the role of the name ID, which is RoleOther for all IDs that are left untouched by renaming.
func (name NameID) Role() NameRole {
	return nameRoles[name] // RoleOther if not found
}

var renameActions = map[NameRole]func(family, subfamily string) string{
	RoleFamily:         func(family, _ string) string { return family },
	RoleSubfamily:      func(_, subfamily string) string { return subfamily },
	RoleFullName:       func(family, subfamily string) string { return family + "-" + subfamily },
	RolePostScriptName: func(family, subfamily string) string { return family + "-" + subfamily },
}

////////////////////////////////////////////////////////////////

type nameRecord struct {
	Platform PlatformID
	Encoding EncodingID
	Language uint16
	Name     NameID
	Value    []byte
}

// TextEncoding returns the text encoding the record's value is stored in, or nil if it is unknown.
func (record nameRecord) TextEncoding() encoding.Encoding {
	switch record.Platform {
	case PlatformUnicode:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case PlatformMacintosh:
		switch record.Encoding {
		case EncodingMacintoshRoman:
			return charmap.Macintosh
		case EncodingMacintoshJapanese:
			return japanese.ShiftJIS
		case EncodingMacintoshChineseTraditional:
			return traditionalchinese.Big5
		case EncodingMacintoshKorean:
			return korean.EUCKR
		case EncodingMacintoshCyrillic:
			return charmap.MacintoshCyrillic
		case EncodingMacintoshChineseSimplified:
			return simplifiedchinese.GBK
		}
	case PlatformISO:
		switch record.Encoding {
		case EncodingISO10646:
			return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
		case EncodingISO8859_1:
			return charmap.ISO8859_1
		}
	case PlatformWindows:
		switch record.Encoding {
		case EncodingWindowsSymbol, EncodingWindowsUnicodeBMP, EncodingWindowsUnicodeFull:
			return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
		case EncodingWindowsShiftJIS:
			return japanese.ShiftJIS
		case EncodingWindowsPRC:
			return simplifiedchinese.GBK
		case EncodingWindowsBig5:
			return traditionalchinese.Big5
		case EncodingWindowsWansung:
			return korean.EUCKR
		}
	}
	return nil
}

// Decode returns the record's value decoded with its declared encoding.
func (record nameRecord) Decode() (string, error) {
	enc := record.TextEncoding()
	if enc == nil {
		return "", fmt.Errorf("name: unsupported encoding %d for platform %d", record.Encoding, record.Platform)
	}
	s, _, err := transform.String(enc.NewDecoder(), string(record.Value))
	if err != nil {
		return "", fmt.Errorf("name: %v", err)
	}
	return s, nil
}

func (record nameRecord) String() string {
	if s, err := record.Decode(); err == nil {
		return s
	}
	s, _, _ := transform.String(unicode.UTF8.NewDecoder(), string(record.Value)) // replaces invalid bytes by U+FFFD
	return s
}

// SetString encodes the string with the record's declared encoding and sets the value. It returns an error if a character cannot be represented.
func (record *nameRecord) SetString(s string) error {
	enc := record.TextEncoding()
	if enc == nil {
		return fmt.Errorf("name: unsupported encoding %d for platform %d", record.Encoding, record.Platform)
	}
	b, _, err := transform.Bytes(enc.NewEncoder(), []byte(s))
	if err != nil {
		return fmt.Errorf("name: cannot encode %q for platform %d encoding %d: %v", s, record.Platform, record.Encoding, err)
	}
	record.Value = b
	return nil
}

type nameLangTagRecord struct {
	Value []byte
}

func (record nameLangTagRecord) String() string {
	decoder := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	s, _, err := transform.String(decoder, string(record.Value))
	if err == nil {
		return s
	}
	return string(record.Value)
}

type nameTable struct {
	NameRecord []nameRecord
	LangTag    []nameLangTagRecord
}

func (t *nameTable) Get(name NameID) []nameRecord {
	records := []nameRecord{}
	for _, record := range t.NameRecord {
		if record.Name == name {
			records = append(records, record)
		}
	}
	return records
}

// Rename overwrites the family, subfamily, full name and PostScript name of every record regardless of platform and language. Other records are left untouched.
func (t *nameTable) Rename(family, subfamily string) error {
	for i := range t.NameRecord {
		action, ok := renameActions[t.NameRecord[i].Name.Role()]
		if !ok {
			continue
		}
		if err := t.NameRecord[i].SetString(action(family, subfamily)); err != nil {
			return fmt.Errorf("%v in record %d (nameID %d)", err, i, t.NameRecord[i].Name)
		}
	}
	return nil
}

// subset keeps records whose ID is in nameIDs, whose platform is Unicode or Windows Unicode unless legacy is set, and whose Windows language is in languages. A nil nameIDs or languages keeps all.
func (t *nameTable) subset(nameIDs map[NameID]bool, legacy bool, languages map[uint16]bool) {
	records := t.NameRecord[:0:0]
	for _, record := range t.NameRecord {
		if nameIDs != nil && !nameIDs[record.Name] {
			continue
		} else if !legacy && !(record.Platform == PlatformUnicode || record.Platform == PlatformWindows && (record.Encoding == EncodingWindowsUnicodeBMP || record.Encoding == EncodingWindowsUnicodeFull)) {
			continue
		} else if languages != nil && record.Platform == PlatformWindows && !languages[record.Language] {
			continue
		}
		records = append(records, record)
	}
	t.NameRecord = records
}

func (sfnt *SFNT) parseName() error {
	b := sfnt.Tables["name"]
	if len(b) < 6 {
		return fmt.Errorf("name: bad table")
	}

	sfnt.Name = &nameTable{}
	r := parse.NewBinaryReaderBytes(b)
	version := r.ReadUint16()
	if version != 0 && version != 1 {
		return fmt.Errorf("name: bad version")
	}
	count := r.ReadUint16()
	storageOffset := uint32(r.ReadUint16())
	if uint32(len(b)) < 6+12*uint32(count) || uint32(len(b)) < storageOffset {
		return fmt.Errorf("name: bad table")
	}
	sfnt.Name.NameRecord = make([]nameRecord, count)
	for i := 0; i < int(count); i++ {
		sfnt.Name.NameRecord[i].Platform = PlatformID(r.ReadUint16())
		sfnt.Name.NameRecord[i].Encoding = EncodingID(r.ReadUint16())
		sfnt.Name.NameRecord[i].Language = r.ReadUint16()
		sfnt.Name.NameRecord[i].Name = NameID(r.ReadUint16())

		length := uint32(r.ReadUint16())
		offset := uint32(r.ReadUint16())
		if uint32(len(b))-storageOffset < offset || uint32(len(b))-storageOffset-offset < length {
			return fmt.Errorf("name: bad record %d", i)
		}
		sfnt.Name.NameRecord[i].Value = b[storageOffset+offset : storageOffset+offset+length]
	}
	if version == 1 {
		if r.Len() < 2 {
			return fmt.Errorf("name: bad table")
		}
		langTagCount := r.ReadUint16()
		if r.Len() < 4*int64(langTagCount) {
			return fmt.Errorf("name: bad table")
		}
		sfnt.Name.LangTag = make([]nameLangTagRecord, langTagCount)
		for i := 0; i < int(langTagCount); i++ {
			length := uint32(r.ReadUint16())
			offset := uint32(r.ReadUint16())
			if uint32(len(b))-storageOffset < offset || uint32(len(b))-storageOffset-offset < length {
				return fmt.Errorf("name: bad language tag %d", i)
			}
			sfnt.Name.LangTag[i].Value = b[storageOffset+offset : storageOffset+offset+length]
		}
	}
	if int64(storageOffset) < r.Pos() {
		return fmt.Errorf("name: bad storageOffset")
	}
	return nil
}

// Write serializes the name table. Records are sorted by platform, encoding, language and name ID, and identical strings share storage.
func (t *nameTable) Write() []byte {
	records := make([]nameRecord, len(t.NameRecord))
	copy(records, t.NameRecord)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		} else if a.Encoding != b.Encoding {
			return a.Encoding < b.Encoding
		} else if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.Name < b.Name
	})

	version := uint16(0)
	headerLength := 6 + 12*len(records)
	if 0 < len(t.LangTag) {
		version = 1
		headerLength += 2 + 4*len(t.LangTag)
	}

	storage := parse.NewBinaryWriter([]byte{})
	offsets := map[string]uint16{}
	store := func(value []byte) uint16 {
		if offset, ok := offsets[string(value)]; ok {
			return offset
		}
		offset := uint16(storage.Len())
		storage.WriteBytes(value)
		offsets[string(value)] = offset
		return offset
	}

	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint16(version)
	w.WriteUint16(uint16(len(records)))
	w.WriteUint16(uint16(headerLength)) // storageOffset
	for _, record := range records {
		w.WriteUint16(uint16(record.Platform))
		w.WriteUint16(uint16(record.Encoding))
		w.WriteUint16(record.Language)
		w.WriteUint16(uint16(record.Name))
		w.WriteUint16(uint16(len(record.Value)))
		w.WriteUint16(store(record.Value))
	}
	if version == 1 {
		w.WriteUint16(uint16(len(t.LangTag)))
		for _, langTag := range t.LangTag {
			w.WriteUint16(uint16(len(langTag.Value)))
			w.WriteUint16(store(langTag.Value))
		}
	}
	w.WriteBytes(storage.Bytes())
	return w.Bytes()
}
