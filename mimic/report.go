package mimic

import (
	"fmt"
	"io"
)

// PrintCharset prints a line with the codepoint and character for every codepoint of the best cmap subtable of a font.
func PrintCharset(filename string, w io.Writer) error {
	cps, err := ExtractCodepoints(filename)
	if err != nil {
		return err
	}
	for _, r := range cps {
		fmt.Fprintf(w, "U+%04X %c\n", r, r)
	}
	return nil
}

// PrintNames prints every record of the name table of a font in table order. Records that do not decode with their declared encoding are printed as UTF-8.
func PrintNames(filename string, w io.Writer) error {
	sfnt, err := readFont(filename)
	if err != nil {
		return err
	} else if sfnt.Name == nil {
		return fmt.Errorf("%s: name: missing table", filename)
	}
	for _, record := range sfnt.Name.NameRecord {
		fmt.Fprintf(w, "NameID %2d: %s (PlatformID=%d, LangID=%d)\n", record.Name, record.String(), record.Platform, record.Language)
	}
	return nil
}
