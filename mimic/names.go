package mimic

import (
	"path/filepath"
	"strings"
)

// DefaultPrefix is prepended to the output file names.
const DefaultPrefix = "FiraMath_"

// DefaultStyle is the style label that is left out of output file names.
const DefaultStyle = "Regular"

func stem(filename string) string {
	base := filepath.Base(filename)
	if dot := strings.IndexByte(base, '.'); dot != -1 {
		return base[:dot]
	}
	return base
}

// Subfamily returns the subfamily label of a reference font, which is the text after the last dash of its file name without extension. For example, KaTeX_Size1-Regular.ttf returns Regular.
func Subfamily(reference string) string {
	s := stem(reference)
	return s[strings.LastIndexByte(s, '-')+1:]
}

// OutputName returns the output file name for a reference font using DefaultPrefix. For example, KaTeX_Size1-Regular.ttf returns FiraMath_Size1.otf and KaTeX_Main-Italic.ttf returns FiraMath_Main-Italic.otf.
// DefaultStyle is left out of the name; set Pair.Output to a name such as FiraMath_AMS-Regular.otf to keep it. The family and subfamily written into the font are the same either way.
func OutputName(reference string) string {
	return outputName(DefaultPrefix, reference)
}

func outputName(prefix, reference string) string {
	s := stem(reference)
	style := ""
	if dash := strings.LastIndexByte(s, '-'); dash != -1 {
		s, style = s[:dash], s[dash+1:]
	}
	s = s[strings.LastIndexByte(s, '_')+1:]
	if style != "" && style != DefaultStyle {
		s += "-" + style
	}
	return prefix + s + ".otf"
}

// FamilyFromOutput returns the family name for an output file, which is the text of its file name before the first dash or extension. For example, FiraMath_AMS-Regular.otf returns FiraMath_AMS.
func FamilyFromOutput(output string) string {
	s := stem(output)
	if dash := strings.IndexByte(s, '-'); dash != -1 {
		return s[:dash]
	}
	return s
}
