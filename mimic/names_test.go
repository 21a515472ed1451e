package mimic

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestOutputName(t *testing.T) {
	var tests = []struct {
		reference string
		output    string
		family    string
		subfamily string
	}{
		{"KaTeX_AMS-Regular.ttf", "FiraMath_AMS.otf", "FiraMath_AMS", "Regular"},
		{"KaTeX_Main-Bold.ttf", "FiraMath_Main-Bold.otf", "FiraMath_Main", "Bold"},
		{"KaTeX_Main-BoldItalic.ttf", "FiraMath_Main-BoldItalic.otf", "FiraMath_Main", "BoldItalic"},
		{"KaTeX_Main-Italic.ttf", "FiraMath_Main-Italic.otf", "FiraMath_Main", "Italic"},
		{"KaTeX_Main-Regular.ttf", "FiraMath_Main.otf", "FiraMath_Main", "Regular"},
		{"KaTeX_Math-Italic.ttf", "FiraMath_Math-Italic.otf", "FiraMath_Math", "Italic"},
		{"KaTeX_Size1-Regular.ttf", "FiraMath_Size1.otf", "FiraMath_Size1", "Regular"},
		{"KaTeX_Size4-Regular.ttf", "FiraMath_Size4.otf", "FiraMath_Size4", "Regular"},
		{"fonts/KaTeX_Size2-Regular.ttf", "FiraMath_Size2.otf", "FiraMath_Size2", "Regular"},
	}
	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			output := OutputName(tt.reference)
			test.T(t, output, tt.output)
			test.T(t, FamilyFromOutput(output), tt.family)
			test.T(t, Subfamily(tt.reference), tt.subfamily)
		})
	}
}

func TestSubfamily(t *testing.T) {
	test.T(t, Subfamily("KaTeX_Main-Bold.ttf"), "Bold")
	test.T(t, Subfamily("A-B-C.ttf"), "C")
	test.T(t, Subfamily("Plain.ttf"), "Plain", "no dash")
	test.T(t, Subfamily("Multi.dot-Style.ttf"), "Multi", "stem ends at the first dot")
}

func TestFamilyFromOutput(t *testing.T) {
	test.T(t, FamilyFromOutput("FiraMath_AMS-Regular.otf"), "FiraMath_AMS")
	test.T(t, FamilyFromOutput("out/FiraMath_Main-Bold-Italic.otf"), "FiraMath_Main")
	test.T(t, FamilyFromOutput("FiraMath_Size1.otf"), "FiraMath_Size1")
	test.T(t, outputName("Fira_", "KaTeX_Script-Regular.ttf"), "Fira_Script.otf")
	test.T(t, outputName("Fira_", "Script.ttf"), "Fira_Script.otf")
}
