package font

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestOS2UnicodeRangeBit(t *testing.T) {
	var tests = []struct {
		r   rune
		bit int
	}{
		{'a', 0},
		{'é', 1},
		{'α', 7},
		{'∑', 38},
		{'⟨', 38},
		{'→', 37},
		{'ℝ', 35},
		{0xE000, 60},
		{0x1D400, 89},
		{0x0880, -1},
	}
	for _, tt := range tests {
		test.T(t, os2UlUnicodeRangeBit(tt.r), tt.bit, string(tt.r))
	}
}

func TestOS2UlUnicodeRange(t *testing.T) {
	v := os2UlUnicodeRange([]rune{'a', '∑', 0x1D400})
	test.T(t, v, [4]uint32{1, 1<<(38-32) | 1<<(57-32), 1 << (89 - 64), 0})
}

func TestOS2SetUnicodeRanges(t *testing.T) {
	font := testFont(t)
	test.T(t, font.OS2.UlUnicodeRange, [4]uint32{0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF})

	font.setUnicodeRanges([]rune{'A', 'B', 0x2200})
	test.T(t, font.OS2.UsFirstCharIndex, uint16('A'))
	test.T(t, font.OS2.UsLastCharIndex, uint16(0x2200))

	test.Error(t, font.parseOS2())
	test.T(t, font.OS2.UlUnicodeRange, [4]uint32{1, 1 << (38 - 32), 0, 0})
	test.T(t, font.OS2.UsFirstCharIndex, uint16('A'))
	test.T(t, font.OS2.UsLastCharIndex, uint16(0x2200))

	font.setUnicodeRanges([]rune{'A', 0x1D400})
	test.T(t, font.OS2.UsLastCharIndex, uint16(0xFFFF))
}

func TestParseOS2Errors(t *testing.T) {
	font := &SFNT{Tables: map[string][]byte{"OS/2": make([]byte, 60)}}
	test.That(t, font.parseOS2() != nil, "short")

	b := testOS2()
	font.Tables["OS/2"] = b[:86]
	test.That(t, font.parseOS2() != nil, "short for version 4")
}
