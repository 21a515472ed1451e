package mimic

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// Pair is a reference font whose character set is mimicked by subsetting a template font.
type Pair struct {
	Reference string `toml:"reference"`
	Template  string `toml:"template"`
	Output    string `toml:"output"` // derived from Reference if empty, see OutputName
	Disabled  bool   `toml:"disabled"`
	Note      string `toml:"note"`
}

// Config is the list of pairs to process together with the pipeline options.
type Config struct {
	Dir     string // directory of the input and output fonts
	Prefix  string // prefix of derived output names
	Pairs   []Pair
	Options Options
}

// DefaultConfig returns the KaTeX fonts with their FiraMath templates.
func DefaultConfig() Config {
	return Config{
		Dir:    ".",
		Prefix: DefaultPrefix,
		Pairs: []Pair{
			{Reference: "KaTeX_AMS-Regular.ttf", Template: "FiraMath-AMS-Regular.otf", Note: "KaTeX_AMS maps Latin capital letters to blackboard bold, which needs a dedicated template"},
			{Reference: "KaTeX_Main-Bold.ttf", Template: "FiraMath-Regular.otf", Disabled: true},
			{Reference: "KaTeX_Main-BoldItalic.ttf", Template: "FiraMath-Regular.otf", Disabled: true},
			{Reference: "KaTeX_Main-Italic.ttf", Template: "FiraMath-Italic.otf"},
			{Reference: "KaTeX_Main-Regular.ttf", Template: "FiraMath-Regular.otf"},
			{Reference: "KaTeX_Math-Italic.ttf", Template: "FiraMath-Italic.otf"},
			{Reference: "KaTeX_Size1-Regular.ttf", Template: "FiraMath-SIZEONE.otf"},
			{Reference: "KaTeX_Size2-Regular.ttf", Template: "FiraMath-SIZETWO.otf"},
			{Reference: "KaTeX_Size3-Regular.ttf", Template: "FiraMath-SIZETHREE.otf"},
			{Reference: "KaTeX_Size4-Regular.ttf", Template: "FiraMath-SIZEFOUR.otf"},
		},
		Options: Options{
			Verify: true,
		},
	}
}

type configFile struct {
	Dir    *string `toml:"dir"`
	Prefix *string `toml:"prefix"`
	WOFF2  *bool   `toml:"woff2"`
	Verify *bool   `toml:"verify"`
	Pairs  []Pair  `toml:"pair"`
}

// ParseConfig parses a TOML configuration. Keys that are not set keep the values of DefaultConfig, a non-empty pair list replaces the default list.
func ParseConfig(b []byte) (Config, error) {
	file := configFile{}
	if err := toml.Unmarshal(b, &file); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if file.Dir != nil {
		cfg.Dir = *file.Dir
	}
	if file.Prefix != nil {
		cfg.Prefix = *file.Prefix
	}
	if file.WOFF2 != nil {
		cfg.Options.WOFF2 = *file.WOFF2
	}
	if file.Verify != nil {
		cfg.Options.Verify = *file.Verify
	}
	if 0 < len(file.Pairs) {
		cfg.Pairs = file.Pairs
	}
	for i, pair := range cfg.Pairs {
		if pair.Reference == "" || pair.Template == "" {
			return Config{}, fmt.Errorf("pair %d: reference and template must be set", i+1)
		}
	}
	return cfg, nil
}

// LoadConfig reads and parses a TOML configuration file.
func LoadConfig(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// OutputName returns the output file name of a pair.
func (cfg Config) OutputName(pair Pair) string {
	if pair.Output != "" {
		return pair.Output
	}
	return outputName(cfg.Prefix, pair.Reference)
}
