package mimic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tdewolff/test"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	test.T(t, len(cfg.Pairs), 10)
	test.T(t, cfg.Pairs[0].Reference, "KaTeX_AMS-Regular.ttf")
	test.T(t, cfg.OutputName(cfg.Pairs[0]), "FiraMath_AMS.otf")
	test.That(t, cfg.Options.Verify)

	enabled := 0
	for _, pair := range cfg.Pairs {
		if !pair.Disabled {
			enabled++
		}
	}
	test.T(t, enabled, 8, "bold pairs have no template")
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
dir = "fonts"
woff2 = true

[[pair]]
reference = "KaTeX_Main-Regular.ttf"
template = "FiraMath-Regular.otf"

[[pair]]
reference = "KaTeX_Main-Bold.ttf"
template = "FiraMath-Regular.otf"
output = "Bold.otf"
disabled = true
note = "no bold template"
`))
	test.Error(t, err)
	test.T(t, cfg.Dir, "fonts")
	test.T(t, cfg.Prefix, DefaultPrefix)
	test.That(t, cfg.Options.WOFF2)
	test.That(t, cfg.Options.Verify, "unset keys keep their defaults")
	test.T(t, cfg.Pairs, []Pair{
		{Reference: "KaTeX_Main-Regular.ttf", Template: "FiraMath-Regular.otf"},
		{Reference: "KaTeX_Main-Bold.ttf", Template: "FiraMath-Regular.otf", Output: "Bold.otf", Disabled: true, Note: "no bold template"},
	})
	test.T(t, cfg.OutputName(cfg.Pairs[0]), "FiraMath_Main.otf")
	test.T(t, cfg.OutputName(cfg.Pairs[1]), "Bold.otf")
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`prefix = "Fira_"
verify = false`))
	test.Error(t, err)
	test.T(t, cfg.Pairs, DefaultConfig().Pairs)
	test.T(t, cfg.OutputName(cfg.Pairs[3]), "Fira_Main-Italic.otf")
	test.That(t, !cfg.Options.Verify)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte(`dir = `))
	test.That(t, err != nil, "syntax")

	_, err = ParseConfig([]byte(`[[pair]]
reference = "KaTeX_Main-Regular.ttf"`))
	test.That(t, err != nil, "missing template")
}

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "katexmimic.toml")
	test.Error(t, os.WriteFile(filename, []byte(`dir = "out"`), 0644))
	cfg, err := LoadConfig(filename)
	test.Error(t, err)
	test.T(t, cfg.Dir, "out")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	test.That(t, errors.Is(err, os.ErrNotExist))
}
