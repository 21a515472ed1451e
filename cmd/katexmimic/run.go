package main

import (
	"io"
	"log"
	"os"

	"github.com/firamath/font/mimic"
)

type Mimic struct {
	Config   string `short:"c" desc:"Configuration file in TOML, replaces the default list of fonts."`
	Dir      string `short:"d" desc:"Directory of the input and output fonts."`
	WOFF2    bool   `name:"woff2" desc:"Also write WOFF2 files."`
	Force    bool   `short:"f" desc:"Force overwriting existing files."`
	Quiet    bool   `short:"q" desc:"Suppress output except for errors."`
	NoVerify bool   `name:"no-verify" desc:"Do not re-read the written fonts."`
}

func (cmd *Mimic) Run() error {
	if cmd.Quiet {
		Warning = log.New(io.Discard, "", 0)
	}

	cfg := mimic.DefaultConfig()
	if cmd.Config != "" {
		var err error
		if cfg, err = mimic.LoadConfig(cmd.Config); err != nil {
			return err
		}
	}
	if cmd.Dir != "" {
		cfg.Dir = cmd.Dir
	}
	if cmd.WOFF2 {
		cfg.Options.WOFF2 = true
	}
	if cmd.NoVerify {
		cfg.Options.Verify = false
	}
	cfg.Options.Warning = Warning
	cfg.Options.WriteFile = func(filename string, b []byte) error {
		return writeFile(filename, b, cmd.Force)
	}

	return mimic.Run(cfg, os.Stdout)
}
