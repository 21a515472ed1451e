package main

import (
	"os"

	"github.com/firamath/font/mimic"
)

type Charset struct {
	Input string `index:"0" desc:"Input font file."`
}

func (cmd *Charset) Run() error {
	return mimic.PrintCharset(cmd.Input, os.Stdout)
}

type Names struct {
	Input string `index:"0" desc:"Input font file."`
}

func (cmd *Names) Run() error {
	return mimic.PrintNames(cmd.Input, os.Stdout)
}
