package main

import (
	"log"
	"os"

	"github.com/tdewolff/argp"
)

var Warning *log.Logger

func main() {
	Warning = log.New(os.Stderr, "WARNING: ", 0)

	cmd := argp.New("Subset FiraMath fonts to mimic the KaTeX fonts")
	cmd.AddCmd(&Mimic{}, "run", "Subset all configured fonts")
	cmd.AddCmd(&Charset{}, "charset", "Print the characters of a font")
	cmd.AddCmd(&Names{}, "names", "Print the name records of a font")
	cmd.Parse()
}
