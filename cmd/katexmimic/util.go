package main

import (
	"fmt"
	"os"

	"github.com/tdewolff/prompt"
)

func writeFile(filename string, b []byte, force bool) error {
	if _, err := os.Stat(filename); err == nil {
		if !force && !prompt.YesNo(fmt.Sprintf("%s already exists, overwrite?", filename), false) {
			return fmt.Errorf("%s: file already exists", filename)
		}
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
