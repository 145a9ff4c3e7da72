// Package main is the entry point for the blazewatch alert console.
package main

import (
	"os"

	"github.com/good-yellow-bee/blazewatch/cmd/blazewatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
