// Package main is the entry point for the gunshot CLI.
//
// Usage:
//
//	gunshot [flags] <command> [args]
//
// Commands:
//
//	analyze    - Analyse one or more audio files
//	batch      - Analyse every audio file below a directory
//	model      - Inspect the detection model (info, check)
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-gunshot/cmd/gunshot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
