// Package main is the entry point for the afdata command line.
package main

import (
	"os"

	"afdata/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
