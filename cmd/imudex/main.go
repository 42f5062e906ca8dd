// Package main provides the entry point for the imudex CLI.
package main

import (
	"os"

	"github.com/imudex/imudex/cmd/imudex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
