// Package main provides the entry point for the fillspc CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/fillspc/cmd/fillspc/commands"
	"github.com/Sumatoshi-tech/fillspc/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
