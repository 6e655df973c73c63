package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/types"
)

// NewApp assembles the spool CLI application.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:     "spool",
		Usage:    "Chunked podcast audio download and reassembly",
		Version:  fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:    GlobalFlags(),
		Commands: Commands(commit),
	}
}
