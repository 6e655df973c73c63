// Package main provides the spool CLI entrypoint.
//
// Usage:
//
//	spool [global options] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: download or reassembly failure
//   - 2: usage or configuration error
//   - 3: storage error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/cli/cmd"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler exits with the code carried by a cli.Exit error.
// Other errors come from flag and argument parsing and exit 2.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus returns the process exit code for err and the message to
// print, if any. cli.Exit("", N) prints nothing.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 2, fmt.Sprintf("Error: %v", err)
}
