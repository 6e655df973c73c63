package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/cli/render"
	"github.com/pithecene-io/spool/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It never opens the store.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), exitUsage)
			}
			return r.Render(VersionResponse{Version: types.Version, Commit: commit})
		},
	}
}

// Commands returns every spool command.
func Commands(commit string) []*cli.Command {
	return []*cli.Command{
		FetchCommand(),
		AssembleCommand(),
		DeleteCommand(),
		InspectCommand(),
		ListCommand(),
		VersionCommand(commit),
	}
}
