package cmd

import (
	"github.com/urfave/cli/v2"
)

// DeleteResponse is the response for the delete command.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// DeleteCommand returns the delete command.
// Removes a resource's chunks, blob cache and record.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a resource and all of its stored chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Resource ID",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			id := c.String("id")
			if err := e.newManager(nil).Delete(c.Context, id); err != nil {
				return storageExit(err, exitDownloadFailure)
			}
			return e.renderer.Render(DeleteResponse{ID: id, Deleted: true})
		},
	}
}
