package cmd

import (
	"github.com/urfave/cli/v2"
)

// ListItem is one row of the list command.
type ListItem struct {
	ID           string `json:"id"`
	PodcastID    string `json:"podcast_id"`
	MediaType    string `json:"type"`
	ChunkCount   int    `json:"chunk_count"`
	IsDownloaded bool   `json:"is_downloaded"`
	EnclosureURL string `json:"enclosure"`
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored resources",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "downloaded",
				Usage: "Only list downloaded resources",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			recs, err := e.newManager(nil).Catalog().List(c.Context)
			if err != nil {
				return storageExit(err, exitStorage)
			}
			items := make([]ListItem, 0, len(recs))
			for _, r := range recs {
				if c.Bool("downloaded") && !r.IsDownloaded {
					continue
				}
				items = append(items, ListItem{
					ID:           r.ID,
					PodcastID:    r.PodcastID,
					MediaType:    r.MediaType,
					ChunkCount:   r.ChunkCount,
					IsDownloaded: r.IsDownloaded,
					EnclosureURL: r.EnclosureURL,
				})
			}
			return e.renderer.Render(items)
		},
	}
}
