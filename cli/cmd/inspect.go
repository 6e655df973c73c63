package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// InspectResponse describes one stored resource.
type InspectResponse struct {
	ID           string `json:"id"`
	PodcastID    string `json:"podcast_id,omitempty"`
	EnclosureURL string `json:"enclosure"`
	MediaType    string `json:"type"`
	ChunkCount   int    `json:"chunk_count"`
	IsDownloaded bool   `json:"is_downloaded"`
	Published    string `json:"date_published,omitempty"`
	// StoredChunks counts chunk keys present in the store. For a
	// downloaded resource it equals ChunkCount.
	StoredChunks int  `json:"stored_chunks"`
	Cached       bool `json:"cached"`
}

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Show a resource record and its stored chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Resource ID",
				Required: true,
			},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	id := c.String("id")
	m := e.newManager(nil)
	rec, err := m.Catalog().Load(c.Context, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("resource %s not found", id), exitDownloadFailure)
		}
		return storageExit(err, exitDownloadFailure)
	}

	keys, err := e.store.List(c.Context, types.ChunkKeyPrefix(id))
	if err != nil {
		return storageExit(err, exitStorage)
	}
	stored := 0
	for _, k := range keys {
		if _, ok := types.ParseChunkKey(id, k); ok {
			stored++
		}
	}
	_, cacheErr := e.store.Get(c.Context, types.BlobKey(id))

	return e.renderer.Render(InspectResponse{
		ID:           rec.ID,
		PodcastID:    rec.PodcastID,
		EnclosureURL: rec.EnclosureURL,
		MediaType:    rec.MediaType,
		ChunkCount:   rec.ChunkCount,
		IsDownloaded: rec.IsDownloaded,
		Published:    rec.PublishedDate(),
		StoredChunks: stored,
		Cached:       cacheErr == nil,
	})
}
