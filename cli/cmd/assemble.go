package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/assemble"
	"github.com/pithecene-io/spool/library"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// AssembleResponse is the response for the assemble command.
type AssembleResponse struct {
	ID          string `json:"id"`
	Output      string `json:"output"`
	Bytes       int64  `json:"bytes"`
	ChunkCount  int    `json:"chunk_count"`
	ContentType string `json:"content_type"`
}

// AssembleCommand returns the assemble command.
func AssembleCommand() *cli.Command {
	return &cli.Command{
		Name:  "assemble",
		Usage: "Reassemble a downloaded resource into a single file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Resource ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Output file, or - for stdout",
				Required: true,
			},
		},
		Action: assembleAction,
	}
}

func assembleAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	id, output := c.String("id"), c.String("output")
	m := e.newManager(nil)

	rec, err := m.Catalog().Load(c.Context, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("resource %s not found", id), exitDownloadFailure)
		}
		return storageExit(err, exitDownloadFailure)
	}
	if !rec.IsDownloaded {
		return cli.Exit(fmt.Sprintf("resource %s is not downloaded", id), exitDownloadFailure)
	}

	var w io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return cli.Exit(fmt.Sprintf("create output: %v", err), exitUsage)
		}
		defer f.Close()
		w = f
	}

	n, err := writeAssembled(c, m, rec, w)
	if err != nil {
		if output != "-" {
			_ = os.Remove(output)
		}
		if errors.Is(err, assemble.ErrIncompleteReassembly) {
			return cli.Exit(err.Error(), exitDownloadFailure)
		}
		return storageExit(err, exitDownloadFailure)
	}

	e.logger.Info("resource assembled", map[string]any{"resource_id": id, "bytes": n, "output": output})
	if output == "-" {
		return nil
	}
	return e.renderer.Render(AssembleResponse{
		ID:          id,
		Output:      output,
		Bytes:       n,
		ChunkCount:  rec.ChunkCount,
		ContentType: assemble.NewBlob(id, rec.MediaType, nil).ContentType(),
	})
}

// writeAssembled streams the chunks to w, or goes through the blob cache
// when it is enabled.
func writeAssembled(c *cli.Context, m *library.Manager, rec *types.Resource, w io.Writer) (int64, error) {
	if !m.CacheAssembled() {
		return m.Assembler().AssembleTo(c.Context, w, rec.ID, rec.ChunkCount)
	}
	blob, err := m.Blob(c.Context, rec.ID)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, blob.Reader())
}
