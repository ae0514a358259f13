package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/chunk"
	"example.com/powerchunk/internal/powerlog"
)

var errChunkFound = errors.New("chunk found")

func newChunkCmd(a *app) *cobra.Command {
	var (
		chunksPath string
		id         string
		params     []string
		fromDB     bool
		device     string
		at         string
	)
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Print the percentage series and selected columns of one chunk",
		Example: `  powerchunk chunk --chunks out/chunks_dev1.json --id 3f0c...
  powerchunk chunk --from-db --name dev1 --at "01/02/2024 10:30:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc chunk.Document
				err error
			)
			if fromDB {
				doc, err = a.chunkFromDB(cmd, device, id, at)
			} else {
				doc, err = chunkFromFile(chunksPath, id)
			}
			if err != nil {
				return err
			}
			view := chunk.Document{
				ChunkID:   doc.ChunkID,
				StartDate: doc.StartDate,
				StartTime: doc.StartTime,
				BattPres:  doc.BattPres,
				PowerSrc:  doc.PowerSrc,
				Perc:      doc.Perc,
				EndDate:   doc.EndDate,
				EndTime:   doc.EndTime,
				TotalTime: doc.TotalTime,
			}
			for _, p := range params {
				if f, ok := doc.Field(strings.TrimSpace(p)); ok {
					view.Fields = append(view.Fields, f)
				}
			}
			b, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&chunksPath, "chunks", "", "Chunk file produced by segment")
	cmd.Flags().StringVar(&id, "id", "", "Chunk identifier")
	cmd.Flags().StringSliceVar(&params, "params", []string{"SOH", "Volt", "Curr", "Temp"}, "Columns to include")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "Read the chunk from the configured Postgres store")
	cmd.Flags().StringVar(&device, "name", "", "Device name in the Postgres store (with --from-db)")
	cmd.Flags().StringVar(&at, "at", "", "Select the chunk covering this timestamp, MM/DD/YYYY HH:MM:SS (with --from-db)")
	cmd.MarkFlagsMutuallyExclusive("chunks", "from-db")
	cmd.MarkFlagsMutuallyExclusive("id", "at")
	return cmd
}

func chunkFromFile(path, id string) (chunk.Document, error) {
	if path == "" || id == "" {
		return chunk.Document{}, errors.New("--chunks and --id are required")
	}
	var found chunk.Document
	err := chunk.EachInFile(path, func(doc chunk.Document) error {
		if doc.ChunkID == id {
			found = doc
			return errChunkFound
		}
		return nil
	})
	switch {
	case errors.Is(err, errChunkFound):
		return found, nil
	case err != nil:
		return found, err
	}
	return found, fmt.Errorf("chunk %s not found in %s", id, path)
}

func (a *app) chunkFromDB(cmd *cobra.Command, device, id, at string) (chunk.Document, error) {
	if device == "" {
		return chunk.Document{}, errors.New("--from-db requires --name")
	}
	if id == "" && at == "" {
		return chunk.Document{}, errors.New("--from-db requires --id or --at")
	}
	ctx := cmd.Context()
	repo, closeSink, err := a.openSink(ctx)
	if err != nil {
		return chunk.Document{}, err
	}
	defer closeSink()
	if repo == nil {
		return chunk.Document{}, errors.New("no postgres dsn configured")
	}
	if at != "" {
		ts, ok := powerlog.ParseTimestamp(at)
		if !ok {
			return chunk.Document{}, fmt.Errorf("invalid timestamp %q", at)
		}
		spans, err := repo.ListSpans(ctx, device, ts, ts.Add(time.Second))
		if err != nil {
			return chunk.Document{}, err
		}
		if len(spans) == 0 {
			return chunk.Document{}, fmt.Errorf("no chunk of %s covers %s", device, at)
		}
		id = spans[0].ChunkID
	}
	docs, err := repo.ListChunks(ctx, device)
	if err != nil {
		return chunk.Document{}, err
	}
	for _, doc := range docs {
		if doc.ChunkID == id {
			return doc, nil
		}
	}
	return chunk.Document{}, fmt.Errorf("chunk %s not found for %s", id, device)
}
