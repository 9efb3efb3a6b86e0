package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIngestCommand(svc Services) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Queue documents for indexing",
		Long:  `Uploads each file and queues it for extraction, chunking and embedding by the worker.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.Ingestor == nil {
				return errors.New("ingestion not configured")
			}
			var failed []error
			for _, path := range args {
				id, err := ingestFile(cmd, svc, path)
				if err != nil {
					cmd.PrintErrf("%s: %v\n", path, err)
					failed = append(failed, fmt.Errorf("%s: %w", path, err))
					continue
				}
				cmd.Printf("queued %s as %s\n", path, id)
			}
			return errors.Join(failed...)
		},
	}
}

func ingestFile(cmd *cobra.Command, svc Services, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := filepath.Base(path)
	doc, err := svc.Ingestor.Upload(commandContext(cmd), name, mime.TypeByExtension(filepath.Ext(name)), f)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}
