package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/strata"
	"github.com/hyperengineering/strata/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document into the chunk index",
	Long: `Chunk, embed, and index a text file for semantic search.

The document ID defaults to the file's base name; re-ingesting the same ID
replaces the previous version.

Example:
  strata ingest README.md --project myapp
  strata ingest docs/architecture.md --project myapp --doc-id architecture`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var (
	ingestProject string
	ingestDocID   string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestProject, "project", "", "Project ID (default: STRATA_PROJECT or \"default\")")
	ingestCmd.Flags().StringVar(&ingestDocID, "doc-id", "", "Document ID (default: file base name)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	project, err := store.ResolveProject(ingestProject)
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	docID := ingestDocID
	if docID == "" {
		docID = filepath.Base(path)
	}

	cc, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := buildEngine(cc)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := engine.Ingest(ctx, strata.IngestParams{
		ProjectID:  project,
		DocID:      docID,
		SourcePath: path,
		Text:       string(data),
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as %q: %d chunks\n", path, docID, result.Chunks)
	return nil
}
