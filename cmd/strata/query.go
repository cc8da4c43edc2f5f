package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/strata"
	"github.com/hyperengineering/strata/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query <search terms>",
	Short: "Query all memory tiers",
	Long: `Query facts, episodes, and document chunks for a project.

Results are ordered by authority: facts first, then episodes, then chunks.

Example:
  strata query "api endpoint" --project myapp
  strata query "database migrations" --project myapp --top 10 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var (
	queryProject       string
	queryTop           int
	queryMinConfidence float64
	queryCategory      string
	queryJSON          bool
)

func init() {
	queryCmd.Flags().StringVar(&queryProject, "project", "", "Project ID (default: STRATA_PROJECT or \"default\")")
	queryCmd.Flags().IntVarP(&queryTop, "top", "k", 10, "Maximum number of results")
	queryCmd.Flags().Float64Var(&queryMinConfidence, "min-confidence", 0.0, "Minimum confidence threshold")
	queryCmd.Flags().StringVar(&queryCategory, "category", "", "Comma-separated categories to filter facts")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	project, err := store.ResolveProject(queryProject)
	if err != nil {
		return err
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

	params := strata.SelectParams{
		ProjectID: project,
		Query:     args[0],
		TopK:      queryTop,
	}
	if cmd.Flags().Changed("min-confidence") {
		params.MinConfidence = &queryMinConfidence
	}
	if queryCategory != "" {
		for _, c := range strings.Split(queryCategory, ",") {
			params.CategoryFilter = append(params.CategoryFilter, strings.TrimSpace(c))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := engine.Select(ctx, params)
	if err != nil {
		return fmt.Errorf("query memory: %w", err)
	}

	if queryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching memory found.")
		return nil
	}

	if result.Partial {
		failed := make([]string, 0, len(result.FailedTiers))
		for _, t := range result.FailedTiers {
			failed = append(failed, string(t))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: tiers unavailable: %s\n\n", strings.Join(failed, ", "))
	}

	for _, item := range result.Items {
		switch item.Tier {
		case strata.TierFact:
			marker := ""
			if item.Conflict {
				marker = " (conflicting)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[fact]%s %s = %s (%.2f)\n", marker, item.Fact.Key, item.Fact.Value, item.Fact.Confidence)
		case strata.TierEpisode:
			fmt.Fprintf(cmd.OutOrStdout(), "[episode] %s: %s (%.2f)\n", item.Episode.LessonType, item.Episode.Title, item.Episode.Quality)
		case strata.TierChunk:
			fmt.Fprintf(cmd.OutOrStdout(), "[chunk] %s (score %.2f)\n    %s\n", item.Chunk.DocID, item.Chunk.Score, truncate(item.Chunk.Text, 120))
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
