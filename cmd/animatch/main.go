// Package main provides the animatch CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/animatch/agent"
	"github.com/richinex/animatch/config"
	"github.com/richinex/animatch/job"
	"github.com/richinex/animatch/model"
	"github.com/richinex/animatch/server"
	"github.com/richinex/animatch/storage"
)

var verbose bool

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "animatch",
		Short: "Agent-driven catalog identity matching",
		Long: `animatch resolves media entries against external catalogs (bgm.tv, TMDB)
by driving a tool-calling LLM agent, and runs batches of such resolutions
as resumable background jobs controlled over HTTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(mappingsCmd())
	rootCmd.AddCommand(reviewCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job control API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.New()
			if err != nil {
				return err
			}

			store, err := storage.OpenSqlite(settings.DB.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := slog.Default()
			factory := agent.NewFactory(settings.LLM.MaxTokens, settings.LLM.Temperature, logger)
			matcher := agent.NewRunner(factory, settings.Match.RetryCount, settings.Match.RetryDelay, logger)
			runner := job.NewRunner(store, matcher, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(settings.API.Bind, runner, logger)
			if err := srv.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			srv.Stop()
			return nil
		},
	}
}

func matchCmd() *cobra.Command {
	var platformName string
	var providerName string
	var modelName string

	cmd := &cobra.Command{
		Use:   "match [query]",
		Short: "Resolve a single query against a catalog",
		Long: `Run the matching agent once for an ad-hoc query and print the result.

The query is free text, typically a JSON payload of titles and air-date
hints, but any description the model can search from works.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.New()
			if err != nil {
				return err
			}
			platform, err := model.ParsePlatform(platformName)
			if err != nil {
				return err
			}

			logger := slog.Default()
			factory := agent.NewFactory(settings.LLM.MaxTokens, settings.LLM.Temperature, logger)
			runner := agent.NewRunner(factory, settings.Match.RetryCount, settings.Match.RetryDelay, logger)

			result, err := runner.Match(cmd.Context(), platform, providerName, modelName, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&platformName, "platform", "P", "bgm_tv", "Catalog platform (bgm_tv, tmdb)")
	cmd.Flags().StringVarP(&providerName, "provider", "p", "anthropic", "LLM provider (openai, anthropic, deepseek, gemini)")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (provider default when empty)")

	return cmd
}

func importCmd() *cobra.Command {
	var platforms []string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import media entries from a JSON file",
		Long: `Import entries into the database and seed an unmatched mapping row per
platform. The file holds a JSON array of entries:

  [{"anilist_id": 1, "titles": "...", "year": 2024, "media_type": "TV",
    "start_date": "2024-01-07", "episode_number": 12}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.New()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var entries []model.MediaEntry
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			parsed := make([]model.Platform, 0, len(platforms))
			for _, p := range platforms {
				platform, err := model.ParsePlatform(p)
				if err != nil {
					return err
				}
				parsed = append(parsed, platform)
			}

			store, err := storage.OpenSqlite(settings.DB.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ImportEntries(cmd.Context(), entries, parsed); err != nil {
				return err
			}
			fmt.Printf("imported %d entries for %d platform(s)\n", len(entries), len(parsed))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&platforms, "platform", "P", []string{"bgm_tv", "tmdb"}, "Platform(s) to seed mappings for")

	return cmd
}

func mappingsCmd() *cobra.Command {
	var platformName string
	var statusName string

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List stored mappings by review status",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.New()
			if err != nil {
				return err
			}
			platform, err := model.ParsePlatform(platformName)
			if err != nil {
				return err
			}
			status, err := model.ParseReviewStatus(statusName)
			if err != nil {
				return err
			}

			store, err := storage.OpenSqlite(settings.DB.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			mappings, err := store.ListMappings(cmd.Context(), platform, status)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(mappings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&platformName, "platform", "P", "bgm_tv", "Catalog platform (bgm_tv, tmdb)")
	cmd.Flags().StringVarP(&statusName, "status", "s", string(model.ReviewReady), "Review status filter")

	return cmd
}

func reviewCmd() *cobra.Command {
	var platformName string

	cmd := &cobra.Command{
		Use:   "review [anilist_id] [status]",
		Short: "Set the review status of one mapping",
		Long: `Mark a proposed mapping as Accepted, Rejected or Dropped after manual
review, or put it back to UnMatched so the next job picks it up again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.New()
			if err != nil {
				return err
			}
			platform, err := model.ParsePlatform(platformName)
			if err != nil {
				return err
			}
			anilistID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid anilist id: %q", args[0])
			}
			status, err := model.ParseReviewStatus(args[1])
			if err != nil {
				return err
			}

			store, err := storage.OpenSqlite(settings.DB.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetReviewStatus(cmd.Context(), anilistID, platform, status); err != nil {
				return err
			}
			fmt.Printf("entry %d on %s set to %s\n", anilistID, platform, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&platformName, "platform", "P", "bgm_tv", "Catalog platform (bgm_tv, tmdb)")

	return cmd
}
