package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/goldenstream/internal/ai"
	"github.com/myrjola/goldenstream/internal/db"
	"github.com/myrjola/goldenstream/internal/envstruct"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/repositories"
	"github.com/myrjola/goldenstream/internal/research"
	"github.com/spf13/cobra"
)

type config struct {
	SQLiteURL       string `env:"GOLDENSTREAM_SQLITE_URL" envDefault:"./goldenstream.sqlite"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	HistoryLimit    int    `env:"GOLDENSTREAM_HISTORY_LIMIT" envDefault:"15"`
	SearchGrounding bool   `env:"GOLDENSTREAM_SEARCH_GROUNDING" envDefault:"true"`
}

func init() {
	// A missing .env file is fine, the environment may be configured directly.
	_ = godotenv.Load()

	generateCmd.Flags().StringVar(&generateFlags.startupName, "name", "", "startup name (required)")
	generateCmd.Flags().StringVar(&generateFlags.sector, "sector", "", "sector the startup operates in")
	generateCmd.Flags().StringVar(&generateFlags.objective, "objective", "", "research objective")
	generateCmd.Flags().StringArrayVar(&generateFlags.documents, "doc", nil, "path to a supporting text document (repeatable)")
	generateCmd.Flags().BoolVar(&generateFlags.perspectives, "perspectives", true, "include strategic perspectives")
	_ = generateCmd.MarkFlagRequired("name")

	historyCmd.Flags().StringVar(&historyFlags.profile, "profile", "", "profile to list (default: current)")
	historyCmd.Flags().BoolVar(&historyFlags.asJSON, "json", false, "print full history items as JSON")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(historyCmd)
}

var rootCmd = &cobra.Command{ //nolint:exhaustruct // defaults suffice
	Use:  "goldenstream-cli",
	Long: `Command line utilities for Golden Data Stream desk research`,
}

var generateFlags struct {
	startupName  string
	sector       string
	objective    string
	documents    []string
	perspectives bool
}

var generateCmd = &cobra.Command{ //nolint:exhaustruct // defaults suffice
	Use:   "generate",
	Short: "Generate a market-research report and store it in the history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		var cfg config
		if err := envstruct.Populate(&cfg, os.LookupEnv); err != nil {
			return errors.Wrap(err, "populate config")
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{ //nolint:exhaustruct // defaults suffice
			Level: slog.LevelWarn,
		}))

		history, cleanup, err := openHistory(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		client, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return errors.Wrap(err, "initialise AI client")
		}

		var documents []models.UploadedDocument
		for _, path := range generateFlags.documents {
			content, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "read document", slog.String("path", path))
			}
			documents = append(documents, models.UploadedDocument{Name: path, Content: string(content)})
		}

		profile := models.ResearchProfile{ //nolint:exhaustruct // pillars come from the web UI
			StartupName: generateFlags.startupName,
			Sector:      generateFlags.sector,
			Objective:   generateFlags.objective,
		}

		generator := research.NewGenerator(client, logger, cfg.SearchGrounding)
		report, err := generator.Generate(ctx, profile, documents, generateFlags.perspectives)
		if err != nil {
			return err
		}

		item, err := repositories.NewHistoryItem(profile.StartupName, history.CurrentProfile(), *report)
		if err != nil {
			return err
		}
		if err = history.Append(ctx, item); err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(item)
	},
}

var historyFlags struct {
	profile string
	asJSON  bool
}

var historyCmd = &cobra.Command{ //nolint:exhaustruct // defaults suffice
	Use:   "history",
	Short: "List generated reports for a profile, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		var cfg config
		if err := envstruct.Populate(&cfg, os.LookupEnv); err != nil {
			return errors.Wrap(err, "populate config")
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{ //nolint:exhaustruct // defaults suffice
			Level: slog.LevelWarn,
		}))

		history, cleanup, err := openHistory(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		profile := historyFlags.profile
		if profile == "" {
			profile = history.CurrentProfile()
		}
		items := history.ListByProfile(profile)

		if historyFlags.asJSON {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(items)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d report(s) for profile %q\n", len(items), profile)
		for _, item := range items {
			fmt.Fprintf(out, "%s  %s  %s\n", item.Date, item.ID, item.StartupName)
		}
		return nil
	},
}

// openHistory opens the SQLite database and loads the history repository.
// The returned cleanup closes both database pools.
func openHistory(
	ctx context.Context,
	cfg config,
	logger *slog.Logger,
) (*repositories.HistoryRepository, func(), error) {
	dbs, err := db.NewDB(ctx, cfg.SQLiteURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open database", slog.String("url", cfg.SQLiteURL))
	}
	cleanup := func() {
		_ = dbs.ReadWriteDB.Close()
		_ = dbs.ReadDB.Close()
	}
	history, err := repositories.NewHistoryRepository(ctx, dbs, logger, cfg.HistoryLimit)
	if err != nil {
		cleanup()
		return nil, nil, errors.Wrap(err, "load history")
	}
	return history, cleanup, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
