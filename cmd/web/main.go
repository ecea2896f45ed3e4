package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/myrjola/goldenstream/internal/ai"
	"github.com/myrjola/goldenstream/internal/broker"
	"github.com/myrjola/goldenstream/internal/chat"
	"github.com/myrjola/goldenstream/internal/db"
	"github.com/myrjola/goldenstream/internal/envstruct"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/logging"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/pprofserver"
	"github.com/myrjola/goldenstream/internal/repositories"
	"github.com/myrjola/goldenstream/internal/research"
)

type config struct {
	// Addr is the address the server listens on, e.g. "localhost:4000". Port 0 picks a free port.
	Addr string `env:"GOLDENSTREAM_ADDR" envDefault:"localhost:4000"`
	// PprofPort is the localhost port for the pprof sidecar. Empty disables it.
	PprofPort string `env:"GOLDENSTREAM_PPROF_PORT" envDefault:":6060"`
	// SQLiteURL is the path to the SQLite database file or ":memory:".
	SQLiteURL string `env:"GOLDENSTREAM_SQLITE_URL" envDefault:"./goldenstream.sqlite"`
	// GeminiAPIKey authenticates against the Gemini API.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	// GeminiModel is the model used for generation and chat.
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	// HistoryLimit caps the number of retained history items across all profiles.
	HistoryLimit int `env:"GOLDENSTREAM_HISTORY_LIMIT" envDefault:"15"`
	// SearchGrounding augments report generation with Google Search results.
	SearchGrounding bool `env:"GOLDENSTREAM_SEARCH_GROUNDING" envDefault:"true"`
}

type application struct {
	logger         *slog.Logger
	sessionManager *scs.SessionManager
	generator      *research.Generator
	chatBackend    chat.Backend
	history        *repositories.HistoryRepository
	replyBroker    *broker.ChannelBroker[string, models.ChatMessage]

	// generating gates report generation to one in-flight call.
	generating atomic.Bool

	// editors maps the per-browser editor id to its open edit session.
	mu      sync.Mutex
	editors map[string]*chat.Session
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	// The pprof server listens on localhost so that it's not open to the world.
	if cfg.PprofPort != "" {
		pprofserver.Launch(cfg.PprofPort, logger)
	}

	dbs, err := db.NewDB(ctx, cfg.SQLiteURL)
	if err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SQLiteURL))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	history, err := repositories.NewHistoryRepository(ctx, dbs, logger, cfg.HistoryLimit)
	if err != nil {
		return errors.Wrap(err, "initialise history repository")
	}

	aiClient, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return errors.Wrap(err, "initialise AI client")
	}

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(dbs.ReadWriteDB.DB, 24*time.Hour)
	sessionManager.Lifetime = 12 * time.Hour

	replyBroker := broker.NewChannelBroker[string, models.ChatMessage]()
	go replyBroker.Start()
	defer replyBroker.Stop()

	app := application{
		logger:         logger,
		sessionManager: sessionManager,
		generator:      research.NewGenerator(aiClient, logger, cfg.SearchGrounding),
		chatBackend:    aiClient,
		history:        history,
		replyBroker:    replyBroker,
		editors:        make(map[string]*chat.Session),
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

func main() {
	loggerHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{ //nolint:exhaustruct // defaults suffice
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	logger := slog.New(logging.NewContextHandler(loggerHandler))

	// A missing .env file is fine, the environment may be configured directly.
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded")
	}

	if err := run(context.Background(), logger, os.LookupEnv); err != nil {
		logger.Error("server failed", errors.SlogError(err))
		os.Exit(1)
	}
}
