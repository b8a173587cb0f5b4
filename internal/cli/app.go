package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkoenig/pushdeck/internal/backend/local"
	"github.com/pkoenig/pushdeck/internal/config"
	"github.com/pkoenig/pushdeck/internal/credentials"
	"github.com/pkoenig/pushdeck/internal/db"
	"github.com/pkoenig/pushdeck/internal/events"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
	"github.com/pkoenig/pushdeck/internal/relay"
)

// App holds everything a command needs: the loaded config, the open
// database, and the backend wired on top of both.
type App struct {
	Config      *config.Config
	DB          *db.DB
	Credentials *credentials.Store
	Publisher   *events.InMemoryPublisher
	Backend     *local.Backend
	Contexts    *config.ContextStore

	logFile *os.File
}

// openApp loads config, initializes logging, opens the database, and
// wires the backend. Callers must Close the returned app.
func openApp(cmd *cobra.Command) (*App, error) {
	configFile, _ := cmd.Root().PersistentFlags().GetString("config")

	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	var logFile *os.File
	if cfg.Logging.File != "" {
		logFile, err = os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logCfg.Output = logFile
	}
	logging.Init(logCfg)

	database, err := db.Open(cfg.DatabasePath(), db.Options{
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		closeQuietly(logFile)
		return nil, err
	}
	if _, err := database.MigrateUp(cmd.Context()); err != nil {
		_ = database.Close()
		closeQuietly(logFile)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := seedDefaultServer(cmd.Context(), database, cfg.DefaultServer); err != nil {
		logging.Warn().Err(err).Msg("Default server registration failed")
	}

	creds, err := credentials.NewStore(credentials.StoreOptions{
		FileDir: filepath.Join(cfg.Global.DataDir, "keyring"),
	})
	if err != nil {
		_ = database.Close()
		closeQuietly(logFile)
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	publisher := events.NewInMemoryPublisher()
	client := relay.NewClient(relay.ClientOptions{Timeout: cfg.Sync.RequestTimeout})
	be := local.New(database, publisher, local.Options{
		Client:           client,
		Credentials:      local.StoreSource{Store: creds},
		PollInterval:     cfg.Sync.PollInterval,
		WebsocketEnabled: cfg.Sync.WebsocketEnabled,
	})

	return &App{
		Config:      cfg,
		DB:          database,
		Credentials: creds,
		Publisher:   publisher,
		Backend:     be,
		Contexts:    config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml")),
		logFile:     logFile,
	}, nil
}

// contextStore opens the topic-selection store without the rest of the
// app, for commands that never touch the database.
func contextStore(cmd *cobra.Command) (*config.ContextStore, error) {
	configFile, _ := cmd.Root().PersistentFlags().GetString("config")

	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml")), nil
}

// seedDefaultServer registers the configured server the first time the
// client runs, so subscribing works before any "servers add".
func seedDefaultServer(ctx context.Context, database *db.DB, url string) error {
	if url == "" {
		return nil
	}

	servers := db.NewServerRepository(database)
	existing, err := servers.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return servers.Create(ctx, &models.Server{URL: url})
}

// Close releases the app's resources.
func (a *App) Close() {
	a.Publisher.Close()
	if err := a.DB.Close(); err != nil {
		logging.Warn().Err(err).Msg("Closing database failed")
	}
	closeQuietly(a.logFile)
}

func closeQuietly(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

// resolveTopicRef maps a topic name or subscription id to the
// subscription. Names that exist on more than one server must be
// qualified with --server.
func (a *App) resolveTopicRef(ctx context.Context, ref, serverURL string) (models.Subscription, error) {
	subs, err := a.Backend.Subscriptions(ctx)
	if err != nil {
		return models.Subscription{}, err
	}

	ref = strings.TrimSpace(ref)
	for _, sub := range subs {
		if sub.ID == ref {
			return sub, nil
		}
	}

	var matches []models.Subscription
	for _, sub := range subs {
		if sub.Topic != ref {
			continue
		}
		if serverURL != "" && !sub.ServerMatches(serverURL) {
			continue
		}
		matches = append(matches, sub)
	}

	switch len(matches) {
	case 0:
		return models.Subscription{}, fmt.Errorf("no subscription matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		servers := make([]string, len(matches))
		for i, sub := range matches {
			servers[i] = sub.ServerURL
		}
		return models.Subscription{}, fmt.Errorf("topic %q exists on multiple servers (%s); pass --server", ref, strings.Join(servers, ", "))
	}
}

// selectedTopic resolves the subscription a command acts on: an
// explicit argument wins, then the saved topic context.
func (a *App) selectedTopic(ctx context.Context, args []string, serverURL string) (models.Subscription, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return a.resolveTopicRef(ctx, args[0], serverURL)
	}

	cliCtx, err := a.Contexts.Load()
	if err != nil {
		return models.Subscription{}, err
	}
	if cliCtx.IsEmpty() {
		return models.Subscription{}, fmt.Errorf("no topic given and none selected; pass a topic or run \"pushdeck topics use <topic>\"")
	}
	return a.resolveTopicRef(ctx, cliCtx.TopicID, "")
}
