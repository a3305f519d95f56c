package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/sydlexius/linernotes/internal/backup"
	"github.com/sydlexius/linernotes/internal/cache"
	"github.com/sydlexius/linernotes/internal/catalogue"
	"github.com/sydlexius/linernotes/internal/config"
	"github.com/sydlexius/linernotes/internal/credits"
	"github.com/sydlexius/linernotes/internal/database"
	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/event"
	"github.com/sydlexius/linernotes/internal/filesystem"
	"github.com/sydlexius/linernotes/internal/logging"
	"github.com/sydlexius/linernotes/internal/maintenance"
	"github.com/sydlexius/linernotes/internal/playlist"
	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/provider/listenbrainz"
	"github.com/sydlexius/linernotes/internal/provider/musicbrainz"
	"github.com/sydlexius/linernotes/internal/provider/spotify"
	"github.com/sydlexius/linernotes/internal/provider/wikipedia"
	"github.com/sydlexius/linernotes/internal/resolve"
	"github.com/sydlexius/linernotes/internal/watcher"
	"github.com/sydlexius/linernotes/internal/webhook"
)

// webhookGrace bounds how long exit waits for webhook deliveries.
const webhookGrace = 15 * time.Second

// app holds the wired services for one command invocation.
type app struct {
	cfg        *config.Config
	logManager *logging.Manager
	logger     *slog.Logger
	db         *sql.DB
	store      *cache.SQLStore
	bus        *event.Bus

	registry   *provider.Registry
	graph      *musicbrainz.Adapter
	wiki       *wikipedia.Adapter
	popularity *listenbrainz.Adapter
	// catalogue is nil when no Spotify credentials are configured.
	catalogue  *spotify.Adapter

	out      io.Writer
	jsonOut  bool
	stopBg   context.CancelFunc
	bgDone   chan struct{}
	closeFns []func()
}

type appOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFile    string
	quiet      bool
	jsonOut    bool
	watch      bool
}

func newApp(ctx context.Context, opts appOptions, out io.Writer) (*app, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &app{cfg: cfg, out: out, jsonOut: opts.jsonOut}
	a.logManager, a.logger = logging.NewManager(a.loggingConfig(cfg, opts))
	a.closeFns = append(a.closeFns, func() { a.logManager.Close() }) //nolint:errcheck
	slog.SetDefault(a.logger)

	a.db, err = database.Open(cfg.Database.Path)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.closeFns = append(a.closeFns, func() {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", "error", err)
		}
	})
	if err := database.Migrate(a.db); err != nil {
		a.close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	a.logger.Debug("database ready", slog.String("path", cfg.Database.Path))
	a.store = cache.NewSQLStore(a.db, a.logger)

	a.bus = event.NewBus(a.logger, 256)
	a.bus.SubscribeAll(func(e event.Event) {
		a.logger.Debug("event", slog.String("type", string(e.Type)), slog.Any("data", e.Data))
	})
	var hooks *webhook.Dispatcher
	if len(cfg.Webhooks) > 0 {
		hooks = webhook.NewDispatcher(cfg.Webhooks, a.logger)
		hooks.Subscribe(a.bus)
	}
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		a.bus.Start()
	}()
	a.closeFns = append(a.closeFns, func() {
		a.bus.Stop()
		<-busDone
		if hooks != nil {
			ctx, cancel := context.WithTimeout(context.Background(), webhookGrace)
			defer cancel()
			hooks.Wait(ctx)
		}
	})

	if err := a.wireProviders(ctx); err != nil {
		a.close()
		return nil, err
	}

	bgCtx, cancel := context.WithCancel(ctx)
	a.stopBg = cancel
	if opts.watch && opts.configPath != "" {
		a.startWatcher(bgCtx, opts)
	}
	return a, nil
}

func (a *app) loggingConfig(cfg *config.Config, opts appOptions) logging.Config {
	lc := logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FilePath:       cfg.Logging.File,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxFiles:   cfg.Logging.FileMaxFiles,
		FileMaxAgeDays: cfg.Logging.FileMaxAgeDays,
		Quiet:          opts.quiet,
	}
	if opts.logLevel != "" {
		lc.Level = opts.logLevel
	}
	if opts.logFile != "" {
		lc.FilePath = opts.logFile
	}
	return lc
}

func (a *app) wireProviders(ctx context.Context) error {
	cfg := a.cfg
	limiter := provider.NewRateLimiterMap()
	a.registry = provider.NewRegistry()

	if cfg.MusicBrainz.BaseURL != "" {
		a.graph = musicbrainz.NewWithBaseURL(limiter, a.logger, cfg.MusicBrainz.BaseURL)
	} else {
		a.graph = musicbrainz.New(limiter, a.logger)
	}
	a.registry.Register(a.graph)

	if cfg.Wikipedia.Endpoint != "" {
		a.wiki = wikipedia.NewWithEndpoint(limiter, a.logger, cfg.Wikipedia.Endpoint)
	} else {
		a.wiki = wikipedia.New(limiter, a.logger, cfg.Wikipedia.Language)
	}
	a.registry.Register(a.wiki)

	if cfg.ListenBrainz.BaseURL != "" {
		a.popularity = listenbrainz.NewWithBaseURL(limiter, a.logger, cfg.ListenBrainz.Token, cfg.ListenBrainz.BaseURL)
	} else {
		a.popularity = listenbrainz.New(limiter, a.logger, cfg.ListenBrainz.Token)
	}
	a.registry.Register(a.popularity)

	if cfg.Spotify.Enabled() {
		token, err := readToken(cfg.Spotify.TokenFile)
		if err != nil {
			return fmt.Errorf("reading spotify token: %w", err)
		}
		creds := spotify.Credentials{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			UserToken:    token,
			BaseURL:      cfg.Spotify.BaseURL,
		}
		if token != nil {
			creds.OnTokenRefresh = func(t *oauth2.Token) {
				if err := writeToken(cfg.Spotify.TokenFile, t); err != nil {
					a.logger.Warn("saving refreshed spotify token", slog.Any("error", err))
				}
			}
		}
		a.catalogue = spotify.New(ctx, limiter, a.logger, creds)
		a.registry.Register(a.catalogue)
	}
	return nil
}

// readToken loads a JSON-encoded OAuth2 token. An empty path means none.
func readToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &tok, nil
}

// writeToken replaces the token file with t.
func writeToken(path string, t *oauth2.Token) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(path, data, 0o600)
}

// startWatcher applies logging changes from the config file while a
// command runs. Other settings take effect on the next invocation.
func (a *app) startWatcher(ctx context.Context, opts appOptions) {
	if _, err := os.Stat(opts.configPath); err != nil {
		return
	}
	w := watcher.NewService(opts.configPath, func(_ context.Context, path string) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		a.logManager.Reconfigure(a.loggingConfig(cfg, opts))
		return nil
	}, a.bus, a.logger)

	a.bgDone = make(chan struct{})
	go func() {
		defer close(a.bgDone)
		if err := w.Start(ctx); err != nil {
			a.logger.Warn("config watcher unavailable", slog.Any("error", err))
		}
	}()
}

func (a *app) close() {
	if a.stopBg != nil {
		a.stopBg()
		if a.bgDone != nil {
			<-a.bgDone
		}
	}
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *app) creditsService() *credits.Service {
	return credits.NewService(a.graph, a.wiki, a.store, a.bus, a.cfg.CreditsService(), a.logger)
}

func (a *app) discographyEngine() *discography.Engine {
	return discography.NewEngine(a.graph, a.store, a.bus, a.cfg.Discography(), a.logger)
}

func (a *app) artistResolver() *resolve.ArtistResolver {
	return resolve.NewArtistResolver(a.graph, a.logger)
}

func (a *app) playlistBuilder() (*playlist.Builder, error) {
	if a.catalogue == nil {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	}
	matcher := catalogue.NewMatcher(a.catalogue, a.graph, a.cfg.Matching.Catalogue, a.logger)
	return playlist.NewBuilder(a.artistResolver(), a.discographyEngine(), a.popularity, matcher, a.catalogue, a.bus, a.logger), nil
}

func (a *app) maintenanceService() *maintenance.Service {
	return maintenance.NewService(a.db, a.cfg.Database.Path, a.store, a.bus, a.logger)
}

func (a *app) backupService() *backup.Service {
	return backup.NewService(a.db, a.cfg.Backup.Dir, a.cfg.Backup.Policy, a.logger)
}

// printJSON writes v as indented JSON to the command output.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
