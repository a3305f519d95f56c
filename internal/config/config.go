package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/linernotes/internal/backup"
	"github.com/sydlexius/linernotes/internal/catalogue"
	"github.com/sydlexius/linernotes/internal/credits"
	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/resolve"
	"github.com/sydlexius/linernotes/internal/webhook"
)

// Config holds all application configuration.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	MusicBrainz  MusicBrainzConfig  `yaml:"musicbrainz"`
	Wikipedia    WikipediaConfig    `yaml:"wikipedia"`
	ListenBrainz ListenBrainzConfig `yaml:"listenbrainz"`
	Spotify      SpotifyConfig      `yaml:"spotify"`
	Matching     MatchingConfig     `yaml:"matching"`
	Cache        CacheConfig        `yaml:"cache"`
	Backup       BackupConfig       `yaml:"backup"`
	Webhooks     []webhook.Webhook  `yaml:"webhooks"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	File           string `yaml:"file"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// MusicBrainzConfig points at the music graph.
type MusicBrainzConfig struct {
	BaseURL string `yaml:"base_url"`
}

// WikipediaConfig selects the encyclopedia edition.
type WikipediaConfig struct {
	Language string `yaml:"language"`
	// Endpoint overrides the api.php URL derived from Language.
	Endpoint string `yaml:"endpoint"`
}

// ListenBrainzConfig holds popularity service settings.
type ListenBrainzConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// SpotifyConfig holds catalogue credentials. TokenFile is a JSON-encoded
// OAuth2 user token; without it playlists cannot be created.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	BaseURL      string `yaml:"base_url"`
	TokenFile    string `yaml:"token_file"`
}

// Enabled reports whether catalogue search credentials are present.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// MatchingConfig tunes resolution, aggregation and catalogue matching.
type MatchingConfig struct {
	Track        resolve.TrackConfig   `yaml:"track"`
	Discography  discography.Config    `yaml:"discography"`
	Catalogue    catalogue.Config      `yaml:"catalogue"`
	CoCreditMode discography.MatchMode `yaml:"co_credit_mode"`
	MaxWorks     int                   `yaml:"max_works"`
	DenyRoles    []string              `yaml:"deny_roles"`
	RoleKeywords *credits.RoleKeywords `yaml:"role_keywords"`
	PlaylistSize int                   `yaml:"playlist_size"`
}

// CacheConfig holds cache lifetimes.
type CacheConfig struct {
	CreditsTTL         time.Duration `yaml:"credits_ttl"`
	CreditsNegativeTTL time.Duration `yaml:"credits_negative_ttl"`
	DiscographyTTL     time.Duration `yaml:"discography_ttl"`
}

// BackupConfig holds snapshot settings. An empty Dir puts snapshots in a
// "backups" directory next to the database.
type BackupConfig struct {
	Dir    string        `yaml:"dir"`
	Policy backup.Policy `yaml:",inline"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	svc := credits.DefaultServiceConfig()
	disco := discography.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Path: "linernotes.db",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			FileMaxSizeMB:  100,
			FileMaxFiles:   3,
			FileMaxAgeDays: 30,
		},
		Wikipedia: WikipediaConfig{
			Language: "en",
		},
		Matching: MatchingConfig{
			Track:        svc.Track,
			Discography:  disco,
			Catalogue:    catalogue.DefaultConfig(),
			CoCreditMode: discography.ModeFuzzy,
			MaxWorks:     svc.MaxWorks,
			PlaylistSize: 50,
		},
		Cache: CacheConfig{
			CreditsTTL:         svc.SuccessTTL,
			CreditsNegativeTTL: svc.NegativeTTL,
			DiscographyTTL:     disco.TTL,
		},
		Backup: BackupConfig{
			Policy: backup.Policy{Keep: 7, MaxAge: 30 * 24 * time.Hour},
		},
	}
}

// LoadDotEnv loads KEY=value files into the environment. Variables that
// are already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"LN_DB_PATH":               &c.Database.Path,
		"LN_LOG_LEVEL":             &c.Logging.Level,
		"LN_LOG_FORMAT":            &c.Logging.Format,
		"LN_LOG_FILE":              &c.Logging.File,
		"LN_MUSICBRAINZ_URL":       &c.MusicBrainz.BaseURL,
		"LN_WIKIPEDIA_LANG":        &c.Wikipedia.Language,
		"LN_WIKIPEDIA_ENDPOINT":    &c.Wikipedia.Endpoint,
		"LN_LISTENBRAINZ_URL":      &c.ListenBrainz.BaseURL,
		"LN_LISTENBRAINZ_TOKEN":    &c.ListenBrainz.Token,
		"LN_SPOTIFY_CLIENT_ID":     &c.Spotify.ClientID,
		"LN_SPOTIFY_CLIENT_SECRET": &c.Spotify.ClientSecret,
		"LN_SPOTIFY_URL":           &c.Spotify.BaseURL,
		"LN_SPOTIFY_TOKEN_FILE":    &c.Spotify.TokenFile,
		"LN_BACKUP_DIR":            &c.Backup.Dir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("LN_CO_CREDIT_MODE"); v != "" {
		c.Matching.CoCreditMode = discography.MatchMode(strings.ToLower(v))
	}

	ints := map[string]*int{
		"LN_MATCHER_CONCURRENCY": &c.Matching.Catalogue.MaxConcurrency,
		"LN_MAX_RECORDINGS":      &c.Matching.Discography.MaxRecordings,
		"LN_PLAYLIST_SIZE":       &c.Matching.PlaylistSize,
		"LN_BACKUP_KEEP":         &c.Backup.Policy.Keep,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	switch c.Matching.CoCreditMode {
	case discography.ModeFuzzy, discography.ModeStrict:
	default:
		return fmt.Errorf("invalid co-credit mode: %q", c.Matching.CoCreditMode)
	}
	if t := c.Matching.Track.Threshold; t < 0 || t > 1 {
		return fmt.Errorf("track threshold must be within [0, 1], got %v", t)
	}
	if c.Matching.PlaylistSize < 1 {
		return fmt.Errorf("invalid playlist size: %d", c.Matching.PlaylistSize)
	}
	if c.Cache.CreditsTTL < 0 || c.Cache.CreditsNegativeTTL < 0 || c.Cache.DiscographyTTL < 0 {
		return fmt.Errorf("cache lifetimes must not be negative")
	}
	if c.Backup.Policy.Keep < 0 || c.Backup.Policy.MaxAge < 0 {
		return fmt.Errorf("backup keep and max age must not be negative")
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(filepath.Dir(c.Database.Path), "backups")
	}
	for i := range c.Webhooks {
		if err := c.Webhooks[i].Validate(); err != nil {
			return err
		}
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return fmt.Errorf("spotify client id and secret must be set together")
	}
	c.MusicBrainz.BaseURL = strings.TrimRight(c.MusicBrainz.BaseURL, "/")
	c.ListenBrainz.BaseURL = strings.TrimRight(c.ListenBrainz.BaseURL, "/")
	return nil
}

// CreditsService returns the credits service settings.
func (c *Config) CreditsService() credits.ServiceConfig {
	return credits.ServiceConfig{
		SuccessTTL:  c.Cache.CreditsTTL,
		NegativeTTL: c.Cache.CreditsNegativeTTL,
		MaxWorks:    c.Matching.MaxWorks,
		Track:       c.Matching.Track,
		Parser: credits.ParserConfig{
			DenyRoles: c.Matching.DenyRoles,
			Keywords:  c.Matching.RoleKeywords,
		},
	}
}

// Discography returns the discography engine settings.
func (c *Config) Discography() discography.Config {
	d := c.Matching.Discography
	d.TTL = c.Cache.DiscographyTTL
	return d
}
