package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/discography"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "linernotes.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Matching.Discography.MaxRecordings != 650 || cfg.Matching.Discography.MaxWorks != 120 {
		t.Errorf("discography caps = %+v", cfg.Matching.Discography)
	}
	if cfg.Matching.Catalogue.MaxConcurrency != 6 {
		t.Errorf("matcher concurrency = %d", cfg.Matching.Catalogue.MaxConcurrency)
	}
	if cfg.Cache.CreditsTTL != 30*24*time.Hour || cfg.Cache.CreditsNegativeTTL != 24*time.Hour {
		t.Errorf("credits ttls = %v / %v", cfg.Cache.CreditsTTL, cfg.Cache.CreditsNegativeTTL)
	}
	if cfg.Matching.Track.Threshold != 0.78 {
		t.Errorf("track threshold = %v", cfg.Matching.Track.Threshold)
	}
	if cfg.Spotify.Enabled() {
		t.Error("spotify enabled without credentials")
	}
	if cfg.Backup.Dir != "backups" || cfg.Backup.Policy.Keep != 7 {
		t.Errorf("backup = %+v", cfg.Backup)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "linernotes.yaml", `
database:
  path: /var/lib/linernotes/ln.db
logging:
  level: DEBUG
  format: json
matching:
  co_credit_mode: strict
  deny_roles: ["artwork", "photography"]
  discography:
    max_recordings: 300
  catalogue:
    pause: 5s
cache:
  discography_ttl: 48h
backup:
  keep: 3
  max_age: 72h
webhooks:
  - name: chat
    url: https://chat.example.com/hooks/1
    type: slack
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/var/lib/linernotes/ln.db" || cfg.Logging.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Matching.CoCreditMode != discography.ModeStrict {
		t.Errorf("co-credit mode = %q", cfg.Matching.CoCreditMode)
	}
	d := cfg.Discography()
	if d.MaxRecordings != 300 || d.MaxWorks != 120 || d.TTL != 48*time.Hour {
		t.Errorf("discography = %+v", d)
	}
	if cfg.Matching.Catalogue.Pause != 5*time.Second || cfg.Matching.Catalogue.BatchSize != 24 {
		t.Errorf("catalogue = %+v", cfg.Matching.Catalogue)
	}
	svc := cfg.CreditsService()
	if len(svc.Parser.DenyRoles) != 2 || svc.SuccessTTL != 30*24*time.Hour {
		t.Errorf("credits service = %+v", svc)
	}
	if cfg.Backup.Dir != "/var/lib/linernotes/backups" || cfg.Backup.Policy.Keep != 3 || cfg.Backup.Policy.MaxAge != 72*time.Hour {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Type != "slack" || len(cfg.Webhooks[0].Events) != 3 {
		t.Errorf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "linernotes.yaml", "database:\n  path: from-file.db\n")
	t.Setenv("LN_DB_PATH", "from-env.db")
	t.Setenv("LN_SPOTIFY_CLIENT_ID", "id")
	t.Setenv("LN_SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("LN_MATCHER_CONCURRENCY", "3")
	t.Setenv("LN_CO_CREDIT_MODE", "STRICT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "from-env.db" {
		t.Errorf("db path = %q, env should win", cfg.Database.Path)
	}
	if !cfg.Spotify.Enabled() || cfg.Matching.Catalogue.MaxConcurrency != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Matching.CoCreditMode != discography.ModeStrict {
		t.Errorf("co-credit mode = %q", cfg.Matching.CoCreditMode)
	}
}

func TestLoadEnvBadInt(t *testing.T) {
	t.Setenv("LN_PLAYLIST_SIZE", "fifty")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "LN_PLAYLIST_SIZE") {
		t.Errorf("err = %v, want the variable named", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"log level", "logging:\n  level: loud\n"},
		{"log format", "logging:\n  format: xml\n"},
		{"co-credit mode", "matching:\n  co_credit_mode: loose\n"},
		{"threshold", "matching:\n  track:\n    threshold: 1.5\n"},
		{"half credentials", "spotify:\n  client_id: abc\n"},
		{"empty db path", "database:\n  path: \"\"\n"},
		{"negative backup keep", "backup:\n  keep: -1\n"},
		{"webhook url", "webhooks:\n  - name: x\n    url: not-a-url\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "c.yaml", tt.yaml)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "LN_LISTENBRAINZ_TOKEN=from-dotenv\nLN_DB_PATH=dotenv.db\n")
	t.Setenv("LN_DB_PATH", "already-set.db")
	t.Setenv("LN_LISTENBRAINZ_TOKEN", "")
	os.Unsetenv("LN_LISTENBRAINZ_TOKEN") //nolint:errcheck

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("LN_LISTENBRAINZ_TOKEN"); got != "from-dotenv" {
		t.Errorf("token = %q", got)
	}
	if got := os.Getenv("LN_DB_PATH"); got != "already-set.db" {
		t.Errorf("db path = %q, existing env should win", got)
	}
}
