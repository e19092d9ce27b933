package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validConfig returns a Config that passes Validate, for mutation in tests.
func validConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Load — defaults
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "stocktrail" {
		t.Errorf("Database.Name = %s, want stocktrail", cfg.Database.Name)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("Database.SSLMode = %s, want require", cfg.Database.SSLMode)
	}
	if !cfg.Security.RateLimiting.Enabled {
		t.Error("rate limiting should be enabled by default")
	}
	if cfg.Telemetry.Metrics.PrometheusPort != 9090 {
		t.Errorf("PrometheusPort = %d, want 9090", cfg.Telemetry.Metrics.PrometheusPort)
	}
	if cfg.Audit.RecentActivityLimit != 10 {
		t.Errorf("RecentActivityLimit = %d, want 10", cfg.Audit.RecentActivityLimit)
	}
	if cfg.Audit.WatchTableLabels {
		t.Error("label watching should be disabled by default")
	}
}

// ---------------------------------------------------------------------------
// Load — config file and environment layering
// ---------------------------------------------------------------------------

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
database:
  host: db.internal
audit:
  recent_activity_limit: 25
  table_labels_file: /etc/stocktrail/labels.yaml
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %s, want db.internal", cfg.Database.Host)
	}
	if cfg.Audit.RecentActivityLimit != 25 {
		t.Errorf("RecentActivityLimit = %d, want 25", cfg.Audit.RecentActivityLimit)
	}
	if cfg.Audit.TableLabelsFile != "/etc/stocktrail/labels.yaml" {
		t.Errorf("TableLabelsFile = %s", cfg.Audit.TableLabelsFile)
	}
	// Untouched keys keep their defaults.
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("STK_DATABASE_HOST", "env-db")
	t.Setenv("STK_AUDIT_RECENT_ACTIVITY_LIMIT", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "env-db" {
		t.Errorf("Database.Host = %s, want env-db", cfg.Database.Host)
	}
	if cfg.Audit.RecentActivityLimit != 7 {
		t.Errorf("RecentActivityLimit = %d, want 7", cfg.Audit.RecentActivityLimit)
	}
}

func TestLoad_PasswordEnvExpansion(t *testing.T) {
	t.Setenv("DB_SECRET", "s3cret")
	t.Setenv("STK_DATABASE_PASSWORD", "${DB_SECRET}")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("Database.Password = %q, want the expanded secret", cfg.Database.Password)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for an explicitly named missing file, got nil")
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"missing db name", func(c *Config) { c.Database.Name = "" }},
		{"missing db user", func(c *Config) { c.Database.User = "" }},
		{"tls without cert", func(c *Config) { c.Security.TLS.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"non-positive recent limit", func(c *Config) { c.Audit.RecentActivityLimit = 0 }},
		{"unknown shipper type", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "kafka"}}
		}},
		{"webhook shipper without url", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "webhook", Webhook: &AuditWebhookConfig{}}}
		}},
		{"file shipper without path", func(c *Config) {
			c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "file", File: &AuditFileConfig{}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidate_DisabledShipperIsNotChecked(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Shippers = []AuditShipperConfig{{Enabled: false, Type: "kafka"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error for disabled shipper: %v", err)
	}
}

func TestValidate_EnabledShippersPass(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Shippers = []AuditShipperConfig{
		{Enabled: true, Type: "webhook", Webhook: &AuditWebhookConfig{URL: "https://siem.example.com/ingest"}},
		{Enabled: true, Type: "file", File: &AuditFileConfig{Path: "/var/log/stocktrail/audit.ndjson"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "stocktrail",
		Password: "pw", Name: "stocktrail", SSLMode: "disable",
	}
	want := "host=localhost port=5432 user=stocktrail password=pw dbname=stocktrail sslmode=disable"
	if got := db.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetAddress(t *testing.T) {
	srv := ServerConfig{Host: "0.0.0.0", Port: 8080}
	if got := srv.GetAddress(); got != "0.0.0.0:8080" {
		t.Errorf("GetAddress() = %q, want 0.0.0.0:8080", got)
	}
}
