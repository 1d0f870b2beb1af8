package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) string { return "" }

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Schedule.IngestInterval != 10*time.Minute {
		t.Errorf("ingest interval = %v, want 10m", cfg.Schedule.IngestInterval)
	}
	if cfg.Render.Window != time.Hour {
		t.Errorf("render window = %v, want 1h", cfg.Render.Window)
	}
	if cfg.Region.MinLat != 27 || cfg.Region.MaxLat != 41 || cfg.Region.MinLon != -81 || cfg.Region.MaxLon != -74 {
		t.Errorf("region = %+v, want east coast bounds", cfg.Region)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
opensky:
  url: http://localhost:9999/api/states/all
  timeout: 5s
region:
  min_lat: 45
  max_lat: 48
  min_lon: 5
  max_lon: 11
schedule:
  ingest_interval: 2m
  render_interval: 30s
render:
  window: 30m
  output_path: /tmp/map.html
  zoom: 8
`)
	cfg, err := LoadWithEnv(path, noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.OpenSky.Timeout != 5*time.Second {
		t.Errorf("opensky timeout = %v, want 5s", cfg.OpenSky.Timeout)
	}
	if cfg.Region.MinLat != 45 || cfg.Region.MaxLon != 11 {
		t.Errorf("region = %+v", cfg.Region)
	}
	if cfg.Schedule.RenderInterval != 30*time.Second {
		t.Errorf("render interval = %v, want 30s", cfg.Schedule.RenderInterval)
	}
	if cfg.Render.Zoom != 8 || cfg.Render.OutputPath != "/tmp/map.html" {
		t.Errorf("render = %+v", cfg.Render)
	}
	// untouched sections keep their defaults
	if cfg.Database.Timeout != 10*time.Second {
		t.Errorf("database timeout = %v, want default 10s", cfg.Database.Timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":   "postgres://u:p@db:5432/flights",
		"PORT":           "9090",
		"OPERATOR_TOKEN": "s3cret",
		"LOG_LEVEL":      "debug",
	}
	cfg, err := LoadWithEnv("", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Database.URL != env["DATABASE_URL"] {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.OperatorToken != "s3cret" {
		t.Errorf("operator token = %q", cfg.Server.OperatorToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}

	if _, err := LoadWithEnv("", func(k string) string {
		if k == "PORT" {
			return "eighty"
		}
		return ""
	}); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"inverted region": `
region:
  min_lat: 41
  max_lat: 27
  min_lon: -81
  max_lon: -74
`,
		"bad url": `
opensky:
  url: not a url
`,
		"zero interval": `
schedule:
  ingest_interval: 0s
`,
		"bad yaml": "server: [[[",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadWithEnv(writeConfig(t, body), noEnv); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yml"), noEnv); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
