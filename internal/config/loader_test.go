package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `panopto_site_address: https://demo.hosted.panopto.com
panopto_oauth_credentials:
  username: connector-svc
  password: s3cret
  client_id: 7a1b9a02-7c58-4a10-b1a7-example
  client_secret: client-s3cret
  grant_type: password
target_address: https://api.coveo.com/push/v1/organizations/example-org
target_credentials:
  username: example-source-id
  password: xx-api-key
target_implementation: coveo_implementation
field_mapping:
  Id: permanentid
  Info:
    Title: title
    Url: clickableuri
    Language: language
  Metadata:
    Summary: summary_text
    MachineTranscription: machine_transcription
    HumanTranscription: human_transcription
  VideoContent:
    Duration: duration
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.PanoptoSiteAddress != "https://demo.hosted.panopto.com" {
		t.Errorf("PanoptoSiteAddress = %q", cfg.PanoptoSiteAddress)
	}
	if cfg.TargetImplementation != "coveo_implementation" {
		t.Errorf("TargetImplementation = %q", cfg.TargetImplementation)
	}
	if cfg.PanoptoOAuthCredentials.ClientSecret != "client-s3cret" {
		t.Errorf("ClientSecret = %q", cfg.PanoptoOAuthCredentials.ClientSecret)
	}
	if cfg.TargetCredentials.Username != "example-source-id" {
		t.Errorf("target username = %q", cfg.TargetCredentials.Username)
	}

	pairs := cfg.FieldMapping.Flatten()
	if len(pairs) != 8 {
		t.Fatalf("expected 8 field mapping pairs, got %d: %v", len(pairs), pairs)
	}
	want := map[string]string{
		"Id":               "permanentid",
		"Info.Title":       "title",
		"Metadata.Summary": "summary_text",
	}
	for _, pair := range pairs {
		if dest, ok := want[pair.Source]; ok && pair.Destination != dest {
			t.Errorf("mapping %q = %q, want %q", pair.Source, pair.Destination, dest)
		}
	}

	// Sections left out fall back to defaults.
	if cfg.Polling.Frequency != 10*time.Minute {
		t.Errorf("Polling.Frequency = %v, want 10m", cfg.Polling.Frequency)
	}
	if cfg.Polling.PageLimit != 1000 {
		t.Errorf("Polling.PageLimit = %d, want 1000", cfg.Polling.PageLimit)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.State.Backend != StateBackendFile {
		t.Errorf("State.Backend = %q, want file", cfg.State.Backend)
	}
}

func TestParse_OptionalSections(t *testing.T) {
	content := sampleConfig + `polling:
  frequency: 30m
  retry_minimum: 1m
  item_throttle: 0s
  page_limit: 50
logging:
  level: debug
  format: text
server:
  port: 9090
state:
  backend: postgres
  dsn: postgres://connector@localhost/connector?sslmode=disable
`

	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Polling.Frequency != 30*time.Minute {
		t.Errorf("Frequency = %v", cfg.Polling.Frequency)
	}
	if cfg.Polling.ItemThrottle != 0 {
		t.Errorf("ItemThrottle = %v", cfg.Polling.ItemThrottle)
	}
	if cfg.Polling.PageLimit != 50 {
		t.Errorf("PageLimit = %d", cfg.Polling.PageLimit)
	}
	if cfg.Logging.Level != slog.LevelDebug || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q", cfg.Server.Port)
	}
	if cfg.State.Backend != StateBackendPostgres {
		t.Errorf("State.Backend = %q", cfg.State.Backend)
	}
}

func TestParse_EmptyFieldMapping(t *testing.T) {
	content := sampleConfig[:strings.Index(sampleConfig, "field_mapping:")] + "field_mapping:\n"

	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.FieldMapping.Len() != 0 {
		t.Errorf("expected empty mapping, got %d pairs", cfg.FieldMapping.Len())
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantKey string
	}{
		{
			name: "missing target_address",
			mutate: func(s string) string {
				return strings.Replace(s, "target_address: https://api.coveo.com/push/v1/organizations/example-org\n", "", 1)
			},
			wantKey: "target_address",
		},
		{
			name: "unknown top-level key",
			mutate: func(s string) string {
				return s + "panopto_password: oops\n"
			},
			wantKey: "panopto_password",
		},
		{
			name: "unknown credentials key",
			mutate: func(s string) string {
				return strings.Replace(s, "  grant_type: password\n", "  grant_type: password\n  tenant: contoso\n", 1)
			},
			wantKey: "panopto_oauth_credentials.tenant",
		},
		{
			name: "mapping where string expected",
			mutate: func(s string) string {
				return strings.Replace(s, "  client_id: 7a1b9a02-7c58-4a10-b1a7-example\n", "  client_id:\n    nested: oops\n", 1)
			},
			wantKey: "panopto_oauth_credentials.client_id",
		},
		{
			name: "bad site URL",
			mutate: func(s string) string {
				return strings.Replace(s, "panopto_site_address: https://demo.hosted.panopto.com", "panopto_site_address: demo.hosted.panopto.com", 1)
			},
			wantKey: "panopto_site_address",
		},
		{
			name: "unsupported implementation",
			mutate: func(s string) string {
				return strings.Replace(s, "target_implementation: coveo_implementation", "target_implementation: attivio_implementation", 1)
			},
			wantKey: "target_implementation",
		},
		{
			name: "sequence in field mapping",
			mutate: func(s string) string {
				return strings.Replace(s, "  Id: permanentid\n", "  Id: [permanentid]\n", 1)
			},
			wantKey: "field_mapping.Id",
		},
		{
			name: "negative polling frequency",
			mutate: func(s string) string {
				return s + "polling:\n  frequency: -5m\n"
			},
			wantKey: "polling.frequency",
		},
		{
			name: "postgres backend without dsn",
			mutate: func(s string) string {
				return s + "state:\n  backend: postgres\n"
			},
			wantKey: "state.dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(sampleConfig)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if vErr.Key != tt.wantKey {
				t.Errorf("error key = %q, want %q", vErr.Key, tt.wantKey)
			}
		})
	}
}

func TestParse_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "panopto_site_address: [unclosed\n"},
		{"empty document", ""},
		{"scalar document", "just a string\n"},
		{
			"duplicate key",
			strings.Replace(sampleConfig, "target_implementation: coveo_implementation",
				"target_implementation: coveo_implementation\ntarget_implementation: debug_implementation", 1),
		},
		{
			"duplicate nested key",
			strings.Replace(sampleConfig, "  username: connector-svc\n",
				"  username: connector-svc\n  username: other\n", 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var pErr *ParseError
			if !errors.As(err, &pErr) {
				t.Fatalf("expected ParseError, got %T: %v", err, err)
			}
		})
	}
}

func TestParse_DuplicateKeyReportsLine(t *testing.T) {
	content := "target_implementation: coveo_implementation\ntarget_implementation: debug_implementation\n"

	_, err := Parse([]byte(content))
	var pErr *ParseError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if pErr.Line != 2 {
		t.Errorf("error line = %d, want 2", pErr.Line)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("PANOPTO_CLIENT_SECRET", "env-client-secret")
	t.Setenv("TARGET_PASSWORD", "env-api-key")

	content := strings.Replace(sampleConfig, "  client_secret: client-s3cret\n", "  client_secret: \"\"\n", 1)

	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.PanoptoOAuthCredentials.ClientSecret != "env-client-secret" {
		t.Errorf("ClientSecret = %q, want env override", cfg.PanoptoOAuthCredentials.ClientSecret)
	}
	if cfg.TargetCredentials.Password != "env-api-key" {
		t.Errorf("target password = %q, want env override", cfg.TargetCredentials.Password)
	}
}

func TestParse_EmptyClientSecretRejected(t *testing.T) {
	content := strings.Replace(sampleConfig, "  client_secret: client-s3cret\n", "  client_secret: \"\"\n", 1)

	_, err := Parse([]byte(content))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if vErr.Key != "panopto_oauth_credentials.client_secret" {
		t.Errorf("error key = %q", vErr.Key)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))

	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %T: %v", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestLoad_AttachesPathToParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("a: [unclosed\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var pErr *ParseError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if pErr.Path != path {
		t.Errorf("error path = %q, want %q", pErr.Path, path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TargetImplementation != "coveo_implementation" {
		t.Errorf("TargetImplementation = %q", cfg.TargetImplementation)
	}
}

func TestSaveAndReload(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "roundtrip.yml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Save() error: %v", err)
	}

	if reloaded.PanoptoSiteAddress != cfg.PanoptoSiteAddress {
		t.Errorf("PanoptoSiteAddress = %q, want %q", reloaded.PanoptoSiteAddress, cfg.PanoptoSiteAddress)
	}
	if reloaded.PanoptoOAuthCredentials != cfg.PanoptoOAuthCredentials {
		t.Errorf("OAuth credentials changed across reload: %+v", reloaded.PanoptoOAuthCredentials)
	}
	if reloaded.TargetCredentials != cfg.TargetCredentials {
		t.Errorf("target credentials changed across reload")
	}
	if !reloaded.FieldMapping.Equal(cfg.FieldMapping) {
		t.Errorf("field mapping changed across reload:\n got %v\nwant %v", reloaded.FieldMapping, cfg.FieldMapping)
	}
	if reloaded.Polling != cfg.Polling {
		t.Errorf("polling changed across reload: %+v", reloaded.Polling)
	}
	if reloaded.Logging != cfg.Logging {
		t.Errorf("logging changed across reload: %+v", reloaded.Logging)
	}
	if reloaded.State != cfg.State {
		t.Errorf("state changed across reload: %+v", reloaded.State)
	}
}

func TestConfigString_RedactsSecrets(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	s := cfg.String()
	for _, secret := range []string{"s3cret", "client-s3cret", "xx-api-key"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks secret %q: %s", secret, s)
		}
	}
}
