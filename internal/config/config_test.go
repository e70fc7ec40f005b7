package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"slack": {"token": "xoxb-abc"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.Token != "xoxb-abc" {
		t.Errorf("token = %q", cfg.Slack.Token)
	}
	if cfg.General.LogLevel != "info" {
		t.Errorf("logLevel = %q, want default info", cfg.General.LogLevel)
	}
	if !cfg.Plugins.Giphy.Enabled || !cfg.Plugins.Standup.Enabled {
		t.Error("plugins not enabled by default")
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics enabled by default")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("WM_TEST_TOKEN", "xoxb-from-env")
	path := writeConfig(t, `{"slack": {"token": "${WM_TEST_TOKEN}"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.Token != "xoxb-from-env" {
		t.Errorf("token = %q, want xoxb-from-env", cfg.Slack.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `{"slack": {"token": "t", "reconnectWaitSeconds": -1}}`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "reconnectWaitSeconds") {
		t.Errorf("err = %v, want reconnectWaitSeconds validation failure", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("WM_SET", "value")
	os.Unsetenv("WM_UNSET")

	tests := []struct {
		in, want string
	}{
		{"${WM_SET}", "value"},
		{"${WM_SET:-fallback}", "value"},
		{"${WM_UNSET:-fallback}", "fallback"},
		// Unset without a default is left intact so validation can flag it.
		{"${WM_UNSET}", "${WM_UNSET}"},
		{"prefix-${WM_SET}-suffix", "prefix-value-suffix"},
		{"no vars here", "no vars here"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Slack.Token = ""
	if err := Validate(cfg); err == nil {
		t.Error("empty token accepted")
	}

	cfg = Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ""
	if err := Validate(cfg); err == nil {
		t.Error("enabled metrics without addr accepted")
	}

	cfg = Defaults()
	cfg.Slack.PingIntervalSecs = -4
	if err := Validate(cfg); err == nil {
		t.Error("negative ping interval accepted")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := Defaults()
	cfg.Slack.Token = "xoxb-roundtrip"
	cfg.Slack.ReconnectWaitSecs = 60
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Slack.Token != "xoxb-roundtrip" || got.Slack.ReconnectWaitSecs != 60 {
		t.Errorf("roundtrip = %+v", got.Slack)
	}
}
