package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/jxucoder/llmrelay/internal/config"
)

// useTempConfigFile points the env file at a fresh temp path and clears the
// variables the tests read.
func useTempConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.env")
	t.Setenv(config.EnvEnvFile, path)
	for _, ck := range allConfigKeys {
		t.Setenv(ck.Key, "")
		os.Unsetenv(ck.Key)
	}
	return path
}

// ---------------------------------------------------------------------------
// maskSecret
// ---------------------------------------------------------------------------

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"exactly12chr", "************"},
		{"sk-proj-abcdef123456", "sk-p************3456"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// config set
// ---------------------------------------------------------------------------

func TestConfigSet_WritesFileReadByLoad(t *testing.T) {
	path := useTempConfigFile(t)

	var out bytes.Buffer
	if err := runConfigSet(&out, config.EnvModelName, "gpt-4o"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if err := runConfigSet(&out, config.EnvOpenAIAPIKey, "sk-proj-abcdef123456"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if strings.Contains(out.String(), "sk-proj-abcdef123456") {
		t.Errorf("output shows the secret: %q", out.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if !strings.HasPrefix(string(data), "# llmrelay configuration") {
		t.Errorf("config file missing header:\n%s", data)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ModelName != "gpt-4o" || cfg.OpenAIAPIKey != "sk-proj-abcdef123456" {
		t.Errorf("loaded config = %q / %q", cfg.ModelName, cfg.OpenAIAPIKey)
	}
}

func TestConfigSet_PreservesOtherKeys(t *testing.T) {
	useTempConfigFile(t)

	var out bytes.Buffer
	for _, kv := range [][2]string{
		{config.EnvModelName, "gpt-4o"},
		{config.EnvTemperature, "0.5"},
		{config.EnvModelName, "gpt-4o-mini"},
	} {
		if err := runConfigSet(&out, kv[0], kv[1]); err != nil {
			t.Fatalf("set %s: %v", kv[0], err)
		}
	}

	values, err := loadConfigFile()
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if values[config.EnvModelName] != "gpt-4o-mini" || values[config.EnvTemperature] != "0.5" {
		t.Errorf("values = %v", values)
	}
}

func TestConfigSet_RejectsInvalidValues(t *testing.T) {
	useTempConfigFile(t)

	tests := []struct{ key, value string }{
		{config.EnvTemperature, "warm"},
		{config.EnvTemperature, "2.5"},
		{config.EnvTemperature, "NaN"},
		{config.EnvRateLimit, "NaN"},
		{config.EnvPort, "0"},
		{config.EnvTimeout, "30"},
		{config.EnvProvider, "cohere"},
		{config.EnvLogFormat, "xml"},
	}
	for _, tt := range tests {
		if err := runConfigSet(&bytes.Buffer{}, tt.key, tt.value); err == nil {
			t.Errorf("set %s=%q should fail", tt.key, tt.value)
		}
	}

	values, err := loadConfigFile()
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("rejected values were written: %v", values)
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	useTempConfigFile(t)

	var out bytes.Buffer
	if err := runConfigSet(&out, "SOMETHING_ELSE", "x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !strings.Contains(out.String(), "not an llmrelay setting") {
		t.Errorf("output = %q; want a note about the unknown key", out.String())
	}
}

// ---------------------------------------------------------------------------
// config show
// ---------------------------------------------------------------------------

func TestConfigEntries_Precedence(t *testing.T) {
	useTempConfigFile(t)
	t.Setenv(config.EnvModelName, "from-env")

	entries := configEntries(map[string]string{
		config.EnvModelName:    "from-file",
		config.EnvTemperature:  "0.7",
		config.EnvOpenAIAPIKey: "sk-proj-abcdef123456",
	})

	byKey := map[string]configEntry{}
	for _, e := range entries {
		byKey[e.Key] = e
	}
	checks := []struct {
		key, value, source string
	}{
		{config.EnvModelName, "from-env", "env"},
		{config.EnvTemperature, "0.7", "config file"},
		{config.EnvOpenAIAPIKey, "sk-p************3456", "config file"},
		{config.EnvPort, "8000", "default"},
		{config.EnvAuditDB, "", "default"},
	}
	for _, c := range checks {
		got := byKey[c.key]
		if got.Value != c.value || got.Source != c.source {
			t.Errorf("%s = %q (%s); want %q (%s)", c.key, got.Value, got.Source, c.value, c.source)
		}
	}
}

func TestConfigShow_YAML(t *testing.T) {
	useTempConfigFile(t)
	if err := runConfigSet(&bytes.Buffer{}, config.EnvAnthropicAPIKey, "sk-ant-abcdefghijkl"); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out bytes.Buffer
	if err := runConfigShow(&out, true); err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out.String(), "sk-ant-abcdefghijkl") {
		t.Errorf("yaml output shows the secret:\n%s", out.String())
	}

	var doc struct {
		File     string        `yaml:"file"`
		Settings []configEntry `yaml:"settings"`
	}
	if err := yaml.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out.String())
	}
	if len(doc.Settings) != len(allConfigKeys) {
		t.Errorf("settings = %d; want %d", len(doc.Settings), len(allConfigKeys))
	}
	if doc.Settings[0].Key != config.EnvModelName || doc.Settings[0].Value != "gpt-4o-mini" {
		t.Errorf("first setting = %+v", doc.Settings[0])
	}
}

func TestConfigShow_Text(t *testing.T) {
	useTempConfigFile(t)

	var out bytes.Buffer
	if err := runConfigShow(&out, false); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "(not set)") || !strings.Contains(out.String(), "gpt-4o-mini") {
		t.Errorf("output:\n%s", out.String())
	}
}
