package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jxucoder/llmrelay/internal/config"
)

// configKey describes a single configuration value.
type configKey struct {
	Key     string
	Desc    string
	Default string
	Secret  bool
	// Check validates a value before it is written. nil accepts anything.
	Check func(string) error
}

// allConfigKeys lists every configurable value in display order.
var allConfigKeys = []configKey{
	{config.EnvModelName, "Model sent on every call", config.DefaultModelName, false, nil},
	{config.EnvTemperature, "Sampling temperature (0-2)", "0", false, checkTemperature},
	{config.EnvProvider, "Provider (openai, anthropic)", config.DefaultProvider, false, checkOneOf("openai", "anthropic")},
	{config.EnvOpenAIAPIKey, "OpenAI API key", "", true, nil},
	{config.EnvOpenAIBaseURL, "OpenAI endpoint override", "", false, nil},
	{config.EnvAnthropicAPIKey, "Anthropic API key", "", true, nil},
	{config.EnvAnthropicBaseURL, "Anthropic endpoint override", "", false, nil},
	{config.EnvHost, "Listen host", "", false, nil},
	{config.EnvPort, "Listen port", strconv.Itoa(config.DefaultPort), false, checkPort},
	{config.EnvTimeout, "Provider call timeout", config.DefaultTimeout.String(), false, checkDuration},
	{config.EnvMaxTokens, "Max generated tokens (0 = provider default)", "0", false, checkNonNegativeInt},
	{config.EnvMaxPromptChars, "Max prompt characters", strconv.Itoa(config.DefaultMaxPromptChars), false, checkNonNegativeInt},
	{config.EnvRateLimit, "Inbound requests per second (0 = off)", "0", false, checkNonNegativeFloat},
	{config.EnvRateBurst, "Rate limiter burst", "", false, checkNonNegativeInt},
	{config.EnvAuditDB, "SQLite audit log path (empty = off)", "", false, nil},
	{config.EnvLogLevel, "Log level", "info", false, checkOneOf("debug", "info", "warn", "error")},
	{config.EnvLogFormat, "Log format (json, text)", "json", false, checkOneOf("json", "text")},
}

// ---------------------------------------------------------------------------
// Cobra commands
// ---------------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage llmrelay configuration",
	Long: `Manage llmrelay configuration.

Configuration is read from the env file (LLMRELAY_ENV_FILE, default .env)
and can be overridden by environment variables.

  llmrelay config set KEY VALUE      Set a single config value
  llmrelay config show               Show current configuration
  llmrelay config path               Print config file path`,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value in the env file. Example:
  llmrelay config set MODEL_NAME gpt-4o`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
	},
}

var showYAML bool

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd.OutOrStdout(), showYAML)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), configFilePath())
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showYAML, "yaml", false, "Print as YAML")

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// ---------------------------------------------------------------------------
// Config file helpers
// ---------------------------------------------------------------------------

// configFilePath returns the env file Load reads.
func configFilePath() string {
	return envOr(config.EnvEnvFile, config.DefaultEnvFile)
}

// loadConfigFile reads key=value pairs from the config file.
func loadConfigFile() (map[string]string, error) {
	values, err := godotenv.Read(configFilePath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	return values, err
}

// saveConfigFile writes key=value pairs to the config file.
func saveConfigFile(values map[string]string) error {
	path := configFilePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	for k, v := range values {
		if v == "" {
			delete(values, k)
		}
	}
	body, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	var b strings.Builder
	b.WriteString("# llmrelay configuration\n")
	b.WriteString("# Managed by: llmrelay config\n")
	b.WriteString("# Environment variables override these values.\n\n")
	b.WriteString(body)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// maskSecret masks a secret string, showing only the first 4 and last 4 characters.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func findKey(name string) (configKey, bool) {
	for _, ck := range allConfigKeys {
		if ck.Key == name {
			return ck, true
		}
	}
	return configKey{}, false
}

// ---------------------------------------------------------------------------
// config set / config show
// ---------------------------------------------------------------------------

// runConfigSet sets a single key=value in the config file.
func runConfigSet(out io.Writer, key, value string) error {
	ck, known := findKey(key)
	if known && ck.Check != nil && value != "" {
		if err := ck.Check(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}

	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fileValues[key] = value

	if err := saveConfigFile(fileValues); err != nil {
		return err
	}

	if ck.Secret {
		fmt.Fprintf(out, "Set %s = %s\n", key, maskSecret(value))
	} else {
		fmt.Fprintf(out, "Set %s = %s\n", key, value)
	}
	if !known {
		fmt.Fprintf(out, "Note: %s is not an llmrelay setting; it is stored but not read.\n", key)
	}
	return nil
}

// configEntry is one row of "config show".
type configEntry struct {
	Key    string `yaml:"key"`
	Value  string `yaml:"value"`
	Source string `yaml:"source"`
}

// configEntries resolves every known key: environment > config file > default.
func configEntries(fileValues map[string]string) []configEntry {
	entries := make([]configEntry, 0, len(allConfigKeys))
	for _, ck := range allConfigKeys {
		e := configEntry{Key: ck.Key, Source: "default", Value: ck.Default}
		if v := os.Getenv(ck.Key); v != "" {
			e.Value, e.Source = v, "env"
		} else if v := fileValues[ck.Key]; v != "" {
			e.Value, e.Source = v, "config file"
		}
		if ck.Secret && e.Value != "" {
			e.Value = maskSecret(e.Value)
		}
		entries = append(entries, e)
	}
	return entries
}

// runConfigShow displays the current effective configuration.
func runConfigShow(out io.Writer, asYAML bool) error {
	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	entries := configEntries(fileValues)

	if asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"file": configFilePath(), "settings": entries}); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "Config file: %s\n\n", configFilePath())
	for _, e := range entries {
		display := e.Value
		if display == "" {
			display = "(not set)"
		}
		source := ""
		if e.Source != "default" {
			source = " (from " + e.Source + ")"
		}
		fmt.Fprintf(out, "  %-27s %s%s\n", e.Key, display, source)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value checks
// ---------------------------------------------------------------------------

func checkTemperature(v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", v)
	}
	if !(f >= config.MinTemperature && f <= config.MaxTemperature) {
		return fmt.Errorf("must be between %g and %g", config.MinTemperature, config.MaxTemperature)
	}
	return nil
}

func checkPort(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%q is not a port", v)
	}
	return nil
}

func checkDuration(v string) error {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("%q is not a positive duration (e.g. 30s)", v)
	}
	return nil
}

func checkNonNegativeInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("%q is not a non-negative integer", v)
	}
	return nil
}

func checkNonNegativeFloat(v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f >= 0) || math.IsInf(f, 1) {
		return fmt.Errorf("%q is not a non-negative number", v)
	}
	return nil
}

func checkOneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
