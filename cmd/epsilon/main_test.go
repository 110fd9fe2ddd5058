package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EpsilonChat/internal/config"
	"EpsilonChat/internal/telemetry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUsageCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ledger, err := telemetry.OpenLedger(path)
	require.NoError(t, err)
	require.NoError(t, ledger.Record(context.Background(), telemetry.UsageRecord{
		At: time.Now(), Model: "m", Success: true, StatusCode: 200,
		Duration: 250 * time.Millisecond, PromptTokens: 40, CompletionTokens: 9,
	}))
	require.NoError(t, ledger.Close())

	out, err := execute(t, "usage", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--usage-db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Calls:             1")
	assert.Contains(t, out, "Prompt tokens:     40")
	assert.Contains(t, out, "Average latency:   250ms")
}

func TestUsageCommand_RequiresLedger(t *testing.T) {
	_, err := execute(t, "usage", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "no usage ledger configured")
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", filepath.Join(t.TempDir(), "none.yaml"),
		"--model", "openai/gpt-4o-mini",
		"--theme", "dark",
		"--timeout", "30s",
	}))

	var opts options
	opts.configPath, _ = cmd.Flags().GetString("config")
	opts.model, _ = cmd.Flags().GetString("model")
	opts.theme, _ = cmd.Flags().GetString("theme")
	opts.timeout, _ = cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model)
	assert.Equal(t, config.ThemeDark, cfg.Theme)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, config.DefaultEndpoint, cfg.Endpoint)
}

func TestLoadConfig_RejectsBadTheme(t *testing.T) {
	_, err := execute(t, "usage", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--theme", "neon")
	assert.ErrorContains(t, err, "invalid configuration")
}
