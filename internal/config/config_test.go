// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/agentsig/internal/signature"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AGENTSIG_HOME", dir)
	for _, key := range []string{
		"AGENTSIG_MODEL", "AGENTSIG_HOST_NAME", "AGENTSIG_HOST_URL", "AGENTSIG_GLYPH",
		"AGENTSIG_LOG_LEVEL", "AGENTSIG_LEDGER", "AGENTSIG_LISTEN", "AGENTSIG_TOKEN",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, signature.Default(), cfg.Codec())
	assert.True(t, cfg.Tools.GitCommit)
	assert.True(t, cfg.Tools.GitHub)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:4141", cfg.Server.Listen)
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_TOML(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), `
default_model = "kimi-k2"

[signature]
host_name = "Acme"
host_url = "https://acme.test"

[tools]
structured = ["gitlab_create_merge_request"]
gh = false

[ledger]
max_entries = 50
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "kimi-k2", cfg.DefaultModel)
	assert.Equal(t, "Acme", cfg.Signature.HostName)
	assert.Equal(t, signature.DefaultGlyph, cfg.Signature.Glyph)
	assert.Equal(t, []string{"gitlab_create_merge_request"}, cfg.Tools.Structured)
	assert.False(t, cfg.Tools.GitHub)
	assert.True(t, cfg.Tools.GitCommit, "keys absent from the file keep their defaults")
	assert.Equal(t, 50, cfg.Ledger.MaxEntries)
	assert.Equal(t, "🤖 Generated with [Acme](https://acme.test) (X)", cfg.Codec().Render("X"))
}

func TestLoad_YAML(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.yaml"), `
default_model: gpt-4o
logging:
  level: debug
  json: true
tools:
  shell: [sh, zsh]
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, []string{"sh", "zsh"}, cfg.Tools.Shell)
}

func TestLoad_JSON(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.json"), `{"server": {"listen": "0.0.0.0:9000", "token": "s3cret"}}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, "s3cret", cfg.Server.Token)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), `default_model = "from-toml"`)
	writeFile(t, filepath.Join(dir, "config.json"), `{"default_model": "from-json"}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-toml", cfg.DefaultModel)
}

func TestLoad_UnknownKeys(t *testing.T) {
	dir := t.TempDir()
	isolate(t)

	toml := filepath.Join(dir, "bad.toml")
	writeFile(t, toml, "[signature]\nhostname = \"typo\"\n")
	_, err := LoadFromPath(toml)
	assert.ErrorContains(t, err, "signature.hostname")

	yml := filepath.Join(dir, "bad.yaml")
	writeFile(t, yml, "signatur:\n  glyph: x\n")
	_, err = LoadFromPath(yml)
	assert.Error(t, err)

	js := filepath.Join(dir, "bad.json")
	writeFile(t, js, `{"nope": 1}`)
	_, err = LoadFromPath(js)
	assert.Error(t, err)
}

func TestLoad_EmptyYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "empty.yml")
	writeFile(t, path, "")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Invalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[logging]\nlevel = \"loud\"\n[server]\nlisten = \"nowhere\"\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"empty glyph", func(c *Config) { c.Signature.Glyph = " " }, "signature.glyph"},
		{"bracket in host", func(c *Config) { c.Signature.HostName = "Open]Code" }, "signature.host_name"},
		{"quote in host", func(c *Config) { c.Signature.HostName = `Open"Code` }, "signature.host_name"},
		{"backslash in host", func(c *Config) { c.Signature.HostName = `Open\Code` }, "signature.host_name"},
		{"dollar in host", func(c *Config) { c.Signature.HostName = "Open$Code" }, "signature.host_name"},
		{"backtick in host", func(c *Config) { c.Signature.HostName = "Open`Code" }, "signature.host_name"},
		{"relative url", func(c *Config) { c.Signature.HostURL = "opencode.ai" }, "signature.host_url"},
		{"ftp url", func(c *Config) { c.Signature.HostURL = "ftp://opencode.ai" }, "signature.host_url"},
		{"paren in url", func(c *Config) { c.Signature.HostURL = "https://x.test/a)b" }, "signature.host_url"},
		{"tool with space", func(c *Config) { c.Tools.Structured = []string{"a b"} }, "tools.structured[0]"},
		{"empty shell tool", func(c *Config) { c.Tools.Shell = []string{""} }, "tools.shell[0]"},
		{"bad listen", func(c *Config) { c.Server.Listen = "localhost" }, "server.listen"},
		{"bad port", func(c *Config) { c.Server.Listen = "localhost:99999" }, "server.listen"},
		{"negative rps", func(c *Config) { c.Server.RequestsPerSecond = -1 }, "server.requests_per_second"},
		{"zero burst", func(c *Config) { c.Server.Burst = 0 }, "server.burst"},
		{"tiny body", func(c *Config) { c.Server.MaxBodyBytes = 10 }, "server.max_body_bytes"},
		{"negative max entries", func(c *Config) { c.Ledger.MaxEntries = -1 }, "ledger.max_entries"},
		{"zero queue", func(c *Config) { c.Ledger.QueueSize = 0 }, "ledger.queue_size"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
	errs := ValidateErrors{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}
	assert.Equal(t, "a: x; b: y", errs.Error())
}

func TestMigrate(t *testing.T) {
	cfg := Default()
	cfg.Version = ""
	require.NoError(t, cfg.Migrate())
	assert.Equal(t, CurrentVersion, cfg.Version)

	cfg.Version = "99"
	assert.Error(t, cfg.Migrate())
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("AGENTSIG_MODEL", "claude-opus-4-1")
	t.Setenv("AGENTSIG_HOST_NAME", "Crush")
	t.Setenv("AGENTSIG_HOST_URL", "https://crush.test")
	t.Setenv("AGENTSIG_GLYPH", "✨")
	t.Setenv("AGENTSIG_LOG_LEVEL", "DEBUG")
	t.Setenv("AGENTSIG_LISTEN", ":5000")
	t.Setenv("AGENTSIG_TOKEN", "tok")
	t.Setenv("AGENTSIG_LEDGER", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-opus-4-1", cfg.DefaultModel)
	assert.Equal(t, "✨ Generated with [Crush](https://crush.test) (M)", cfg.Codec().Render("M"))
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":5000", cfg.Server.Listen)
	assert.Equal(t, "tok", cfg.Server.Token)
	assert.False(t, cfg.Ledger.Enabled)
}

func TestApplyEnvOverrides_LedgerPath(t *testing.T) {
	isolate(t)
	t.Setenv("AGENTSIG_LEDGER", "/tmp/custom.db")

	cfg := Default()
	cfg.Ledger.Enabled = false
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Ledger.Enabled)
	path, err := cfg.LedgerPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", path)
}

func TestLedgerPath_Default(t *testing.T) {
	dir := isolate(t)
	path, err := Default().LedgerPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), path)
}

// =============================================================================
// SAVE, GET AND SET
// =============================================================================

func TestSaveAndReload(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.DefaultModel = "gpt-5"
	cfg.Tools.Shell = []string{"zsh"}
	cfg.Server.Token = "secret"
	require.NoError(t, Save(cfg))

	path := filepath.Join(dir, "config.toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	if filepath.Separator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveJSON(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Logging.Level = "warn"
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Logging.Level)
}

func TestSaveYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Tools.Shell = []string{"shell"}
	cfg.Signature.HostName = "Crush"
	require.NoError(t, SaveYAML(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"shell"}, loaded.Tools.Shell)
	assert.Equal(t, "Crush", loaded.Signature.HostName)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("signature.host_name", "Acme"))
	require.NoError(t, cfg.Set("tools.gh", "false"))
	require.NoError(t, cfg.Set("server.burst", "7"))
	require.NoError(t, cfg.Set("server.requests_per_second", "2.5"))
	require.NoError(t, cfg.Set("server.max_body_bytes", "4096"))
	require.NoError(t, cfg.Set("tools.structured", "a, b,,c"))

	v, err := cfg.Get("signature.host_name")
	require.NoError(t, err)
	assert.Equal(t, "Acme", v)
	assert.False(t, cfg.Tools.GitHub)
	assert.Equal(t, 7, cfg.Server.Burst)
	assert.Equal(t, 2.5, cfg.Server.RequestsPerSecond)
	assert.Equal(t, int64(4096), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tools.Structured)

	assert.Error(t, cfg.Set("signature", "x"))
	assert.Error(t, cfg.Set("tools.gh", "maybe"))
	assert.Error(t, cfg.Set("server.burst", "lots"))
	_, err = cfg.Get("nope.key")
	assert.ErrorContains(t, err, "unknown field: nope")
	_, err = cfg.Get("default_model.x")
	assert.Error(t, err)
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	assert.Contains(t, keys, "default_model")
	assert.Contains(t, keys, "signature.host_url")
	assert.Contains(t, keys, "tools.gh")
	assert.Contains(t, keys, "ledger.max_entries")
	assert.NotContains(t, keys, "signature")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestCloneAndString(t *testing.T) {
	cfg := Default()
	cfg.Tools.Structured = []string{"a"}
	cfg.Server.Token = "hunter2"

	clone := cfg.Clone()
	clone.Tools.Structured[0] = "b"
	assert.Equal(t, "a", cfg.Tools.Structured[0])

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "hunter2", cfg.Server.Token)
}

// =============================================================================
// GLOBAL SINGLETON
// =============================================================================

// TestConfig_ConcurrentAccess checks Global and SetGlobal under -race.
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestReloadGlobal(t *testing.T) {
	dir := isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	assert.Equal(t, "", Global().DefaultModel)

	writeFile(t, filepath.Join(dir, "config.toml"), `default_model = "kimi-k2"`)
	require.NoError(t, ReloadGlobal())
	assert.Equal(t, "kimi-k2", Global().DefaultModel)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `default_model = "one"`)

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
			if err != nil {
				return
			}
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte(`default_model = "two"`), 0600); err != nil {
			return false
		}
		select {
		case cfg := <-reloaded:
			return cfg.DefaultModel == "two"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "config.toml"), 0, func(*Config, error) {})
	assert.Error(t, err)
}
