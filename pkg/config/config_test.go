package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/logging"
)

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr string
	}{
		{name: "valid defaults", config: *NewDefault()},
		{name: "port too high", config: ServerConfig{Port: 70000}, wantErr: "port 70000 is out of range"},
		{name: "port negative", config: ServerConfig{Port: -1}, wantErr: "port -1 is out of range"},
		{name: "read timeout too high", config: ServerConfig{ReadTimeout: 9999}, wantErr: "readTimeout 9999 is out of range"},
		{name: "shutdown timeout negative", config: ServerConfig{ShutdownTimeout: -1}, wantErr: "shutdownTimeout -1 is out of range"},
		{name: "unknown log level", config: ServerConfig{LogLevel: "loud"}, wantErr: `unknown logLevel "loud"`},
		{name: "unknown log format", config: ServerConfig{LogFormat: "xml"}, wantErr: `unknown logFormat "xml"`},
		{name: "auth without secret", config: ServerConfig{RequireAuth: true}, wantErr: "no tokenSecret"},
		{name: "auth with secret", config: ServerConfig{RequireAuth: true, TokenSecret: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_Conversions(t *testing.T) {
	cfg := NewDefault()
	cfg.Port = 9000
	cfg.TokenSecret = "s3cret"
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	cfg.LogFile = "/tmp/interceptd.log"

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())

	srv := cfg.Server()
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
	assert.Equal(t, 60*time.Second, srv.WriteTimeout)
	assert.Equal(t, []byte("s3cret"), srv.TokenSecret)

	lc := cfg.Logging()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, "/tmp/interceptd.log", lc.File.Path)
}

func TestMergeConfig(t *testing.T) {
	t.Run("non-zero values win and are tracked", func(t *testing.T) {
		target := NewDefault()
		MergeConfig(target, &ServerConfig{Port: 9999, LogLevel: "debug"}, SourceLocal)

		assert.Equal(t, 9999, target.Port)
		assert.Equal(t, "debug", target.LogLevel)
		assert.Equal(t, DefaultHost, target.Host)
		assert.Equal(t, SourceLocal, target.Sources["port"])
		assert.Equal(t, SourceDefault, target.Sources["host"])
	})

	t.Run("explicit false overrides with SetFields", func(t *testing.T) {
		target := NewDefault()
		target.RequireAuth = true
		MergeConfig(target, &ServerConfig{RequireAuth: false, SetFields: map[string]bool{"requireAuth": true}}, SourceLocal)
		assert.False(t, target.RequireAuth)
	})

	t.Run("false without SetFields does not override", func(t *testing.T) {
		target := NewDefault()
		target.RequireAuth = true
		MergeConfig(target, &ServerConfig{}, SourceLocal)
		assert.True(t, target.RequireAuth)
	})

	t.Run("nil source is ignored", func(t *testing.T) {
		target := NewDefault()
		MergeConfig(target, nil, SourceLocal)
		assert.Equal(t, DefaultPort, target.Port)
	})
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv(EnvPort, "5000")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRequireAuth, "true")

	cfg := NewDefault()
	require.NoError(t, LoadEnvConfig(cfg))

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.RequireAuth)
	assert.Equal(t, SourceEnv, cfg.Sources["port"])
	assert.Equal(t, SourceDefault, cfg.Sources["host"])
}

func TestLoadEnvConfig_BadNumber(t *testing.T) {
	t.Setenv(EnvReadTimeout, "soon")

	err := LoadEnvConfig(NewDefault())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvReadTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".interceptdrc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4400\nrequireAuth: false\ntokenSecret: abc\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4400, cfg.Port)
	assert.Equal(t, "abc", cfg.TokenSecret)
	assert.True(t, cfg.SetFields["requireAuth"])
	assert.False(t, cfg.SetFields["host"])
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1, 2]\n"), 0o600))

	_, err := LoadConfigFile(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.Path)
}

func TestLoadAll_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".interceptdrc.yaml"), []byte("port: 4400\nhost: 0.0.0.0\n"), 0o600))
	t.Setenv(EnvPort, "4500")

	cfg, err := LoadAll()
	require.NoError(t, err)

	assert.Equal(t, 4500, cfg.Port)
	assert.Equal(t, SourceEnv, cfg.Sources["port"])
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, SourceLocal, cfg.Sources["host"])
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
}
