package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variable names.
const (
	EnvHost            = "INTERCEPTD_HOST"
	EnvPort            = "INTERCEPTD_PORT"
	EnvReadTimeout     = "INTERCEPTD_READ_TIMEOUT"
	EnvWriteTimeout    = "INTERCEPTD_WRITE_TIMEOUT"
	EnvShutdownTimeout = "INTERCEPTD_SHUTDOWN_TIMEOUT"
	EnvLogLevel        = "INTERCEPTD_LOG_LEVEL"
	EnvLogFormat       = "INTERCEPTD_LOG_FORMAT"
	EnvLogFile         = "INTERCEPTD_LOG_FILE"
	EnvTokenSecret     = "INTERCEPTD_TOKEN_SECRET"
	EnvRequireAuth     = "INTERCEPTD_REQUIRE_AUTH"
	EnvServerURL       = "INTERCEPTD_SERVER_URL"
	EnvToken           = "INTERCEPTD_TOKEN"
)

// LoadEnvConfig applies the variables present in the environment. A
// malformed number is an error naming the variable.
func LoadEnvConfig(cfg *ServerConfig) error {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}

	strs := []struct {
		env, key string
		dst      *string
	}{
		{EnvHost, "host", &cfg.Host},
		{EnvLogLevel, "logLevel", &cfg.LogLevel},
		{EnvLogFormat, "logFormat", &cfg.LogFormat},
		{EnvLogFile, "logFile", &cfg.LogFile},
		{EnvTokenSecret, "tokenSecret", &cfg.TokenSecret},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
			cfg.Sources[s.key] = SourceEnv
		}
	}

	ints := []struct {
		env, key string
		dst      *int
	}{
		{EnvPort, "port", &cfg.Port},
		{EnvReadTimeout, "readTimeout", &cfg.ReadTimeout},
		{EnvWriteTimeout, "writeTimeout", &cfg.WriteTimeout},
		{EnvShutdownTimeout, "shutdownTimeout", &cfg.ShutdownTimeout},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", i.env, v)
		}
		*i.dst = n
		cfg.Sources[i.key] = SourceEnv
	}

	if v := os.Getenv(EnvRequireAuth); v != "" {
		cfg.RequireAuth = v == "true" || v == "1" || v == "yes"
		cfg.Sources["requireAuth"] = SourceEnv
	}
	return nil
}
