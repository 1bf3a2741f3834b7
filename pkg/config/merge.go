package config

// MergeConfig merges source into target and records sourceType for every
// value taken. Only non-zero values are applied, except booleans listed in
// source.SetFields.
func MergeConfig(target, source *ServerConfig, sourceType string) {
	if source == nil {
		return
	}
	if target.Sources == nil {
		target.Sources = make(map[string]string)
	}

	setString := func(key string, dst *string, v string) {
		if v != "" {
			*dst = v
			target.Sources[key] = sourceType
		}
	}
	setInt := func(key string, dst *int, v int) {
		if v != 0 {
			*dst = v
			target.Sources[key] = sourceType
		}
	}

	setString("host", &target.Host, source.Host)
	setInt("port", &target.Port, source.Port)
	setInt("readTimeout", &target.ReadTimeout, source.ReadTimeout)
	setInt("writeTimeout", &target.WriteTimeout, source.WriteTimeout)
	setInt("shutdownTimeout", &target.ShutdownTimeout, source.ShutdownTimeout)
	setString("logLevel", &target.LogLevel, source.LogLevel)
	setString("logFormat", &target.LogFormat, source.LogFormat)
	setString("logFile", &target.LogFile, source.LogFile)
	setString("tokenSecret", &target.TokenSecret, source.TokenSecret)

	if boolIsSet(source, "requireAuth") {
		target.RequireAuth = source.RequireAuth
		target.Sources["requireAuth"] = sourceType
	}
}

// boolIsSet reports whether a boolean was explicitly set. Without SetFields
// only true counts.
func boolIsSet(cfg *ServerConfig, yamlKey string) bool {
	if cfg.SetFields != nil {
		return cfg.SetFields[yamlKey]
	}
	switch yamlKey {
	case "requireAuth":
		return cfg.RequireAuth
	}
	return false
}
