package config

// Config is the complete querydeck configuration.
type Config struct {
	Service     ServiceConfig         `yaml:"service"`
	State       StateConfig           `yaml:"state"`
	API         APIConfig             `yaml:"api,omitempty"`
	Panel       PanelConfig           `yaml:"panel"`
	Connections []ConnectionConfig    `yaml:"connections"`
	Plugins     map[string]PluginConf `yaml:"plugins"`
}

// ServiceConfig defines core host settings. Namespace prefixes every
// registered command name.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the status HTTP API settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// PanelConfig defines how panels connect and render.
type PanelConfig struct {
	Socket   string `yaml:"socket"`
	PageSize int    `yaml:"page_size"`
}

// ConnectionConfig names one database connection available to queries.
type ConnectionConfig struct {
	ID  string `yaml:"id"`
	DSN string `yaml:"dsn"`
}

// PluginConf defines configuration for a single plugin.
type PluginConf struct {
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "querydeck",
			Namespace: "querydeck",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Panel: PanelConfig{
			Socket:   "./data/panel.sock",
			PageSize: 50,
		},
		Plugins: map[string]PluginConf{
			"sqlite":  {Enabled: true},
			"history": {Enabled: true},
		},
	}
}

// PluginEnabled reports whether a plugin should be loaded. Plugins absent
// from the config are enabled; only an explicit enabled: false disables.
func (c *Config) PluginEnabled(name string) bool {
	pc, ok := c.Plugins[name]
	if !ok {
		return true
	}
	return pc.Enabled
}
