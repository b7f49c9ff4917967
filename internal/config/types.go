package config

import "time"

// Config represents the complete cloudrelay configuration.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Backend      BackendConfig      `yaml:"backend"`
	Transport    TransportConfig    `yaml:"transport"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	API          APIConfig          `yaml:"api,omitempty"`
	Journal      JournalConfig      `yaml:"journal,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// BackendConfig identifies the backend and the credentials sent with every call.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	FunctionPrefix string        `yaml:"function_prefix"`
	ApplicationID  string        `yaml:"application_id"`
	RESTAPIKey     string        `yaml:"rest_api_key"`
	InstallationID string        `yaml:"installation_id,omitempty"` // generated when empty
	Timeout        time.Duration `yaml:"timeout"`
}

// TransportConfig selects how calls reach the backend.
type TransportConfig struct {
	Kind            string `yaml:"kind"` // rest | sdk
	Workers         int    `yaml:"workers"`
	ErrorPrecedence string `yaml:"error_precedence"` // exception_first | body_first
}

// ConnectivityConfig controls the background reachability probe.
type ConnectivityConfig struct {
	ProbeURL string        `yaml:"probe_url,omitempty"` // defaults to backend.base_url
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	FailFast bool          `yaml:"fail_fast"`
}

// APIConfig defines the host bridge HTTP server.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines bridge authentication.
type APIAuthConfig struct {
	// APIKey is the single full-access bearer token.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// JournalConfig controls the SQLite log of completed results.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "cloudrelay",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Backend: BackendConfig{
			BaseURL:        "https://www.parse.com/1/",
			FunctionPrefix: "functions/",
			Timeout:        30 * time.Second,
		},
		Transport: TransportConfig{
			Kind:            "rest",
			Workers:         16,
			ErrorPrecedence: "exception_first",
		},
		Connectivity: ConnectivityConfig{
			Interval: 15 * time.Second,
			Timeout:  3 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8088",
		},
		Journal: JournalConfig{
			Enabled:   false,
			Path:      "./data/results.db",
			Retention: 7 * 24 * time.Hour,
		},
	}
}
