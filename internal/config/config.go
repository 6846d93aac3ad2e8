package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. WORKFLOW_DB_HOST.
const EnvPrefix = "WORKFLOW"

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	Server      struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"db"`
	Store struct {
		Driver string `mapstructure:"driver"` // memory or postgres
	} `mapstructure:"store"`
	Catalog struct {
		Files []string `mapstructure:"files"`
	} `mapstructure:"catalog"`
	Executor struct {
		StepTimeout    time.Duration `mapstructure:"step_timeout"`
		MaxAttempts    int           `mapstructure:"max_attempts"`
		InitialBackoff time.Duration `mapstructure:"initial_backoff"`
		MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	} `mapstructure:"executor"`
	Adapters struct {
		API struct {
			Timeout     time.Duration                `mapstructure:"timeout"`
			Credentials map[string]CredentialProfile `mapstructure:"credentials"`
		} `mapstructure:"api"`
		Model struct {
			Timeout  time.Duration           `mapstructure:"timeout"`
			Profiles map[string]ModelProfile `mapstructure:"profiles"`
		} `mapstructure:"model"`
	} `mapstructure:"adapters"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	MCP struct {
		Enable   bool   `mapstructure:"enable"`
		BasePath string `mapstructure:"base_path"`
	} `mapstructure:"mcp"`
}

// CredentialProfile is an OAuth2 client-credentials grant used by api
// components. Either TokenURL or Issuer must be set; with Issuer the token
// endpoint is discovered.
type CredentialProfile struct {
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	TokenURL     string            `mapstructure:"token_url"`
	Issuer       string            `mapstructure:"issuer"`
	Scopes       []string          `mapstructure:"scopes"`
	Params       map[string]string `mapstructure:"params"`
}

// ModelProfile describes an inference deployment addressed by model_name.
type ModelProfile struct {
	Endpoint   string         `mapstructure:"endpoint"`
	Deployment string         `mapstructure:"deployment"`
	APIKey     string         `mapstructure:"api_key"`
	APIVersion string         `mapstructure:"api_version"`
	Defaults   map[string]any `mapstructure:"defaults"`
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:   "/" + c.DB.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.DB.SSLMode)
	if c.DB.MaxConns > 0 {
		q.Set("pool_max_conns", fmt.Sprint(c.DB.MaxConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "workflows")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("executor.step_timeout", 60*time.Second)
	v.SetDefault("executor.max_attempts", 3)
	v.SetDefault("executor.initial_backoff", 200*time.Millisecond)
	v.SetDefault("executor.max_backoff", 5*time.Second)
	v.SetDefault("adapters.api.timeout", 30*time.Second)
	v.SetDefault("adapters.model.timeout", 120*time.Second)
	v.SetDefault("tls.cert_file", "certs/server.crt")
	v.SetDefault("tls.key_file", "certs/server.key")
	v.SetDefault("tls.hostnames", []string{"localhost"})
	v.SetDefault("mcp.enable", true)
	v.SetDefault("mcp.base_path", "/mcp")
}

// LoadConfig loads the configuration from an optional file and the
// environment. An empty path searches for config.yaml in . and ./config.
func LoadConfig(path string) (*Config, error) {
	return Load(viper.New(), path)
}

// Load reads configuration through v, which may already carry bound flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	for name, profile := range config.Adapters.API.Credentials {
		profile.Issuer = normalizeIssuer(profile.Issuer)
		config.Adapters.API.Credentials[name] = profile
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be memory or postgres, got %q", c.Store.Driver))
	}
	if c.Executor.MaxAttempts < 1 {
		errs = append(errs, errors.New("executor.max_attempts must be at least 1"))
	}
	if c.Executor.StepTimeout <= 0 {
		errs = append(errs, errors.New("executor.step_timeout must be positive"))
	}
	for name, p := range c.Adapters.API.Credentials {
		if p.TokenURL == "" && p.Issuer == "" {
			errs = append(errs, fmt.Errorf("credential profile %q needs token_url or issuer", name))
		}
	}
	for name, p := range c.Adapters.Model.Profiles {
		if p.Endpoint == "" {
			errs = append(errs, fmt.Errorf("model profile %q needs an endpoint", name))
		}
	}
	return errors.Join(errs...)
}

// normalizeIssuer strips surrounding space and any trailing slash so issuer
// URLs pasted from an identity provider console compare equal to the
// discovery document's issuer.
func normalizeIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
