package medinventory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/connection/postgres"
	"github.com/medkit/medinventory/pkg/connection/rest"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/logger"
	"github.com/medkit/medinventory/pkg/models"
)

// Config keys. Each can also be set through the environment with the MEDINV_
// prefix, for example MEDINV_ANON_KEY.
const (
	KeyURL                = "url"
	KeyAnonKey            = "anon_key"
	KeyAccessToken        = "access_token"
	KeyIdentity           = "identity"
	KeyQueryTimeout       = "query_timeout"
	KeyHTTPTimeout        = "http_timeout"
	KeyLogLevel           = "log_level"
	KeyLogPath            = "log_path"
	KeyParallelPartitions = "parallel_partitions"
)

// ConfigFileEnv names the variable holding the config file used when none is
// given explicitly.
const ConfigFileEnv = "MEDINV_CONFIG"

// Config describes how to reach the store.
type Config struct {
	// URL is either the project URL of a PostgREST endpoint, such as
	// https://project.supabase.co, or a postgres:// DSN.
	URL         string `mapstructure:"url"`
	AnonKey     string `mapstructure:"anon_key"`
	AccessToken string `mapstructure:"access_token"`
	// Identity is the user a direct database connection acts for.
	Identity           string        `mapstructure:"identity"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	LogLevel           string        `mapstructure:"log_level"`
	LogPath            string        `mapstructure:"log_path"`
	ParallelPartitions bool          `mapstructure:"parallel_partitions"`

	Logger logger.Logger `mapstructure:"-"`
}

// NewViper returns a viper instance carrying the defaults of every key and
// reading MEDINV_* variables from the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyURL, "")
	v.SetDefault(KeyAnonKey, "")
	v.SetDefault(KeyAccessToken, "")
	v.SetDefault(KeyIdentity, "")
	v.SetDefault(KeyQueryTimeout, constants.DefaultQueryTimeout)
	v.SetDefault(KeyHTTPTimeout, constants.DefaultHTTPTimeout)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPath, "")
	v.SetDefault(KeyParallelPartitions, false)

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the config file at path, falling back to $MEDINV_CONFIG,
// and overlays the environment. Without a file only the environment and the
// defaults apply.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()

	if path == "" {
		path = GetEnvOrDefault(ConfigFileEnv, "")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return ConfigFromViper(v)
}

// ConfigFromViper decodes a Config out of v.
func ConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the config can produce a connection.
func (c *Config) Validate() error {
	if c.URL == "" {
		return constants.ErrNoBaseURL
	}
	if c.QueryTimeout < 0 || c.HTTPTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Identity != "" {
		if _, err := models.ParseIdentity(c.Identity); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionConfig turns c into the configuration of a connection.
func (c *Config) ConnectionConfig() (*connection.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	p := connection.NewConfig(u)
	p.APIKey = c.AnonKey
	p.AccessToken = c.AccessToken
	if c.HTTPTimeout > 0 {
		p.HTTPTimeout = c.HTTPTimeout
	}
	if c.Logger != nil {
		p.Logger = c.Logger
	}
	if c.Identity != "" {
		// already validated
		p.Identity, _ = models.ParseIdentity(c.Identity)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewConnection creates the connection the URL scheme of c selects, without
// connecting it.
func NewConnection(c *Config) (connection.Connection, error) {
	p, err := c.ConnectionConfig()
	if err != nil {
		return nil, err
	}

	switch {
	case p.IsREST():
		return rest.New(p), nil
	case p.IsPostgres():
		return postgres.New(p), nil
	default:
		return nil, fmt.Errorf("%w: %s", constants.ErrUnsupportedScheme, p.URL.Scheme)
	}
}

// Connect creates and connects the connection c describes and returns a handle
// over it. opts are applied after the options c implies.
func Connect(ctx context.Context, c *Config, opts ...Option) (*DB, error) {
	conn, err := NewConnection(c)
	if err != nil {
		return nil, err
	}

	base := []Option{WithQueryTimeout(c.QueryTimeout)}
	if c.Logger != nil {
		base = append(base, WithLogger(c.Logger))
	}
	if c.ParallelPartitions {
		base = append(base, WithParallelPartitions())
	}

	return FromConnection(ctx, conn, append(base, opts...)...)
}
