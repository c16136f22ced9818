// Package config loads conform settings from defaults, an optional
// conform.yaml, a .env file, environment variables, and command flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/harness"
)

// EnvPrefix prefixes every environment override, e.g. CONFORM_LOAD_VUS.
const EnvPrefix = "CONFORM"

// Config is the top-level configuration.
type Config struct {
	// GraphQLURL is the base URL of the GraphQL server (BASE_URL_GRAPHQL).
	GraphQLURL string `mapstructure:"graphql_url"`
	// RESTURL is the base URL of the REST server (BASE_URL_REST).
	RESTURL string `mapstructure:"rest_url"`

	Timeout   time.Duration `mapstructure:"timeout"`
	WaitReady time.Duration `mapstructure:"wait_ready"`

	Fixtures Fixtures         `mapstructure:"fixtures"`
	Messages harness.Messages `mapstructure:"messages"`
	Load     LoadConfig       `mapstructure:"load"`
	Store    StoreConfig      `mapstructure:"store"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Logging  LoggingConfig    `mapstructure:"logging"`
}

// Account is a login identity.
type Account struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Product is a catalog entry the suites order, with the unit price the
// server is expected to charge.
type Product struct {
	ID        int     `mapstructure:"id"`
	UnitPrice float64 `mapstructure:"unit_price"`
	Quantity  int     `mapstructure:"quantity"`
}

// Lesson is the payload the instructor flow creates.
type Lesson struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
}

// Fixtures are the server-side data the built-in suites rely on.
type Fixtures struct {
	User       Account `mapstructure:"user"`
	RESTUser   Account `mapstructure:"rest_user"`
	Instructor Account `mapstructure:"instructor"`

	BoletoProduct  Product `mapstructure:"boleto_product"`
	CardProduct    Product `mapstructure:"card_product"`
	RESTProduct    Product `mapstructure:"rest_product"`
	UnknownProduct int     `mapstructure:"unknown_product"`
	Freight        float64 `mapstructure:"freight"`
	RESTFreight    float64 `mapstructure:"rest_freight"`

	Card   graphql.CardData `mapstructure:"card"`
	Lesson Lesson           `mapstructure:"lesson"`
}

// LoadConfig holds load-test defaults.
type LoadConfig struct {
	VUs        int                 `mapstructure:"vus"`
	Duration   time.Duration       `mapstructure:"duration"`
	Iterations int                 `mapstructure:"iterations"`
	ThinkTime  time.Duration       `mapstructure:"think_time"`
	Thresholds map[string][]string `mapstructure:"thresholds"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig configures the Prometheus Pushgateway export.
type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Options control where Load looks for settings.
type Options struct {
	// ConfigFile is an explicit config path. When empty, ./conform.yaml is
	// read if present.
	ConfigFile string
	// EnvFile is loaded into the process environment if it exists.
	EnvFile string
	// Flags are bound by name through FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"graphql-url": "graphql_url",
	"rest-url":    "rest_url",
	"timeout":     "timeout",
	"wait":        "wait_ready",
	"vus":         "load.vus",
	"duration":    "load.duration",
	"iterations":  "load.iterations",
	"think":       "load.think_time",
	"db":          "store.path",
	"push":        "metrics.pushgateway",
	"log-level":   "logging.level",
}

// Load resolves the configuration. The result is not validated; call
// Validate before use.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The suites' own variable names take part alongside the prefixed ones.
	if err := v.BindEnv("graphql_url", EnvPrefix+"_GRAPHQL_URL", "BASE_URL_GRAPHQL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("rest_url", EnvPrefix+"_REST_URL", "BASE_URL_REST"); err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("conform")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// CardData returns a copy of the configured card for a checkout.
func (f Fixtures) CardData() *graphql.CardData {
	c := f.Card
	return &c
}
