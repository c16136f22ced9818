package config

import (
	"fmt"
	"net/url"

	"go.uber.org/multierr"
)

// Validate checks cfg and reports every problem at once.
func Validate(cfg *Config) error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	checkURL := func(key, raw string) {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add("%s must be an absolute URL (got %q)", key, raw)
		}
	}
	checkURL("graphql_url", cfg.GraphQLURL)
	checkURL("rest_url", cfg.RESTURL)

	if cfg.Timeout <= 0 {
		add("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.WaitReady < 0 {
		add("wait_ready must not be negative (got %s)", cfg.WaitReady)
	}

	checkAccount := func(key string, a Account) {
		if a.Email == "" || a.Password == "" {
			add("%s: email and password are required", key)
		}
	}
	checkAccount("fixtures.user", cfg.Fixtures.User)
	checkAccount("fixtures.rest_user", cfg.Fixtures.RESTUser)
	checkAccount("fixtures.instructor", cfg.Fixtures.Instructor)

	checkProduct := func(key string, p Product) {
		if p.Quantity <= 0 {
			add("%s.quantity must be positive (got %d)", key, p.Quantity)
		}
		if p.UnitPrice < 0 {
			add("%s.unit_price must not be negative", key)
		}
	}
	checkProduct("fixtures.boleto_product", cfg.Fixtures.BoletoProduct)
	checkProduct("fixtures.card_product", cfg.Fixtures.CardProduct)
	checkProduct("fixtures.rest_product", cfg.Fixtures.RESTProduct)
	if cfg.Fixtures.Freight < 0 || cfg.Fixtures.RESTFreight < 0 {
		add("fixtures freight must not be negative")
	}

	if cfg.Messages.InvalidCredentials == "" || cfg.Messages.InvalidToken == "" || cfg.Messages.ProductNotFound == "" {
		add("messages: all error strings are required")
	}

	if cfg.Load.VUs <= 0 {
		add("load.vus must be positive (got %d)", cfg.Load.VUs)
	}
	if cfg.Load.Duration <= 0 && cfg.Load.Iterations <= 0 {
		add("load: duration or iterations must be set")
	}
	if cfg.Load.Iterations < 0 {
		add("load.iterations must not be negative")
	}
	if cfg.Load.ThinkTime < 0 {
		add("load.think_time must not be negative")
	}

	if cfg.Metrics.Pushgateway != "" {
		if u, err := url.Parse(cfg.Metrics.Pushgateway); err != nil || u.Host == "" {
			add("metrics.pushgateway must be a URL (got %q)", cfg.Metrics.Pushgateway)
		}
		if cfg.Metrics.Job == "" {
			add("metrics.job is required with a pushgateway")
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level)
	}

	return errs
}
