package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/harness"
)

// Default returns the built-in configuration, matching the fixtures the
// server under test is seeded with.
func Default() *Config {
	msgs := harness.DefaultMessages()
	return &Config{
		GraphQLURL: "http://localhost:4000",
		RESTURL:    "http://localhost:3000",
		Timeout:    10 * time.Second,
		Fixtures: Fixtures{
			User:       Account{Name: "warlley", Email: "warlley.freitas@live.com", Password: "123456"},
			RESTUser:   Account{Email: "alice@email.com", Password: "123456"},
			Instructor: Account{Email: "warlley@warlley.com", Password: "123456"},

			BoletoProduct:  Product{ID: 1, UnitPrice: 100, Quantity: 10},
			CardProduct:    Product{ID: 2, UnitPrice: 200, Quantity: 10},
			RESTProduct:    Product{ID: 1, UnitPrice: 100, Quantity: 2},
			UnknownProduct: 3,
			Freight:        50,
			RESTFreight:    15,

			Card: graphql.CardData{Number: "12345678", Name: "Warlley Freitas", Expiry: "12/30", CVV: "545"},
			Lesson: Lesson{
				Title:       "Como montar uma flauta transversal",
				Description: "Montando as três partes da flauta transversal e alinhando as peças",
			},
		},
		Messages: msgs,
		Load: LoadConfig{
			VUs:       10,
			Duration:  20 * time.Second,
			ThinkTime: time.Second,
			Thresholds: map[string][]string{
				"http_req_duration": {"p(95)<=2000", "p(99)<=3000"},
				"http_req_failed":   {"rate<0.01"},
			},
		},
		Store:   StoreConfig{Path: "conform.db"},
		Metrics: MetricsConfig{Job: "conform"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// setDefaults registers every Default value with v so that environment
// variables and flags can override individual keys.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("graphql_url", d.GraphQLURL)
	v.SetDefault("rest_url", d.RESTURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("wait_ready", d.WaitReady)

	setAccount(v, "fixtures.user", d.Fixtures.User)
	setAccount(v, "fixtures.rest_user", d.Fixtures.RESTUser)
	setAccount(v, "fixtures.instructor", d.Fixtures.Instructor)
	setProduct(v, "fixtures.boleto_product", d.Fixtures.BoletoProduct)
	setProduct(v, "fixtures.card_product", d.Fixtures.CardProduct)
	setProduct(v, "fixtures.rest_product", d.Fixtures.RESTProduct)
	v.SetDefault("fixtures.unknown_product", d.Fixtures.UnknownProduct)
	v.SetDefault("fixtures.freight", d.Fixtures.Freight)
	v.SetDefault("fixtures.rest_freight", d.Fixtures.RESTFreight)
	v.SetDefault("fixtures.card.number", d.Fixtures.Card.Number)
	v.SetDefault("fixtures.card.name", d.Fixtures.Card.Name)
	v.SetDefault("fixtures.card.expiry", d.Fixtures.Card.Expiry)
	v.SetDefault("fixtures.card.cvv", d.Fixtures.Card.CVV)
	v.SetDefault("fixtures.lesson.title", d.Fixtures.Lesson.Title)
	v.SetDefault("fixtures.lesson.description", d.Fixtures.Lesson.Description)

	v.SetDefault("messages.invalid_credentials", d.Messages.InvalidCredentials)
	v.SetDefault("messages.invalid_token", d.Messages.InvalidToken)
	v.SetDefault("messages.product_not_found", d.Messages.ProductNotFound)

	v.SetDefault("load.vus", d.Load.VUs)
	v.SetDefault("load.duration", d.Load.Duration)
	v.SetDefault("load.iterations", d.Load.Iterations)
	v.SetDefault("load.think_time", d.Load.ThinkTime)
	v.SetDefault("load.thresholds", d.Load.Thresholds)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("metrics.pushgateway", d.Metrics.Pushgateway)
	v.SetDefault("metrics.job", d.Metrics.Job)
	v.SetDefault("logging.level", d.Logging.Level)
}

func setAccount(v *viper.Viper, key string, a Account) {
	v.SetDefault(key+".name", a.Name)
	v.SetDefault(key+".email", a.Email)
	v.SetDefault(key+".password", a.Password)
}

func setProduct(v *viper.Viper, key string, p Product) {
	v.SetDefault(key+".id", p.ID)
	v.SetDefault(key+".unit_price", p.UnitPrice)
	v.SetDefault(key+".quantity", p.Quantity)
}
