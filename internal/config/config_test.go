package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/roach88/conform/internal/config"
)

func setenv(key, val string) {
	old, had := os.LookupEnv(key)
	Expect(os.Setenv(key, val)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Config", func() {
	Describe("Default", func() {
		It("should carry the seeded fixtures and k6 thresholds", func() {
			cfg := config.Default()
			Expect(cfg.Fixtures.User.Email).To(Equal("warlley.freitas@live.com"))
			Expect(cfg.Fixtures.CardProduct.ID).To(Equal(2))
			Expect(cfg.Fixtures.UnknownProduct).To(Equal(3))
			Expect(cfg.Messages.InvalidToken).To(Equal("Token inválido"))
			Expect(cfg.Load.VUs).To(Equal(10))
			Expect(cfg.Load.Duration).To(Equal(20 * time.Second))
			Expect(cfg.Load.Thresholds).To(HaveKeyWithValue("http_req_failed", []string{"rate<0.01"}))
		})

		It("should validate", func() {
			Expect(config.Validate(config.Default())).To(Succeed())
		})
	})

	Describe("Load", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("should fall back to defaults", func() {
			cfg, err := config.Load(config.Options{EnvFile: filepath.Join(dir, "missing.env")})
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Timeout).To(Equal(10 * time.Second))
			Expect(cfg.Fixtures.Lesson.Title).To(Equal("Como montar uma flauta transversal"))
			Expect(cfg.Fixtures.Card.CVV).To(Equal("545"))
		})

		It("should read a config file", func() {
			path := writeFile(dir, "conform.yaml", `
graphql_url: http://api.test:4000
fixtures:
  card_product:
    id: 7
    unit_price: 19.99
    quantity: 3
messages:
  invalid_token: Invalid token
load:
  vus: 50
  duration: 1m
`)
			cfg, err := config.Load(config.Options{ConfigFile: path, EnvFile: filepath.Join(dir, "none")})
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.GraphQLURL).To(Equal("http://api.test:4000"))
			Expect(cfg.Fixtures.CardProduct).To(Equal(config.Product{ID: 7, UnitPrice: 19.99, Quantity: 3}))
			Expect(cfg.Messages.InvalidToken).To(Equal("Invalid token"))
			Expect(cfg.Messages.ProductNotFound).To(Equal("Produto não encontrado"))
			Expect(cfg.Load.VUs).To(Equal(50))
			Expect(cfg.Load.Duration).To(Equal(time.Minute))
		})

		It("should return error for a missing explicit config file", func() {
			_, err := config.Load(config.Options{ConfigFile: filepath.Join(dir, "nope.yaml")})
			Expect(err).To(MatchError(ContainSubstring("failed to read config file")))
		})

		It("should honor BASE_URL_GRAPHQL and prefixed variables", func() {
			setenv("BASE_URL_GRAPHQL", "http://graphql.env:4000")
			setenv("CONFORM_LOAD_VUS", "3")
			setenv("CONFORM_FIXTURES_USER_EMAIL", "env@example.com")

			cfg, err := config.Load(config.Options{EnvFile: filepath.Join(dir, "none")})
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.GraphQLURL).To(Equal("http://graphql.env:4000"))
			Expect(cfg.Load.VUs).To(Equal(3))
			Expect(cfg.Fixtures.User.Email).To(Equal("env@example.com"))
		})

		It("should load a .env file without overriding the environment", func() {
			setenv("BASE_URL_GRAPHQL", "http://from.process:1")
			DeferCleanup(os.Unsetenv, "BASE_URL_REST")
			env := writeFile(dir, ".env", "BASE_URL_REST=http://rest.dotenv:3000\nBASE_URL_GRAPHQL=http://from.dotenv:2\n")

			cfg, err := config.Load(config.Options{EnvFile: env})
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.RESTURL).To(Equal("http://rest.dotenv:3000"))
			Expect(cfg.GraphQLURL).To(Equal("http://from.process:1"))
		})

		It("should let flags win over the environment", func() {
			setenv("CONFORM_LOAD_VUS", "3")
			flags := pflag.NewFlagSet("load", pflag.ContinueOnError)
			flags.Int("vus", 10, "")
			flags.Duration("duration", 20*time.Second, "")
			Expect(flags.Parse([]string{"--vus=7"})).To(Succeed())

			cfg, err := config.Load(config.Options{EnvFile: filepath.Join(dir, "none"), Flags: flags})
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Load.VUs).To(Equal(7))
			Expect(cfg.Load.Duration).To(Equal(20 * time.Second))
		})
	})

	Describe("Validate", func() {
		It("should report every problem", func() {
			cfg := config.Default()
			cfg.GraphQLURL = "not a url"
			cfg.Load.VUs = 0
			cfg.Fixtures.CardProduct.Quantity = 0
			cfg.Logging.Level = "loud"

			err := config.Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(multierr.Errors(err)).To(HaveLen(4))
			Expect(err.Error()).To(ContainSubstring("graphql_url must be an absolute URL"))
			Expect(err.Error()).To(ContainSubstring("load.vus must be positive"))
			Expect(err.Error()).To(ContainSubstring("fixtures.card_product.quantity"))
			Expect(err.Error()).To(ContainSubstring("logging.level"))
		})

		It("should require a job when pushing metrics", func() {
			cfg := config.Default()
			cfg.Metrics.Pushgateway = "http://pushgateway:9091"
			cfg.Metrics.Job = ""
			Expect(config.Validate(cfg)).To(MatchError(ContainSubstring("metrics.job")))
		})
	})
})
