package suite_test

import (
	"context"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/load"
	"github.com/roach88/conform/internal/suite"
	"github.com/roach88/conform/internal/testutil"
	"github.com/roach88/conform/internal/testutil/fakeapi"
)

// target returns the GraphQL base URL: an external server when
// CONFORM_EXTERNAL is set together with BASE_URL_GRAPHQL, otherwise a
// fresh in-memory double.
func target() string {
	if os.Getenv("CONFORM_EXTERNAL") != "" {
		if u := os.Getenv("BASE_URL_GRAPHQL"); u != "" {
			return u
		}
	}
	srv := httptest.NewServer(fakeapi.New().Handler())
	DeferCleanup(srv.Close)
	return srv.URL
}

var _ = Describe("GraphQL External", func() {
	var (
		cfg    *config.Config
		result *harness.SuiteResult
	)

	BeforeEach(func() {
		cfg = config.Default()
		s := suite.GraphQL(cfg)
		Expect(harness.ValidateSuite(s)).To(Succeed())

		runner := harness.NewRunner(target(), harness.WithMessages(cfg.Messages))
		result = runner.RunSuite(context.Background(), s)
		Expect(result.Scenarios).To(HaveLen(len(s.Scenarios)))
	})

	passes := func(name string) {
		sc := result.Find(name)
		Expect(sc).ToNot(BeNil(), name)
		Expect(sc.Err()).ToNot(HaveOccurred())
	}

	Describe("Checkout Mutation", func() {
		It("returns the checkout data", func() {
			passes(suite.CheckoutBoleto)
		})

		It("rejects a tampered token", func() {
			passes(suite.CheckoutInvalidToken)
			Expect(harness.ErrorKind(result.Find(suite.CheckoutInvalidToken).ServerErr)).To(Equal(harness.KindAuth))
		})

		It("rejects an unknown product", func() {
			passes(suite.CheckoutUnknown)
			Expect(harness.ErrorKind(result.Find(suite.CheckoutUnknown).ServerErr)).To(Equal(harness.KindNotFound))
		})

		It("takes 5% off for credit card", func() {
			passes(suite.CheckoutCreditCard)
		})
	})

	Describe("Users Query", func() {
		It("returns a non-empty list", func() {
			passes(suite.UsersList)
		})

		It("is idempotent", func() {
			passes(suite.UsersIdempotentName)
		})
	})

	Describe("Authentication Mutations", func() {
		It("registers a new user", func() {
			passes(suite.RegisterCreates)
		})

		It("logs in and returns a token", func() {
			passes(suite.LoginReturnsToken)
		})

		It("rejects invalid credentials", func() {
			passes(suite.LoginInvalid)
		})
	})

	It("passes as a whole", func() {
		passed, failed := result.Counts()
		Expect(failed).To(BeZero())
		Expect(passed).To(Equal(9))
	})
})

var _ = Describe("GraphQL suite against a server that breaks the contract", func() {
	It("reports the discount mismatch with expected and actual values", func() {
		srv := httptest.NewServer(fakeapi.New(fakeapi.WithProduct(2, 210)).Handler())
		DeferCleanup(srv.Close)

		cfg := config.Default()
		res := harness.NewRunner(srv.URL).RunSuite(context.Background(), suite.GraphQL(cfg))

		sc := res.Find(suite.CheckoutCreditCard)
		Expect(sc).ToNot(BeNil())
		Expect(sc.AssertionErr).ToNot(BeNil())
		Expect(sc.AssertionErr.Error()).To(ContainSubstring("Expected: 1900"))
		Expect(sc.AssertionErr.Error()).To(ContainSubstring("Actual: 1995"))
		Expect(res.Find(suite.CheckoutBoleto).Pass()).To(BeTrue())
	})
})

var _ = Describe("Load flows", func() {
	var (
		api     *fakeapi.Server
		runner  *load.Runner
		sleeper *testutil.FakeSleeper
		cfg     *config.Config
	)

	BeforeEach(func() {
		api = fakeapi.New()
		srv := httptest.NewServer(api.Handler())
		DeferCleanup(srv.Close)

		cfg = config.Default()
		sleeper = testutil.NewFakeSleeper()
		runner = load.NewRunner(harness.NewRunner(srv.URL), load.WithSleeper(sleeper))
	})

	It("runs the user checkout flow", func() {
		summary, err := runner.Run(context.Background(), suite.UserCheckoutFlow(cfg), load.Options{
			VUs:        4,
			Iterations: 3,
			ThinkTime:  time.Second,
			Thresholds: cfg.Load.Thresholds,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Iterations).To(Equal(12))
		Expect(summary.Requests).To(Equal(24))
		Expect(summary.Failed).To(BeZero())
		Expect(summary.ChecksFailed).To(BeZero())
		Expect(summary.ChecksPassed).To(Equal(48))
		Expect(summary.Pass()).To(BeTrue())
		Expect(sleeper.Count()).To(Equal(12))
	})

	It("runs the instructor lesson flow", func() {
		summary, err := runner.Run(context.Background(), suite.InstructorLessonFlow(cfg), load.Options{
			VUs:        2,
			Iterations: 5,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Iterations).To(Equal(10))
		Expect(api.Lessons()).To(Equal(10))
	})

	It("exposes every built-in flow by name", func() {
		flows := suite.Flows(cfg)
		Expect(flows).To(HaveKey(suite.UserCheckoutName))
		Expect(flows).To(HaveKey(suite.InstructorLessonName))
		for _, f := range flows {
			Expect(f.Validate()).To(Succeed())
		}
	})
})
