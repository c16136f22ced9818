// Package suite builds the built-in conformance suites and load flows
// from configuration fixtures.
package suite

import (
	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/harness"
)

// GraphQLName is the name of the built-in GraphQL suite.
const GraphQLName = "graphql-external"

// Scenario names of the GraphQL suite.
const (
	CheckoutBoleto       = "checkout succeeds and returns its data"
	CheckoutInvalidToken = "checkout with a tampered token is rejected"
	CheckoutUnknown      = "checkout with an unknown product is rejected"
	CheckoutCreditCard   = "credit card checkout takes 5% off the total"
	UsersList            = "users query returns a non-empty list"
	UsersIdempotentName  = "users query is idempotent"
	RegisterCreates      = "register creates a new user"
	LoginReturnsToken    = "login returns a token and the user"
	LoginInvalid         = "login with invalid credentials is rejected"
)

// GraphQL returns the GraphQL external suite: the fixture user is
// registered once before all scenarios and logs in again before each
// scenario that needs a token.
func GraphQL(cfg *config.Config) *harness.Suite {
	fx := cfg.Fixtures
	msgs := cfg.Messages

	checkout := func(p config.Product, freight float64, method string) string {
		return graphql.CheckoutMutation(graphql.CheckoutInput{
			Items:         []graphql.CheckoutItem{{ProductID: p.ID, Quantity: p.Quantity}},
			Freight:       freight,
			PaymentMethod: method,
			Card:          fx.CardData(),
		})
	}
	unknown := fx.BoletoProduct
	unknown.ID = fx.UnknownProduct

	s := &harness.Suite{
		Name:        GraphQLName,
		Description: "GraphQL user, login, users, and checkout contract",
		Setup: []harness.Request{{
			Query: graphql.RegisterMutation(fx.User.Name, fx.User.Email, fx.User.Password),
		}},
		Login: &harness.Login{Email: fx.User.Email, Password: fx.User.Password},
		Scenarios: []harness.Scenario{
			{
				Name:    CheckoutBoleto,
				Request: harness.Request{Auth: harness.AuthSession, Query: checkout(fx.BoletoProduct, fx.Freight, graphql.PaymentBoleto)},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.data.checkout.valorFinal", Op: harness.OpExists},
					{Target: "body.data.checkout.userId", Op: harness.OpExists},
					{Target: "body.data.checkout.paymentMethod", Value: graphql.PaymentBoleto},
					{Target: "body.data.checkout.freight", Value: fx.Freight},
				},
			},
			{
				Name:    CheckoutInvalidToken,
				Request: harness.Request{Auth: harness.AuthTampered, Query: checkout(fx.BoletoProduct, fx.Freight, graphql.PaymentBoleto)},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.errors", Op: harness.OpExists},
					{Target: "body.errors[0].message", Value: msgs.InvalidToken},
					{Target: harness.TargetError, Value: harness.KindAuth},
				},
			},
			{
				Name:    CheckoutUnknown,
				Request: harness.Request{Auth: harness.AuthSession, Query: checkout(unknown, fx.Freight, graphql.PaymentBoleto)},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.errors", Op: harness.OpExists},
					{Target: "body.errors[0].message", Value: msgs.ProductNotFound},
					{Target: harness.TargetError, Value: harness.KindNotFound},
				},
			},
			{
				Name:    CheckoutCreditCard,
				Request: harness.Request{Auth: harness.AuthSession, Query: checkout(fx.CardProduct, 0, graphql.PaymentCreditCard)},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.data.checkout.paymentMethod", Value: graphql.PaymentCreditCard},
					{Target: "body.data.checkout.valorFinal", Op: harness.OpCheckoutTotal, Pricing: &harness.Pricing{
						Method: graphql.PaymentCreditCard,
						Items:  []harness.LineItem{{UnitPrice: fx.CardProduct.UnitPrice, Quantity: fx.CardProduct.Quantity}},
					}},
				},
			},
			{
				Name:    UsersList,
				Request: harness.Request{Query: graphql.UsersQuery()},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.data.users", Op: harness.OpType, Value: "array"},
					{Target: "body.data.users", Op: harness.OpLenGt, Value: 0},
				},
			},
			UsersIdempotent(cfg),
			{
				Name: RegisterCreates,
				Let:  map[string]string{"email": "test{{unix_ms}}-{{uuid}}@example.com"},
				Request: harness.Request{
					Query: graphql.RegisterMutation("Test User", "{{email}}", "123456"),
				},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.data.register.name", Value: "Test User"},
					{Target: "body.data.register.email", Value: "{{email}}"},
				},
			},
			{
				Name: LoginReturnsToken,
				Let:  map[string]string{"email": "login{{unix_ms}}-{{uuid}}@example.com"},
				Setup: []harness.Request{{
					Query: graphql.RegisterMutation("Login Test User", "{{email}}", "123456"),
				}},
				Request: harness.Request{Query: graphql.LoginMutation("{{email}}", "123456")},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.data.login.token", Op: harness.OpExists},
					{Target: "body.data.login.user.name", Value: "Login Test User"},
					{Target: "body.data.login.user.email", Value: "{{email}}"},
				},
			},
			{
				Name:    LoginInvalid,
				Request: harness.Request{Query: graphql.LoginMutation("invalid@example.com", "wrongpassword")},
				Expect: []harness.Expectation{
					{Target: harness.TargetStatus, Value: 200},
					{Target: "body.errors", Op: harness.OpExists},
					{Target: "body.errors[0].message", Value: msgs.InvalidCredentials},
					{Target: harness.TargetError, Value: harness.KindAuth},
				},
			},
		},
	}
	s.ApplyDefaults()
	return s
}

// UsersIdempotent reads the user list twice in a row and expects both
// reads to return the same list.
func UsersIdempotent(cfg *config.Config) harness.Scenario {
	return harness.Scenario{
		Name:        UsersIdempotentName,
		Description: "users query issued twice returns the same set",
		Setup:       []harness.Request{{Query: graphql.UsersQuery()}},
		Request:     harness.Request{Query: graphql.UsersQuery()},
		Expect: []harness.Expectation{
			{Target: harness.TargetStatus, Value: 200},
			{Target: "setup[0].body.data.users", Op: harness.OpLenGt, Value: 0},
			{Target: "body.data.users", Ref: "setup[0].body.data.users"},
			{Target: "body.data.users", Op: harness.OpContains, Value: map[string]any{
				"name": cfg.Fixtures.User.Name, "email": cfg.Fixtures.User.Email,
			}},
		},
	}
}
