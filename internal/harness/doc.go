// Package harness drives a remote GraphQL or REST endpoint through
// declarative scenarios and evaluates their expectations.
//
// A Suite is loaded from YAML, JSON, or CUE, or built in code. The Runner
// executes each Scenario sequentially with an explicit Session:
//
//	runner := harness.NewRunner(baseURL, harness.WithTimeout(5*time.Second))
//	result := runner.RunSuite(ctx, suite)
//	if !result.Pass() { ... }
//
// Responses are read to the end before any expectation runs. Evaluation is
// total: a missing path fails its expectation with a diagnostic instead of
// raising an error.
//
// Failures are reported by class on each ScenarioResult:
//
//   - SetupErr: template, before-all, or pre-request problems
//   - AuthErr: login rejected or no token in the login response
//   - NetworkErr: transport failure or timeout
//   - AssertionErr: one or more expectations failed
//
// Server-reported errors ("Token inválido", "Produto não encontrado") are
// classified into *AuthError, *NotFoundError, or *ServerError and exposed
// as ScenarioResult.ServerErr so scenarios can assert on them with the
// "error" target.
package harness
