package harness

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported by classification and matched by "error" targets.
const (
	KindNone     = "none"
	KindAuth     = "auth"
	KindNotFound = "not_found"
	KindServer   = "server"
	KindNetwork  = "network"
)

// Messages are the server error strings that classify a response.
// They are part of the server's contract and matched verbatim after
// Unicode normalization.
type Messages struct {
	InvalidCredentials string `mapstructure:"invalid_credentials" json:"invalid_credentials"`
	InvalidToken       string `mapstructure:"invalid_token" json:"invalid_token"`
	ProductNotFound    string `mapstructure:"product_not_found" json:"product_not_found"`
}

// DefaultMessages returns the contract strings of the server under test.
func DefaultMessages() Messages {
	return Messages{
		InvalidCredentials: "Credenciais inválidas",
		InvalidToken:       "Token inválido",
		ProductNotFound:    "Produto não encontrado",
	}
}

// AuthError reports rejected credentials, a rejected token, or a login
// response without a token.
type AuthError struct {
	Op      string // "login" or "execute"
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth error during %s (status %d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("auth error during %s: %s", e.Op, e.Message)
}

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Message string
	Status  int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Message)
}

// ServerError reports any other error message returned by the server.
type ServerError struct {
	Message string
	Status  int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.Status, e.Message)
}

// NetworkError reports a request that did not complete: transport
// failure, timeout, or a body that could not be fully read.
type NetworkError struct {
	Op      string
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network error during %s %s: timeout: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("network error during %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AssertionError is returned when one or more expectations fail.
// It lists every failed expectation with expected and actual values.
type AssertionError struct {
	Scenario string
	Failures []ExpectationResult
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (%d failed)\n", e.Scenario, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&buf, "  %s %s\n", f.Target, f.Op)
		fmt.Fprintf(&buf, "    Expected: %s\n", f.Expected)
		fmt.Fprintf(&buf, "    Actual: %s\n", f.Actual)
		if f.Message != "" {
			fmt.Fprintf(&buf, "    %s\n", f.Message)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var (
		authErr     *AuthError
		notFoundErr *NotFoundError
		serverErr   *ServerError
		networkErr  *NetworkError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &networkErr):
		return KindNetwork
	case errors.As(err, &serverErr):
		return KindServer
	default:
		return KindServer
	}
}
