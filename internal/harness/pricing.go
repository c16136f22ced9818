package harness

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/value"
)

// creditCardRate is the fraction of the product subtotal charged for
// credit-card payments (a 5% discount).
var creditCardRate = big.NewRat(95, 100)

// LineItem is one priced line of a checkout.
type LineItem struct {
	UnitPrice float64 `yaml:"unit_price" json:"unit_price" mapstructure:"unit_price"`
	Quantity  int     `yaml:"quantity" json:"quantity" mapstructure:"quantity"`
}

// Pricing parameterizes a checkout_total expectation.
type Pricing struct {
	Method  string     `yaml:"method" json:"method"`
	Freight float64    `yaml:"freight" json:"freight"`
	Items   []LineItem `yaml:"items" json:"items"`
}

// Validate checks that the pricing inputs are usable.
func (p *Pricing) Validate() error {
	_, err := ExpectedTotal(p.Items, p.Freight, p.Method)
	return err
}

// Total returns the expected checkout total.
func (p *Pricing) Total() (value.Number, error) {
	r, err := ExpectedTotal(p.Items, p.Freight, p.Method)
	if err != nil {
		return "", err
	}
	return value.FromRat(r), nil
}

// ExpectedTotal recomputes the server's checkout total:
//
//	credit_card: sum(unit_price * quantity) * 0.95 + freight
//	boleto:      sum(unit_price * quantity) + freight
//
// The discount never applies to freight. Arithmetic is exact so the
// result can be compared with the server's value without tolerance.
func ExpectedTotal(items []LineItem, freight float64, method string) (*big.Rat, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}
	if freight < 0 {
		return nil, fmt.Errorf("freight must be non-negative, got %v", freight)
	}

	subtotal := new(big.Rat)
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: quantity must be positive, got %d", i, it.Quantity)
		}
		if it.UnitPrice < 0 {
			return nil, fmt.Errorf("items[%d]: unit_price must be non-negative, got %v", i, it.UnitPrice)
		}
		line := new(big.Rat).Mul(decimalRat(it.UnitPrice), big.NewRat(int64(it.Quantity), 1))
		subtotal.Add(subtotal, line)
	}

	switch method {
	case graphql.PaymentCreditCard:
		subtotal.Mul(subtotal, creditCardRate)
	case graphql.PaymentBoleto:
	default:
		return nil, fmt.Errorf("unknown payment method %q", method)
	}
	return subtotal.Add(subtotal, decimalRat(freight)), nil
}

// decimalRat converts f through its shortest decimal literal, so 0.1
// becomes exactly 1/10 rather than its binary approximation.
func decimalRat(f float64) *big.Rat {
	r, _ := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	return r
}
