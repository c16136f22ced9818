package graphql

// Selections returned by the server under test.
const (
	UserSelection     = "name email"
	LoginSelection    = "token user { name email }"
	CheckoutSelection = "userId valorFinal paymentMethod freight items { productId quantity }"
)

// Payment methods accepted by checkout.
const (
	PaymentBoleto     = "boleto"
	PaymentCreditCard = "credit_card"
)

// CheckoutItem is one line of a checkout.
type CheckoutItem struct {
	ProductID int `json:"productId" yaml:"productId" mapstructure:"product_id"`
	Quantity  int `json:"quantity" yaml:"quantity" mapstructure:"quantity"`
}

// CardData carries credit-card details for credit_card checkouts.
type CardData struct {
	Number string `json:"number" yaml:"number" mapstructure:"number"`
	Name   string `json:"name" yaml:"name" mapstructure:"name"`
	Expiry string `json:"expiry" yaml:"expiry" mapstructure:"expiry"`
	CVV    string `json:"cvv" yaml:"cvv" mapstructure:"cvv"`
}

// CheckoutInput holds the arguments of the checkout mutation.
type CheckoutInput struct {
	Items         []CheckoutItem `json:"items"`
	Freight       float64        `json:"freight"`
	PaymentMethod string         `json:"paymentMethod"`
	Card          *CardData      `json:"cardData,omitempty"`
}

// RegisterMutation builds register(name, email, password) { name email }.
func RegisterMutation(name, email, password string) string {
	return Mutation(Field("register", []Arg{
		{Name: "name", Value: name},
		{Name: "email", Value: email},
		{Name: "password", Value: password},
	}, UserSelection))
}

// LoginMutation builds login(email, password) { token user { name email } }.
func LoginMutation(email, password string) string {
	return Mutation(Field("login", []Arg{
		{Name: "email", Value: email},
		{Name: "password", Value: password},
	}, LoginSelection))
}

// UsersQuery builds query { users { name email } }.
func UsersQuery() string {
	return Query(Field("users", nil, UserSelection))
}

// CheckoutMutation builds the checkout mutation for in. cardData is always
// sent when present, including for boleto, matching what clients do.
func CheckoutMutation(in CheckoutInput) string {
	items := make([]Object, len(in.Items))
	for i, it := range in.Items {
		items[i] = Object{
			{Name: "productId", Value: it.ProductID},
			{Name: "quantity", Value: it.Quantity},
		}
	}

	args := []Arg{
		{Name: "items", Value: items},
		{Name: "freight", Value: in.Freight},
		{Name: "paymentMethod", Value: in.PaymentMethod},
	}
	if in.Card != nil {
		args = append(args, Arg{Name: "cardData", Value: Object{
			{Name: "number", Value: in.Card.Number},
			{Name: "name", Value: in.Card.Name},
			{Name: "expiry", Value: in.Card.Expiry},
			{Name: "cvv", Value: in.Card.CVV},
		}})
	}
	return Mutation(Field("checkout", args, CheckoutSelection))
}
