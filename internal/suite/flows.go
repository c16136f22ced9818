package suite

import (
	"net/http"

	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/load"
)

// Built-in load flow names.
const (
	UserCheckoutName     = "user-checkout"
	InstructorLessonName = "instructor-lesson"
)

func restPost(path string, body any, auth string) harness.Request {
	return harness.Request{
		Protocol: harness.ProtocolREST,
		Method:   http.MethodPost,
		Path:     path,
		Body:     body,
		Auth:     auth,
	}
}

// UserCheckoutFlow logs the REST user in and places a boleto checkout.
func UserCheckoutFlow(cfg *config.Config) load.Flow {
	fx := cfg.Fixtures
	return load.Flow{
		Name: UserCheckoutName,
		Steps: []load.Step{
			{
				Name: "login",
				Scenario: harness.Scenario{
					Name: "login",
					Request: restPost("/api/users/login", map[string]any{
						"email":    fx.RESTUser.Email,
						"password": fx.RESTUser.Password,
					}, harness.AuthNone),
					Expect: []harness.Expectation{
						{Target: harness.TargetStatus, Op: harness.OpEq, Value: 200},
						{Target: "body.token", Op: harness.OpExists},
					},
				},
				Capture: "token",
			},
			{
				Name: "checkout",
				Scenario: harness.Scenario{
					Name: "checkout",
					Request: restPost("/api/checkout", map[string]any{
						"items":         []any{map[string]any{"productId": fx.RESTProduct.ID, "quantity": fx.RESTProduct.Quantity}},
						"freight":       fx.RESTFreight,
						"paymentMethod": graphql.PaymentBoleto,
					}, harness.AuthSession),
					Expect: []harness.Expectation{
						{Target: harness.TargetStatus, Op: harness.OpEq, Value: 200},
						{Target: "body.valorFinal", Op: harness.OpCheckoutTotal, Pricing: &harness.Pricing{
							Method:  graphql.PaymentBoleto,
							Freight: fx.RESTFreight,
							Items:   []harness.LineItem{{UnitPrice: fx.RESTProduct.UnitPrice, Quantity: fx.RESTProduct.Quantity}},
						}},
					},
				},
			},
		},
	}
}

// InstructorLessonFlow logs the instructor in and creates a lesson.
func InstructorLessonFlow(cfg *config.Config) load.Flow {
	fx := cfg.Fixtures
	return load.Flow{
		Name: InstructorLessonName,
		Steps: []load.Step{
			{
				Name: "instructor login",
				Scenario: harness.Scenario{
					Name: "instructor login",
					Request: restPost("/instructors/login", map[string]any{
						"email":    fx.Instructor.Email,
						"password": fx.Instructor.Password,
					}, harness.AuthNone),
					Expect: []harness.Expectation{
						{Target: harness.TargetStatus, Op: harness.OpEq, Value: 200},
					},
				},
				Capture: "token",
			},
			{
				Name: "create lesson",
				Scenario: harness.Scenario{
					Name: "create lesson",
					Request: restPost("/lessons", map[string]any{
						"title":       fx.Lesson.Title,
						"description": fx.Lesson.Description,
					}, harness.AuthSession),
					Expect: []harness.Expectation{
						{Target: harness.TargetStatus, Op: harness.OpEq, Value: 201},
					},
				},
			},
		},
	}
}

// Flows returns the built-in flows by name.
func Flows(cfg *config.Config) map[string]load.Flow {
	return map[string]load.Flow{
		UserCheckoutName:     UserCheckoutFlow(cfg),
		InstructorLessonName: InstructorLessonFlow(cfg),
	}
}
