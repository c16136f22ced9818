package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/roach88/conform/internal/graphql"
)

func gqlError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   nil,
		"errors": []any{map[string]any{"message": msg}},
	})
}

func gqlData(w http.ResponseWriter, op *graphql.Operation, result any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{op.Field: graphql.Project(result, op.Selection)},
	})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []any{map[string]any{"message": "invalid request body"}},
		})
		return
	}

	op, err := graphql.ParseOperation(req.Query, req.Variables)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []any{map[string]any{"message": err.Error()}},
		})
		return
	}

	switch op.Field {
	case "register":
		s.gqlRegister(w, op)
	case "login":
		s.gqlLogin(w, op)
	case "users":
		s.gqlUsers(w, op)
	case "checkout":
		s.gqlCheckout(w, r, op)
	default:
		gqlError(w, fmt.Sprintf("Cannot query field %q", op.Field))
	}
}

func (s *Server) gqlRegister(w http.ResponseWriter, op *graphql.Operation) {
	name, _ := op.Args["name"].(string)
	email, _ := op.Args["email"].(string)
	password, _ := op.Args["password"].(string)

	s.mu.Lock()
	if _, taken := s.byEmail[email]; taken {
		s.mu.Unlock()
		gqlError(w, MsgEmailTaken)
		return
	}
	u := s.addUser(name, email, password)
	s.mu.Unlock()

	gqlData(w, op, map[string]any{"id": u.ID, "name": u.Name, "email": u.Email})
}

func (s *Server) gqlLogin(w http.ResponseWriter, op *graphql.Operation) {
	email, _ := op.Args["email"].(string)
	password, _ := op.Args["password"].(string)

	token, u, ok := s.login(email, password)
	if !ok {
		gqlError(w, MsgInvalidCredentials)
		return
	}
	gqlData(w, op, map[string]any{
		"token": token,
		"user":  map[string]any{"id": u.ID, "name": u.Name, "email": u.Email},
	})
}

func (s *Server) gqlUsers(w http.ResponseWriter, op *graphql.Operation) {
	s.mu.Lock()
	list := make([]any, len(s.users))
	for i, u := range s.users {
		list[i] = map[string]any{"id": u.ID, "name": u.Name, "email": u.Email}
	}
	s.mu.Unlock()

	gqlData(w, op, list)
}

func (s *Server) gqlCheckout(w http.ResponseWriter, r *http.Request, op *graphql.Operation) {
	u, ok := s.userFor(r)
	if !ok {
		gqlError(w, MsgInvalidToken)
		return
	}

	items, err := decodeItems(op.Args["items"])
	if err != nil {
		gqlError(w, err.Error())
		return
	}
	freight := toFloat(op.Args["freight"])
	method, _ := op.Args["paymentMethod"].(string)

	total, ok := s.total(items, freight, method)
	if !ok {
		gqlError(w, MsgProductNotFound)
		return
	}

	gqlData(w, op, checkoutResult(u, items, freight, method, total))
}

func checkoutResult(u *user, items []lineItem, freight float64, method string, total float64) map[string]any {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = map[string]any{"productId": it.ProductID, "quantity": it.Quantity}
	}
	return map[string]any{
		"userId":        u.ID,
		"valorFinal":    total,
		"paymentMethod": method,
		"freight":       freight,
		"items":         list,
	}
}

// decodeItems converts parsed GraphQL list arguments into line items.
func decodeItems(v any) ([]lineItem, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var items []lineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("invalid items: %w", err)
	}
	return items, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
