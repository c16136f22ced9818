package fakeapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func restError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleRESTLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		restError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, _, ok := s.login(c.Email, c.Password)
	if !ok {
		restError(w, http.StatusUnauthorized, MsgInvalidCredentials)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleRESTCheckout(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(r)
	if !ok {
		restError(w, http.StatusUnauthorized, MsgInvalidToken)
		return
	}

	var body struct {
		Items         []lineItem `json:"items"`
		Freight       float64    `json:"freight"`
		PaymentMethod string     `json:"paymentMethod"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		restError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	total, ok := s.total(body.Items, body.Freight, body.PaymentMethod)
	if !ok {
		restError(w, http.StatusNotFound, MsgProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResult(u, body.Items, body.Freight, body.PaymentMethod, total))
}

func (s *Server) handleInstructorLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		restError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	password, ok := s.instructors[c.Email]
	if !ok || password != c.Password {
		s.mu.Unlock()
		restError(w, http.StatusUnauthorized, MsgInvalidCredentials)
		return
	}
	token := "inst-" + uuid.NewString()
	s.instrTokens[token] = c.Email
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r)
	s.mu.Lock()
	_, known := s.instrTokens[token]
	s.mu.Unlock()
	if !ok || !known {
		restError(w, http.StatusUnauthorized, MsgInvalidToken)
		return
	}

	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
		restError(w, http.StatusBadRequest, "title is required")
		return
	}

	s.mu.Lock()
	lesson := map[string]any{"id": len(s.lessons) + 1, "title": body.Title, "description": body.Description}
	s.lessons = append(s.lessons, lesson)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, lesson)
}
