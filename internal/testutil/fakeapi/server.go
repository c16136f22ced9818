// Package fakeapi is an in-memory double of the GraphQL and REST server
// exercised by the conformance suites. It exists only so the repository's
// own tests can run without the real server; it implements the observed
// contract (messages, pricing, bearer tokens) and nothing more.
package fakeapi

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Contract messages returned by the server.
const (
	MsgInvalidCredentials = "Credenciais inválidas"
	MsgInvalidToken       = "Token inválido"
	MsgProductNotFound    = "Produto não encontrado"
	MsgEmailTaken         = "Email já cadastrado"
)

// Seeded accounts, matching the fixtures of the load scripts.
const (
	SeedUserName         = "Alice"
	SeedUserEmail        = "alice@email.com"
	SeedUserPassword     = "123456"
	SeedInstructorEmail  = "warlley@warlley.com"
	SeedInstructorSecret = "123456"
)

type user struct {
	ID       int
	Name     string
	Email    string
	Password string
}

// Server is the fake API. Create with New and mount Handler on an
// httptest.Server.
type Server struct {
	mu          sync.Mutex
	users       []*user
	byEmail     map[string]*user
	tokens      map[string]*user
	instructors map[string]string // email -> password
	instrTokens map[string]string // token -> email
	products    map[int]*big.Rat
	lessons     []map[string]any

	latency  time.Duration
	requests atomic.Int64
	router   *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithProduct sets the unit price of a product.
func WithProduct(id int, price float64) Option {
	return func(s *Server) {
		r, _ := new(big.Rat).SetString(strconv.FormatFloat(price, 'f', -1, 64))
		s.products[id] = r
	}
}

// New creates a server seeded with products 1 (100) and 2 (200), the
// REST user, and the instructor account.
func New(opts ...Option) *Server {
	s := &Server{
		byEmail:     make(map[string]*user),
		tokens:      make(map[string]*user),
		instructors: map[string]string{SeedInstructorEmail: SeedInstructorSecret},
		instrTokens: make(map[string]string),
		products: map[int]*big.Rat{
			1: big.NewRat(100, 1),
			2: big.NewRat(200, 1),
		},
	}
	s.addUser(SeedUserName, SeedUserEmail, SeedUserPassword)
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.count)
	r.Use(s.delay)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Post("/graphql", s.handleGraphQL)
	r.Post("/api/users/login", s.handleRESTLogin)
	r.Post("/api/checkout", s.handleRESTCheckout)
	r.Post("/instructors/login", s.handleInstructorLogin)
	r.Post("/lessons", s.handleCreateLesson)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Requests returns the number of requests served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Lessons returns the number of lessons created.
func (s *Server) Lessons() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lessons)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := s.latency; d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// addUser must be called with mu held or before the server is shared.
func (s *Server) addUser(name, email, password string) *user {
	u := &user{ID: len(s.users) + 1, Name: name, Email: email, Password: password}
	s.users = append(s.users, u)
	s.byEmail[email] = u
	return u
}

func (s *Server) login(email, password string) (string, *user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok || u.Password != password {
		return "", nil, false
	}
	token := "tok-" + uuid.NewString()
	s.tokens[token] = u
	return token, u, true
}

func (s *Server) userFor(r *http.Request) (*user, bool) {
	token, ok := bearer(r)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	return u, ok
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	return token, ok && token != ""
}

type lineItem struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

// total prices a checkout. Credit card takes 5% off the product subtotal;
// freight is never discounted. Returns false for an unknown product.
func (s *Server) total(items []lineItem, freight float64, method string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subtotal := new(big.Rat)
	for _, it := range items {
		price, ok := s.products[it.ProductID]
		if !ok {
			return 0, false
		}
		subtotal.Add(subtotal, new(big.Rat).Mul(price, big.NewRat(int64(it.Quantity), 1)))
	}
	if method == "credit_card" {
		subtotal.Mul(subtotal, big.NewRat(95, 100))
	}
	fr, _ := new(big.Rat).SetString(strconv.FormatFloat(freight, 'f', -1, 64))
	f, _ := subtotal.Add(subtotal, fr).Float64()
	return f, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
