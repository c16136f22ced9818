package harness

// Session holds one virtual user's bearer token.
//
// A Session is owned by exactly one goroutine. It is passed explicitly
// into every call that needs it, so tokens never cross virtual users.
type Session struct {
	token string
}

// NewSession creates an unauthenticated session.
func NewSession() *Session {
	return &Session{}
}

// Token returns the current bearer token, or "" if not authenticated.
func (s *Session) Token() string {
	return s.token
}

// SetToken stores a bearer token.
func (s *Session) SetToken(token string) {
	s.token = token
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.token != ""
}

// Clear drops the token.
func (s *Session) Clear() {
	s.token = ""
}
