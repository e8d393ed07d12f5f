package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// QueryTokenParam names the query parameter browsers use to pass the token on
// websocket upgrades, where they cannot set an Authorization header.
const QueryTokenParam = "access_token"

// Middleware rejects requests without a valid token and stores the caller's
// claims on the ones it lets through.
type Middleware struct {
	cfg    Config
	public map[string]bool
}

// NewMiddleware returns a Middleware that leaves the health and metrics endpoints open.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{cfg: cfg, public: map[string]bool{"/healthz": true, "/metrics": true}}
}

// Wrap guards next.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		var claims *Claims
		if err == nil {
			claims, err = Parse(token, m.cfg)
		}
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// bearerToken takes the token from the Authorization header and falls back to
// the query parameter only when the header is absent.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return r.URL.Query().Get(QueryTokenParam), nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidToken
	}
	return token, nil
}

func unauthorized(w http.ResponseWriter, err error) {
	reason := ErrInvalidToken
	if errors.Is(err, ErrMissingToken) {
		reason = ErrMissingToken
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="campus-health"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}{Type: "unauthorized", Detail: reason.Error()})
}
