package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeySubject contextKey = "subject_email"

// Authorization is the verdict from the external authorization boundary.
type Authorization struct {
	Authorized bool            `json:"authorized"`
	UserData   json.RawMessage `json:"userData,omitempty"`
}

// Authorizer checks whether a subject email may use the service.
type Authorizer interface {
	Authorize(ctx context.Context, email string) (*Authorization, error)
}

// ErrAuthorizerUnconfigured marks a missing authorization backend. There is
// no allow-all fallback in production; tests inject StaticAuthorizer.
var ErrAuthorizerUnconfigured = errors.New("gateway: authorization backend not configured")

// HTTPAuthorizer queries an external user database over HTTP.
type HTTPAuthorizer struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// Authorize posts the email to the external check-user endpoint. A 404 is a
// definitive "not authorized", not an error.
func (a *HTTPAuthorizer) Authorize(ctx context.Context, email string) (*Authorization, error) {
	base := strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if base == "" {
		return nil, ErrAuthorizerUnconfigured
	}
	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/check-user", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(a.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: authorization check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &Authorization{Authorized: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: authorization check failed: status=%d", resp.StatusCode)
	}
	var verdict Authorization
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("gateway: decode authorization response: %w", err)
	}
	return &verdict, nil
}

// StaticAuthorizer is an injectable test double with a fixed allowlist.
type StaticAuthorizer struct {
	Allowed map[string]bool
}

// Authorize consults the fixed allowlist.
func (a *StaticAuthorizer) Authorize(_ context.Context, email string) (*Authorization, error) {
	return &Authorization{Authorized: a.Allowed[strings.ToLower(strings.TrimSpace(email))]}, nil
}

// sessionTTL bounds how long an issued session token stays valid.
const sessionTTL = 24 * time.Hour

func (s *Server) issueToken(email string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strings.ToLower(strings.TrimSpace(email)),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		Issuer:    "satspay",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.sessionSecret)
}

func (s *Server) parseToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.sessionSecret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid session token")
	}
	return claims.Subject, nil
}

// requireSession authenticates the bearer token and stores the subject
// email on the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		subject, err := s.parseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, errors.New("invalid session token"))
			return
		}
		ctx := context.WithValue(r.Context(), contextKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFromContext returns the authenticated subject email, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(contextKeySubject).(string)
	return subject, ok && subject != ""
}
