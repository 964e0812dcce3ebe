package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/timesheet-app/timesheet/internal/domain"
)

type userCtxKey struct{}

// TokenIssuer mints and verifies the JWT bearer tokens the REST surface
// runs on.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates an issuer with the shared secret.
func NewTokenIssuer(secret []byte, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, expiration: expiration, now: time.Now}
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue mints a token carrying the user id as subject.
func (ti *TokenIssuer) Issue(user *domain.User) (string, error) {
	now := ti.now().UTC()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, err, "sign token")
	}
	return signed, nil
}

// Verify parses the token and returns the user id it was issued for.
func (ti *TokenIssuer) Verify(tokenString string) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.E(domain.KindNotRegistered, "unexpected signing method")
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return ti.now() }))
	if err != nil || !token.Valid || c.Subject == "" {
		return "", domain.E(domain.KindNotRegistered, "invalid or expired token")
	}
	return c.Subject, nil
}

// requireUser rejects requests without a valid bearer token and loads
// the authenticated user into the request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, r, domain.E(domain.KindNotRegistered, "missing bearer token"))
			return
		}
		userID, err := s.tokens.Verify(strings.TrimPrefix(header, prefix))
		if err != nil {
			writeError(w, r, err)
			return
		}
		user, err := s.store.UserByID(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if user == nil {
			writeError(w, r, domain.E(domain.KindNotRegistered, "unknown user"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func withUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// userFrom returns the authenticated user; requireUser guarantees it is
// present on protected routes.
func userFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userCtxKey{}).(*domain.User)
	return user
}
