package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
)

type User struct {
	Name string
	// Method is the scheme that authenticated the user ("basic" or "bearer").
	Method string
}

type AuthEngine interface {

	// AuthenticateRequest inspects the request for valid credentials. It
	// returns the authenticated User, or nil when the request carries no
	// credentials this engine understands or they do not match. An error is
	// returned only if the credentials could not be processed at all.
	AuthenticateRequest(ctx context.Context, rq *http.Request) (*User, error)
}

type userKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user stored by WithUser, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
