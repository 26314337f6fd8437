package auth

import (
	"context"
	"net/http"
	"strings"
)

const (
	BearerPrefix = "Bearer "
)

// BearerAuthEngine accepts a single static API token, typically shared with
// the membership application backend.
type BearerAuthEngine struct {
	Token string
}

func NewBearerAuthEngine(token string) *BearerAuthEngine {
	return &BearerAuthEngine{Token: token}
}

func (e *BearerAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	header := r.Header.Get("Authorization")
	if e.Token == "" || len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return nil, nil
	}

	if !secureEqual(strings.TrimSpace(header[len(BearerPrefix):]), e.Token) {
		return nil, nil
	}

	return &User{Name: "api", Method: "bearer"}, nil
}
