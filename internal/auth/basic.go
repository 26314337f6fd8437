package auth

import (
	"context"
	"net/http"
)

type BasicAuthEngine struct {
	AccessKeyID     string
	SecretAccessKey string
}

// NewBasicAuthEngine creates a new BasicAuthEngine with the given access key ID
// and secret access key.
func NewBasicAuthEngine(accessKeyID, secretAccessKey string) *BasicAuthEngine {
	return &BasicAuthEngine{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
	}
}

// AuthenticateRequest checks the Authorization header for valid Basic Auth
// credentials.
func (e *BasicAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	user, pass, ok := r.BasicAuth()
	if !ok || e.AccessKeyID == "" {
		return nil, nil
	}

	// Evaluate both comparisons so timing does not reveal which one failed.
	userOK := secureEqual(user, e.AccessKeyID)
	passOK := secureEqual(pass, e.SecretAccessKey)
	if !userOK || !passOK {
		return nil, nil
	}

	return &User{Name: user, Method: "basic"}, nil
}
