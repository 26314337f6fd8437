package auth

import (
	"context"
	"net/http"
)

type CompoundAuthEngine struct {
	engines []AuthEngine
}

// NewCompoundAuthEngine creates a new CompoundAuthEngine with the given AuthEngines.
func NewCompoundAuthEngine(engines ...AuthEngine) *CompoundAuthEngine {
	return &CompoundAuthEngine{
		engines: engines,
	}
}

// Len returns the number of configured engines.
func (e *CompoundAuthEngine) Len() int {
	return len(e.engines)
}

// AuthenticateRequest returns the first user any engine accepts.
func (e *CompoundAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	var firstErr error
	for _, engine := range e.engines {
		user, err := engine.AuthenticateRequest(ctx, r)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, firstErr
}

// FromCredentials builds the engine for the configured credentials. It
// returns nil when none are configured, which disables authentication.
func FromCredentials(accessKeyID, secretAccessKey, token string) AuthEngine {
	var engines []AuthEngine
	if accessKeyID != "" {
		engines = append(engines, NewBasicAuthEngine(accessKeyID, secretAccessKey))
	}
	if token != "" {
		engines = append(engines, NewBearerAuthEngine(token))
	}
	if len(engines) == 0 {
		return nil
	}
	return NewCompoundAuthEngine(engines...)
}
