package courtapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

// Session is an authenticated connection to one court instance. Opening a
// session for a credential invalidates any other session of the same login,
// so callers must never hold two sessions of one identity at once.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator opens sessions. The concrete login mechanics live outside
// this service; AuthMaterial is passed through untouched.
type Authenticator interface {
	Authenticate(ctx context.Context, court domain.CourtConfig, cred domain.CredentialDescriptor) (Session, error)
}

// TokenAuthenticator treats the credential's auth material as a bearer token
// issued by the external login flow.
type TokenAuthenticator struct {
	client *http.Client
}

func NewTokenAuthenticator(timeout time.Duration) *TokenAuthenticator {
	return &TokenAuthenticator{client: &http.Client{Timeout: timeout}}
}

func (a *TokenAuthenticator) Authenticate(_ context.Context, court domain.CourtConfig, cred domain.CredentialDescriptor) (Session, error) {
	token := strings.TrimSpace(cred.AuthMaterial)
	if token == "" {
		return nil, &domain.ValidationError{Field: "auth_material", Reason: fmt.Sprintf("credential %s has no auth material for %s", cred.ID, court.Code)}
	}
	return &tokenSession{client: a.client, token: token, instance: string(court.InstanceLevel)}, nil
}

type tokenSession struct {
	client   *http.Client
	token    string
	instance string
}

func (s *tokenSession) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-Instance-Level", s.instance)
	return s.client.Do(req)
}
