package domain

import "time"

// TokenIssuer signs bearer tokens for the admin endpoints.
type TokenIssuer interface {
	Issue(subject string, roles []string, expiry time.Duration) (string, error)
}

// TokenVerifier validates a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}
