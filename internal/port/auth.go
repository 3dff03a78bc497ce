package port

import "context"

type Identity struct {
	UserID    string
	Anonymous bool
}

type Authenticator interface {
	// Authenticate verifies a custom token, or signs in anonymously when credential is empty.
	Authenticate(ctx context.Context, credential string) (Identity, error)
}
