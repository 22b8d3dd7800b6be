// Package authbackend resolves an inbound credential into the authenticated identity
// an authentication rule matches against. It sits in front of internal/rule's
// authentication-phase rules: the REST host adapter extracts a Credential from the
// request, a Backend authenticates it, and the resulting AuthenticatedUser feeds
// variable.ResolutionContext for @{user}/@{header:X}-style runtime variables.
package authbackend

import (
	"context"
	"errors"
)

// ErrInvalidCredential is returned when a Backend cannot authenticate the given Credential,
// either because it doesn't recognize the concrete type or the credential is malformed.
var ErrInvalidCredential = errors.New("authbackend: invalid credential")

// ErrAuthenticationFailed is returned when a Backend recognizes the Credential but the
// check itself fails (wrong password, bad signature, expired token).
var ErrAuthenticationFailed = errors.New("authbackend: authentication failed")

// Credential is a tagged union of supported authentication inputs. Concrete types:
// BasicCredential, ProxyHeaderCredential, JWTCredential, APIKeyCredential, LDAPCredential.
type Credential interface {
	isCredential()
}

// BasicCredential carries a plaintext username/password pair (HTTP Basic auth).
type BasicCredential struct {
	Username string
	Password string
}

func (BasicCredential) isCredential() {}

// ProxyHeaderCredential carries an identity already authenticated by an upstream reverse
// proxy and forwarded via trusted headers.
type ProxyHeaderCredential struct {
	Username string
	Groups   []string
}

func (ProxyHeaderCredential) isCredential() {}

// JWTCredential carries a raw bearer token to be verified and decoded into claims
// (consumed by @{jwt:path} variables).
type JWTCredential struct {
	Raw string
}

func (JWTCredential) isCredential() {}

// APIKeyCredential carries a plaintext API key.
type APIKeyCredential struct {
	Key string
}

func (APIKeyCredential) isCredential() {}

// LDAPCredential carries a bind username/password for an LDAP directory. Authenticating
// against LDAP is out of scope — this type exists so the Credential union and rule wiring
// are complete, but no concrete Backend implements it; LDAPBackend.Authenticate returns
// ErrAuthenticationFailed for every LDAPCredential (and ErrInvalidCredential for any
// other credential type).
type LDAPCredential struct {
	Username string
	Password string
}

func (LDAPCredential) isCredential() {}

// AuthenticatedUser is the identity a Backend resolves a Credential to.
type AuthenticatedUser struct {
	ID         string
	Groups     []string
	JWTClaims  map[string]any
	Headers    map[string]string
}

// Backend authenticates one kind of Credential into an AuthenticatedUser.
type Backend interface {
	Authenticate(ctx context.Context, cred Credential) (*AuthenticatedUser, error)
}

// Chain tries each Backend in order, returning the first successful authentication and
// otherwise the last error encountered (or ErrInvalidCredential if none applied).
type Chain []Backend

func (c Chain) Authenticate(ctx context.Context, cred Credential) (*AuthenticatedUser, error) {
	var lastErr error = ErrInvalidCredential
	for _, b := range c {
		user, err := b.Authenticate(ctx, cred)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrInvalidCredential) {
			lastErr = err
		}
	}
	return nil, lastErr
}
