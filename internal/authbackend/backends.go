package authbackend

import (
	"context"

	"github.com/kubilitics/kubilitics-backend/internal/auth"
	"github.com/kubilitics/kubilitics-backend/internal/auth/oidc"
	"github.com/kubilitics/kubilitics-backend/internal/auth/saml"
	samllib "github.com/crewjam/saml"
)

// UserRecord is what a credential store (configured inline in rorconfig, or any other
// source an operator wires in) returns for a known principal.
type UserRecord struct {
	PasswordHash string
	Groups       []string
}

// UserStore looks up a principal by name. Implementations back this with whatever the
// deployment configures — an in-memory map built from rorconfig's auth_key/groups
// definitions is the common case.
type UserStore interface {
	Lookup(ctx context.Context, username string) (UserRecord, bool, error)
}

// StaticUserStore is a UserStore backed by a fixed in-memory map, the shape rorconfig's
// Definitions compile down to.
type StaticUserStore map[string]UserRecord

func (s StaticUserStore) Lookup(_ context.Context, username string) (UserRecord, bool, error) {
	rec, ok := s[username]
	return rec, ok, nil
}

// BasicBackend authenticates BasicCredential against a UserStore using bcrypt comparison.
type BasicBackend struct {
	Store UserStore
}

func (b *BasicBackend) Authenticate(ctx context.Context, cred Credential) (*AuthenticatedUser, error) {
	bc, ok := cred.(BasicCredential)
	if !ok {
		return nil, ErrInvalidCredential
	}
	rec, found, err := b.Store.Lookup(ctx, bc.Username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAuthenticationFailed
	}
	if err := auth.CheckPassword(rec.PasswordHash, bc.Password); err != nil {
		return nil, ErrAuthenticationFailed
	}
	return &AuthenticatedUser{ID: bc.Username, Groups: rec.Groups}, nil
}

// ProxyHeaderBackend trusts an upstream reverse proxy's identity headers outright — no
// credential verification happens here, matching ReadonlyREST's proxy_auth rule, which
// defers trust entirely to network placement (the proxy must be the only path to this
// service).
type ProxyHeaderBackend struct{}

func (ProxyHeaderBackend) Authenticate(_ context.Context, cred Credential) (*AuthenticatedUser, error) {
	pc, ok := cred.(ProxyHeaderCredential)
	if !ok {
		return nil, ErrInvalidCredential
	}
	if pc.Username == "" {
		return nil, ErrAuthenticationFailed
	}
	return &AuthenticatedUser{ID: pc.Username, Groups: pc.Groups}, nil
}

// APIKeyStore looks up the bcrypt hash for a plaintext API key's owning principal.
type APIKeyStore interface {
	LookupByKey(ctx context.Context, plaintext string) (owner string, hash string, groups []string, ok bool, err error)
}

// APIKeyBackend authenticates APIKeyCredential by bcrypt-comparing against a configured
// key store, reusing the teacher's GenerateAPIKey/CheckAPIKey primitives.
type APIKeyBackend struct {
	Store APIKeyStore
}

func (b *APIKeyBackend) Authenticate(ctx context.Context, cred Credential) (*AuthenticatedUser, error) {
	kc, ok := cred.(APIKeyCredential)
	if !ok {
		return nil, ErrInvalidCredential
	}
	owner, hash, groups, found, err := b.Store.LookupByKey(ctx, kc.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAuthenticationFailed
	}
	if err := auth.CheckAPIKey(hash, kc.Key); err != nil {
		return nil, ErrAuthenticationFailed
	}
	return &AuthenticatedUser{ID: owner, Groups: groups}, nil
}

// JWTBackend authenticates JWTCredential by verifying the bearer token's signature and
// exposing its sub, uid, username and role claims for @{jwt:path} variable resolution;
// other claims in the token are not exposed.
type JWTBackend struct {
	Secret string
}

func (b *JWTBackend) Authenticate(_ context.Context, cred Credential) (*AuthenticatedUser, error) {
	jc, ok := cred.(JWTCredential)
	if !ok {
		return nil, ErrInvalidCredential
	}
	claims, err := auth.ValidateToken(b.Secret, jc.Raw)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	jwtClaims := map[string]any{
		"sub":      claims.Subject,
		"uid":      claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	}
	return &AuthenticatedUser{ID: claims.UserID, JWTClaims: jwtClaims}, nil
}

// OIDCBackend wraps an already-verified OIDC exchange. The REST host adapter performs the
// authorization-code dance itself (it owns the HTTP redirect flow); this backend only maps
// the resolved oidc.Identity into an AuthenticatedUser for the rule engine.
type OIDCBackend struct {
	Provider *oidc.Provider
}

// AuthenticateIdentity converts an already-resolved OIDC identity. It does not implement
// the Backend interface directly since Credential carries no OIDC variant — OIDC's
// exchange happens out-of-band in the host adapter's callback handler.
func (b *OIDCBackend) AuthenticateIdentity(id *oidc.Identity) *AuthenticatedUser {
	return &AuthenticatedUser{ID: id.Subject, Groups: id.Groups, JWTClaims: map[string]any{
		"email": id.Email,
		"role":  id.Role,
	}}
}

// SAMLBackend mirrors OIDCBackend for SAML assertions.
type SAMLBackend struct {
	Provider *saml.Provider
}

func (b *SAMLBackend) AuthenticateAssertion(ctx context.Context, assertion *samllib.Assertion) (*AuthenticatedUser, error) {
	id, err := b.Provider.ResolveIdentity(ctx, assertion)
	if err != nil {
		return nil, err
	}
	return &AuthenticatedUser{ID: id.Subject, Groups: id.Groups, JWTClaims: map[string]any{
		"email": id.Email,
		"role":  id.Role,
	}}, nil
}

// LDAPBackend is an interface stub: authenticating against an LDAP directory is out of
// scope (no ldap client dependency is wired in), but the Credential union and Chain
// dispatch are complete so a real implementation can be dropped in later.
type LDAPBackend struct{}

func (LDAPBackend) Authenticate(_ context.Context, cred Credential) (*AuthenticatedUser, error) {
	if _, ok := cred.(LDAPCredential); !ok {
		return nil, ErrInvalidCredential
	}
	return nil, ErrAuthenticationFailed
}
