package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/kubilitics/kubilitics-backend/internal/config"
	"golang.org/x/oauth2"
)

// Identity is the authenticated principal an OIDC exchange resolves to: who the caller is
// and which groups/role a block's authentication rule can subsequently match against.
type Identity struct {
	Subject  string
	Username string
	Email    string
	Groups   []string
	Role     string
}

// Provider wraps OIDC provider and OAuth2 config
type Provider struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	cfg          *config.Config
	roleMapping  map[string]string // OIDC group -> engine role
	stateStore   map[string]time.Time
	mu           sync.RWMutex
}

// NewProvider creates a new OIDC provider
func NewProvider(ctx context.Context, cfg *config.Config) (*Provider, error) {
	if !cfg.OIDCEnabled || cfg.OIDCIssuerURL == "" {
		return nil, fmt.Errorf("OIDC not enabled or issuer URL not configured")
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := strings.Split(cfg.OIDCScopes, ",")
	for i := range scopes {
		scopes[i] = strings.TrimSpace(scopes[i])
	}
	if len(scopes) == 0 || scopes[0] == "" {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.OIDCClientID,
	})

	// Parse role mapping
	roleMapping := make(map[string]string)
	if cfg.OIDCRoleMapping != "" {
		if err := json.Unmarshal([]byte(cfg.OIDCRoleMapping), &roleMapping); err != nil {
			log.Printf("Failed to parse OIDC role mapping: %v", err)
		}
	}

	p := &Provider{
		provider:     provider,
		oauth2Config: oauth2Config,
		verifier:     verifier,
		cfg:          cfg,
		roleMapping:  roleMapping,
		stateStore:   make(map[string]time.Time),
	}

	// Cleanup expired states every 10 minutes
	go p.cleanupStates()

	return p, nil
}

// GenerateState generates a random state token for OAuth2 flow
func (p *Provider) GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(b)
	p.mu.Lock()
	p.stateStore[state] = time.Now().Add(10 * time.Minute) // State expires in 10 minutes
	p.mu.Unlock()
	return state, nil
}

// ValidateState validates and consumes a state token
func (p *Provider) ValidateState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	expiry, exists := p.stateStore[state]
	if !exists {
		return false
	}
	if time.Now().After(expiry) {
		delete(p.stateStore, state)
		return false
	}
	delete(p.stateStore, state)
	return true
}

// cleanupStates removes expired states periodically
func (p *Provider) cleanupStates() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		p.mu.Lock()
		now := time.Now()
		for state, expiry := range p.stateStore {
			if now.After(expiry) {
				delete(p.stateStore, state)
			}
		}
		p.mu.Unlock()
	}
}

// AuthCodeURL returns the OAuth2 authorization URL
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode exchanges authorization code for tokens
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth2Config.Exchange(ctx, code)
}

// VerifyIDToken verifies and extracts claims from ID token
func (p *Provider) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*oidc.IDToken, map[string]interface{}, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, nil, fmt.Errorf("id_token not found in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	return idToken, claims, nil
}

// GetUserInfo fetches user info from OIDC provider
func (p *Provider) GetUserInfo(ctx context.Context, token *oauth2.Token) (*oidc.UserInfo, error) {
	return p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
}

// ResolveIdentity derives the authenticated Identity from OIDC claims and user info,
// applying the configured group-claim extraction and role mapping.
func (p *Provider) ResolveIdentity(ctx context.Context, claims map[string]interface{}, userInfo *oidc.UserInfo) (*Identity, error) {
	// Extract user identifier (prefer email, fallback to sub)
	email := ""
	if userInfo != nil && userInfo.Email != "" {
		email = userInfo.Email
	} else if e, ok := claims["email"].(string); ok {
		email = e
	}

	sub := ""
	if s, ok := claims["sub"].(string); ok {
		sub = s
	}

	if email == "" && sub == "" {
		return nil, fmt.Errorf("no email or sub claim found")
	}

	username := email
	if username == "" {
		username = sub
	}

	// Extract groups
	groups := []string{}
	if p.cfg.OIDCGroupClaim != "" {
		if g, ok := claims[p.cfg.OIDCGroupClaim].([]interface{}); ok {
			for _, group := range g {
				if gStr, ok := group.(string); ok {
					groups = append(groups, gStr)
				}
			}
		} else if g, ok := claims[p.cfg.OIDCGroupClaim].(string); ok {
			groups = []string{g}
		}
	}

	// Map groups to role
	role := "viewer" // default role
	for _, group := range groups {
		if mappedRole, ok := p.roleMapping[group]; ok {
			role = mappedRole
			break // Use first match
		}
	}

	return &Identity{
		Subject:  sub,
		Username: username,
		Email:    email,
		Groups:   groups,
		Role:     role,
	}, nil
}
