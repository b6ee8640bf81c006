package identikit

import (
	"context"
	"fmt"
	"sync"

	accounts "github.com/oshub-dev/go-accounts"
)

// Backend implements accounts.IdentityBackend against the hosted service.
// The remote session is the ID token; signing out discards it locally, the
// service keeps no server-side session to tear down.
type Backend struct {
	client      *Client
	validator   accounts.TokenValidator
	logger      accounts.Logger
	broadcaster *accounts.AuthChangeBroadcaster

	mu      sync.Mutex
	current *principal

	// notifyMu serializes state writes with their broadcasts so
	// notifications are delivered in the order the writes happened
	notifyMu sync.Mutex
}

var _ accounts.IdentityBackend = (*Backend)(nil)

// New creates a Backend for the configured service. When the config names
// a JWKS URL, ID tokens are validated locally before they are trusted.
func New(cfg Config) (*Backend, error) {
	b := &Backend{
		client:      NewClient(cfg),
		logger:      defLogger{},
		broadcaster: accounts.NewAuthChangeBroadcaster(),
	}

	if cfg.JWKSURL != "" {
		validator, err := accounts.NewJWKSValidator(cfg.JWKSURL, cfg.Issuer, cfg.Audience, b.logger)
		if err != nil {
			return nil, err
		}
		b.validator = validator
	}

	return b, nil
}

// WithLogger sets the backend logger
func (b *Backend) WithLogger(logger accounts.Logger) *Backend {
	b.logger = logger
	return b
}

// WithTokenValidator overrides the ID token validator
func (b *Backend) WithTokenValidator(validator accounts.TokenValidator) *Backend {
	b.validator = validator
	return b
}

// CreateAccount registers the credentials with the service. The new
// session starts unverified.
func (b *Backend) CreateAccount(ctx context.Context, email, password string) (accounts.Principal, error) {
	session, err := b.client.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := b.checkToken(session.IDToken); err != nil {
		return nil, err
	}

	p := &principal{
		id:      session.LocalID,
		email:   session.Email,
		idToken: session.IDToken,
	}

	b.setCurrent(p)

	return p, nil
}

// SendVerificationEmail triggers the service's verification email
func (b *Backend) SendVerificationEmail(ctx context.Context, p accounts.Principal) error {
	if p == nil {
		return accounts.ErrNoPrincipal
	}
	return b.client.SendVerificationEmail(ctx, p.IDToken())
}

// Authenticate signs in against the service. Unverified principals never
// stay signed in: the session is discarded again before the error returns.
func (b *Backend) Authenticate(ctx context.Context, email, password string) (accounts.Principal, error) {
	session, err := b.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := b.checkToken(session.IDToken); err != nil {
		return nil, err
	}

	info, err := b.client.Lookup(ctx, session.IDToken)
	if err != nil {
		return nil, err
	}

	p := &principal{
		id:            info.LocalID,
		email:         info.Email,
		displayName:   info.DisplayName,
		emailVerified: info.EmailVerified,
		idToken:       session.IDToken,
	}

	if !p.emailVerified {
		b.setCurrent(nil)
		return nil, accounts.ErrEmailUnverified
	}

	b.setCurrent(p)

	return p, nil
}

// SignOut discards the local session
func (b *Backend) SignOut(ctx context.Context) error {
	b.setCurrent(nil)
	return nil
}

// CurrentPrincipal returns the session principal, if any
func (b *Backend) CurrentPrincipal(ctx context.Context) (accounts.Principal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return nil, nil
	}
	return b.current, nil
}

// SubscribeToAuthChanges registers the callback and invokes it with the
// current principal before returning.
func (b *Backend) SubscribeToAuthChanges(cb accounts.AuthChangeCallback) accounts.Subscription {
	sub := b.broadcaster.Subscribe(cb)

	b.mu.Lock()
	var current accounts.Principal
	if b.current != nil {
		current = b.current
	}
	b.mu.Unlock()

	cb(current)

	return sub
}

// GetProfileDocument loads the profile for the given principal identifier
func (b *Backend) GetProfileDocument(ctx context.Context, id string) (*accounts.ProfileDocument, error) {
	return b.client.GetProfile(ctx, b.currentToken(), id)
}

// UpsertProfileDocument merges the document fields into the stored profile
func (b *Backend) UpsertProfileDocument(ctx context.Context, id string, doc *accounts.ProfileDocument) error {
	return b.client.PatchProfile(ctx, b.currentToken(), id, doc)
}

// Close releases the JWKS refresh loop when one is running
func (b *Backend) Close() {
	if v, ok := b.validator.(*accounts.JWKSValidator); ok {
		v.Close()
	}
}

// checkToken validates the token locally when a validator is configured
func (b *Backend) checkToken(idToken string) error {
	if b.validator == nil {
		return nil
	}

	if _, err := b.validator.Validate(idToken); err != nil {
		b.logger.Error("service issued a token that fails validation: %v", err)
		return err
	}
	return nil
}

func (b *Backend) currentToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return ""
	}
	return b.current.idToken
}

func (b *Backend) setCurrent(p *principal) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	b.current = p
	b.mu.Unlock()

	if p == nil {
		b.broadcaster.Publish(nil)
		return
	}
	b.broadcaster.Publish(p)
}

type principal struct {
	id            string
	email         string
	displayName   string
	emailVerified bool
	idToken       string
}

func (p *principal) ID() string          { return p.id }
func (p *principal) Email() string       { return p.email }
func (p *principal) DisplayName() string { return p.displayName }
func (p *principal) EmailVerified() bool { return p.emailVerified }
func (p *principal) IDToken() string     { return p.idToken }

var _ accounts.Principal = (*principal)(nil)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) { fmt.Printf("[ERR] IDENTIKIT "+format+"\n", args...) }
func (d defLogger) Warn(format string, args ...any)  { fmt.Printf("[WRN] IDENTIKIT "+format+"\n", args...) }
func (d defLogger) Info(format string, args ...any)  { fmt.Printf("[INF] IDENTIKIT "+format+"\n", args...) }
func (d defLogger) Debug(format string, args ...any) { fmt.Printf("[DBG] IDENTIKIT "+format+"\n", args...) }
