package localid

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	accounts "github.com/oshub-dev/go-accounts"
)

// MaxLoginAttempts is the maximum number of attempts an account gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 24 * time.Hour

// Backend implements accounts.IdentityBackend over local Bun storage.
// The current principal lives in process; there is no remote session.
type Backend struct {
	repos       accounts.RepositoryManager
	tokens      *accounts.TokenService
	mailer      Mailer
	logger      accounts.Logger
	broadcaster *accounts.AuthChangeBroadcaster

	mu      sync.Mutex
	current accounts.Principal

	// notifyMu serializes state writes with their broadcasts so
	// notifications are delivered in the order the writes happened
	notifyMu sync.Mutex
}

var _ accounts.IdentityBackend = (*Backend)(nil)

// New creates a Backend over the given repositories
func New(repos accounts.RepositoryManager, tokens *accounts.TokenService) *Backend {
	b := &Backend{
		repos:       repos,
		tokens:      tokens,
		broadcaster: accounts.NewAuthChangeBroadcaster(),
	}
	b.logger = defLogger{}
	b.mailer = logMailer{logger: b.logger}
	return b
}

// WithLogger sets the backend logger
func (b *Backend) WithLogger(logger accounts.Logger) *Backend {
	b.logger = logger
	if lm, ok := b.mailer.(logMailer); ok {
		lm.logger = logger
		b.mailer = lm
	}
	return b
}

// WithMailer sets the verification mailer
func (b *Backend) WithMailer(mailer Mailer) *Backend {
	b.mailer = mailer
	return b
}

// CreateAccount registers the credentials and signs the new, unverified
// principal in.
func (b *Backend) CreateAccount(ctx context.Context, email, password string) (accounts.Principal, error) {
	hash, err := accounts.HashPassword(password)
	if err != nil {
		return nil, err
	}

	if _, err := b.repos.Accounts().GetByEmail(ctx, email); err == nil {
		return nil, accounts.ErrEmailTaken
	} else if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
	}

	record := &accounts.Account{
		Email:        email,
		PasswordHash: hash,
	}

	err = b.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err = b.repos.Accounts().RegisterTx(ctx, tx, record)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p, err := b.principalFor(record, "")
	if err != nil {
		return nil, err
	}

	b.setCurrent(p)

	return p, nil
}

// SendVerificationEmail delivers the verification link for the principal
func (b *Backend) SendVerificationEmail(ctx context.Context, p accounts.Principal) error {
	if p == nil {
		return accounts.ErrNoPrincipal
	}

	record, err := b.repos.Accounts().GetByEmail(ctx, p.Email())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return accounts.ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for verification email")
	}

	return b.mailer.SendVerification(ctx, record.Email, record.VerificationToken)
}

// Authenticate verifies the credentials. Unverified principals never stay
// signed in: the in-process session is cleared again before the error
// returns.
func (b *Backend) Authenticate(ctx context.Context, email, password string) (accounts.Principal, error) {
	record, err := b.repos.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, accounts.ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during verification")
	}

	attempts := record.LoginAttempts
	if record.LoginAttemptAt != nil && time.Since(*record.LoginAttemptAt) > CoolDownPeriod {
		attempts = 0
	}

	if attempts > MaxLoginAttempts {
		return nil, accounts.ErrTooManyAttempts
	}

	if err := accounts.ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		if err2 := b.repos.Accounts().TrackAttemptedLogin(ctx, record); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}
		return nil, accounts.ErrWrongPassword
	}

	if err := b.repos.Accounts().TrackSuccessfulLogin(ctx, record); err != nil {
		b.logger.Error("failed to track successful login: %v", err)
	}

	if !record.EmailVerified {
		b.setCurrent(nil)
		return nil, accounts.ErrEmailUnverified
	}

	p, err := b.principalFor(record, "")
	if err != nil {
		return nil, err
	}

	b.setCurrent(p)

	return p, nil
}

// SignOut clears the in-process session
func (b *Backend) SignOut(ctx context.Context) error {
	b.setCurrent(nil)
	return nil
}

// CurrentPrincipal returns the in-process session principal, if any
func (b *Backend) CurrentPrincipal(ctx context.Context) (accounts.Principal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, nil
}

// SubscribeToAuthChanges registers the callback and invokes it with the
// current principal before returning.
func (b *Backend) SubscribeToAuthChanges(cb accounts.AuthChangeCallback) accounts.Subscription {
	sub := b.broadcaster.Subscribe(cb)

	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	cb(current)

	return sub
}

// GetProfileDocument loads the profile for the given principal identifier
func (b *Backend) GetProfileDocument(ctx context.Context, id string) (*accounts.ProfileDocument, error) {
	return b.repos.Profiles().GetByPrincipalID(ctx, id)
}

// UpsertProfileDocument merges the non-zero document fields over the
// stored profile.
func (b *Backend) UpsertProfileDocument(ctx context.Context, id string, doc *accounts.ProfileDocument) error {
	_, err := b.repos.Profiles().Merge(ctx, id, doc)
	return err
}

// VerifyEmail consumes a verification token and marks the account
// verified. When the verified account is the current session the principal
// is refreshed and rebroadcast.
func (b *Backend) VerifyEmail(ctx context.Context, token string) (accounts.Principal, error) {
	record, err := b.repos.Accounts().VerifyByToken(ctx, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, accounts.ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify account")
	}

	if _, err := b.repos.Profiles().Merge(ctx, record.ID.String(), &accounts.ProfileDocument{
		EmailVerified: true,
	}); err != nil {
		b.logger.Warn("failed to mirror verification into profile: %v", err)
	}

	p, err := b.principalFor(record, "")
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	sameSession := b.current != nil && b.current.ID() == p.ID()
	b.mu.Unlock()

	if sameSession {
		b.setCurrent(p)
	}

	return p, nil
}

func (b *Backend) principalFor(record *accounts.Account, displayName string) (accounts.Principal, error) {
	token := ""
	if b.tokens != nil {
		var err error
		token, err = b.tokens.Mint(record.ID.String(), record.Email, displayName, record.EmailVerified)
		if err != nil {
			return nil, err
		}
	}

	return principal{
		id:            record.ID.String(),
		email:         record.Email,
		displayName:   displayName,
		emailVerified: record.EmailVerified,
		idToken:       token,
	}, nil
}

func (b *Backend) setCurrent(p accounts.Principal) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	b.current = p
	b.mu.Unlock()

	b.broadcaster.Publish(p)
}

type logMailer struct {
	logger accounts.Logger
}

func (m logMailer) SendVerification(ctx context.Context, email, token string) error {
	m.logger.Info("verification email for %s, token: %s", email, token)
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) { fmt.Printf("[ERR] LOCALID "+format+"\n", args...) }
func (d defLogger) Warn(format string, args ...any)  { fmt.Printf("[WRN] LOCALID "+format+"\n", args...) }
func (d defLogger) Info(format string, args ...any)  { fmt.Printf("[INF] LOCALID "+format+"\n", args...) }
func (d defLogger) Debug(format string, args ...any) { fmt.Printf("[DBG] LOCALID "+format+"\n", args...) }
