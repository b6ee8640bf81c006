package accounts

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Principal is the identity backend's representation of an authenticated
// identity. It carries only what the backend knows; profile attributes live
// in the profile document.
type Principal interface {
	ID() string
	Email() string
	DisplayName() string
	EmailVerified() bool
	IDToken() string
}

// AuthChangeCallback receives the backend's current principal whenever the
// authenticated identity changes. A nil principal means signed out.
type AuthChangeCallback func(p Principal)

// Subscription is the disposable handle returned by change-notification
// registrations. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// IdentityBackend wraps the remote identity provider and its profile
// document store. Implementations must invoke a new subscriber's callback
// synchronously with the current principal before SubscribeToAuthChanges
// returns, so a one-shot listener always observes at least one notification.
type IdentityBackend interface {
	CreateAccount(ctx context.Context, email, password string) (Principal, error)
	SendVerificationEmail(ctx context.Context, p Principal) error

	// Authenticate signs in with email/password. When the principal's email
	// is unverified the backend session is torn down again before the error
	// returns: an unverified session must never persist, even momentarily.
	Authenticate(ctx context.Context, email, password string) (Principal, error)

	SignOut(ctx context.Context) error
	CurrentPrincipal(ctx context.Context) (Principal, error)
	SubscribeToAuthChanges(cb AuthChangeCallback) Subscription

	GetProfileDocument(ctx context.Context, id string) (*ProfileDocument, error)
	UpsertProfileDocument(ctx context.Context, id string, doc *ProfileDocument) error
}

// SessionCache is the local persisted mirror of the last known
// authenticated user: a serialized user record plus an authenticated
// marker. The marker by itself does not imply email verification.
//
// Writers obtain a sequence with Begin when their operation starts; the
// cache drops any write whose sequence is below the last applied one, which
// gives concurrent sign-in/sign-out a defined precedence (the operation
// that started last wins).
type SessionCache interface {
	Begin() uint64
	Store(ctx context.Context, seq uint64, user *User) error
	Read(ctx context.Context) (*User, bool)
	Clear(ctx context.Context, seq uint64) error
	IsAuthenticated(ctx context.Context) bool
}

// Config holds route-guard options
type Config interface {
	GetLoginRoute() string
	GetBrowseRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
