package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Result is the envelope auth operations hand back to callers. Message is
// always user facing; structured errors never leak through it.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// Service drives the authentication lifecycle against an identity backend
// and keeps the local session cache reconciled with it.
type Service struct {
	backend IdentityBackend
	cache   SessionCache
	logger  Logger
}

// NewService creates a Service over the given backend and cache
func NewService(backend IdentityBackend, cache SessionCache) *Service {
	return &Service{
		backend: backend,
		cache:   cache,
		logger:  defLogger{},
	}
}

// WithLogger sets the service logger
func (s *Service) WithLogger(logger Logger) *Service {
	s.logger = logger
	return s
}

// SignUp registers a new account, provisions its profile document and sends
// the verification email. The new session is not cached: the email is still
// unverified and the cache only ever holds verified sessions.
func (s *Service) SignUp(ctx context.Context, email, password, name string, accountType AccountType) Result {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" || password == "" || name == "" {
		return Result{Message: "Email, password, and name are required"}
	}

	if !ValidateEmail(email) {
		return s.failure(ErrInvalidEmail)
	}

	if check := ValidatePassword(password); !check.IsValid {
		return Result{Message: check.Message}
	}

	if _, ok := ParseAccountType(accountType); !ok {
		accountType = AccountTypeDeveloper
	}

	principal, err := s.backend.CreateAccount(ctx, email, password)
	if err != nil {
		s.logger.Error("sign up create account error: %v", err)
		return s.failure(err)
	}

	if err := s.backend.SendVerificationEmail(ctx, principal); err != nil {
		s.logger.Error("sign up verification email error: %v", err)
		return s.failure(err)
	}

	now := time.Now()
	doc := &ProfileDocument{
		Name:          name,
		AccountType:   accountType,
		EmailVerified: false,
		CreatedAt:     &now,
	}

	if err := s.backend.UpsertProfileDocument(ctx, principal.ID(), doc); err != nil {
		s.logger.Error("sign up profile document error: %v", err)
		return s.failure(err)
	}

	user := UserFromPrincipal(principal)
	user.DisplayName = name
	user.AccountType = accountType

	return Result{
		Success: true,
		Message: "Account created successfully! Please check your email to verify your account.",
		User:    user,
	}
}

// SignIn authenticates the credentials and caches the verified session.
// The cache sequence is claimed before the backend call so a sign-in that
// resolves after a later sign-out cannot resurrect the cleared session.
func (s *Service) SignIn(ctx context.Context, email, password string) Result {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" || password == "" {
		return Result{Message: "Email and password are required"}
	}

	seq := s.cache.Begin()

	principal, err := s.backend.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.Info("sign in rejected for %s: %v", email, err)
		return s.failure(err)
	}

	user, err := s.reconcile(ctx, principal, true)
	if err != nil {
		s.logger.Error("sign in profile reconcile error: %v", err)
		return s.failure(err)
	}

	if err := s.cache.Store(ctx, seq, user); err != nil {
		s.logger.Warn("sign in cache store error: %v", err)
	}

	return Result{
		Success: true,
		Message: "Login successful!",
		User:    user,
	}
}

// SignOut ends the backend session. The cache is cleared even when the
// backend call fails so a stale session never outlives a sign-out attempt.
func (s *Service) SignOut(ctx context.Context) Result {
	seq := s.cache.Begin()

	err := s.backend.SignOut(ctx)

	if cerr := s.cache.Clear(ctx, seq); cerr != nil {
		s.logger.Warn("sign out cache clear error: %v", cerr)
	}

	if err != nil {
		s.logger.Error("sign out backend error: %v", err)
		return Result{Message: "Error signing out"}
	}

	return Result{Success: true, Message: "Signed out successfully"}
}

// InitializeAuth reconciles the cache with the backend's current state at
// startup. It waits for exactly one backend notification, syncs the cache
// from it and tears the subscription down; it never stays subscribed.
func (s *Service) InitializeAuth(ctx context.Context) (*User, error) {
	seq := s.cache.Begin()

	first := make(chan Principal, 1)
	sub := s.backend.SubscribeToAuthChanges(func(p Principal) {
		select {
		case first <- p:
		default:
		}
	})
	defer sub.Unsubscribe()

	var principal Principal
	select {
	case principal = <-first:
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "auth initialization interrupted")
	}

	if principal == nil || !principal.EmailVerified() {
		if err := s.cache.Clear(ctx, seq); err != nil {
			s.logger.Warn("initialize auth cache clear error: %v", err)
		}
		return nil, nil
	}

	user, err := s.reconcile(ctx, principal, false)
	if err != nil {
		s.logger.Error("initialize auth reconcile error: %v", err)
		return nil, err
	}

	if err := s.cache.Store(ctx, seq, user); err != nil {
		s.logger.Warn("initialize auth cache store error: %v", err)
	}

	return user, nil
}

// OnAuthStateChange registers a long-lived listener. Verified principals
// are enhanced with their profile document and mirrored into the cache
// before the callback runs; anything else clears the cache and delivers
// nil. The returned subscription stays live until unsubscribed.
func (s *Service) OnAuthStateChange(cb func(user *User)) Subscription {
	return s.backend.SubscribeToAuthChanges(func(p Principal) {
		ctx := context.Background()
		seq := s.cache.Begin()

		if p == nil || !p.EmailVerified() {
			if err := s.cache.Clear(ctx, seq); err != nil {
				s.logger.Warn("auth change cache clear error: %v", err)
			}
			cb(nil)
			return
		}

		user, err := s.reconcile(ctx, p, false)
		if err != nil {
			s.logger.Error("auth change reconcile error: %v", err)
			user = UserFromPrincipal(p)
			MergeProfile(user, nil)
		}

		if err := s.cache.Store(ctx, seq, user); err != nil {
			s.logger.Warn("auth change cache store error: %v", err)
		}

		cb(user)
	})
}

// GetCurrentUser returns the backend's live principal when it is present
// and verified, preferring the cached record when it belongs to the same
// identity since that one carries the merged profile. Without a live
// verified principal it falls back to the cache alone.
func (s *Service) GetCurrentUser(ctx context.Context) *User {
	p, err := s.backend.CurrentPrincipal(ctx)
	if err != nil {
		s.logger.Warn("current principal lookup error: %v", err)
	}

	if p != nil && p.EmailVerified() {
		if cached, ok := s.cache.Read(ctx); ok && cached.ID == p.ID() {
			return cached
		}
		return MergeProfile(UserFromPrincipal(p), nil)
	}

	user, ok := s.cache.Read(ctx)
	if !ok {
		return nil
	}
	return user
}

// IsAuthenticated reports whether the cache holds a verified session
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	user, ok := s.cache.Read(ctx)
	return ok && user.IsAuthenticated()
}

// ResendVerification re-sends the verification email to the currently
// signed-in, still unverified principal.
func (s *Service) ResendVerification(ctx context.Context) Result {
	principal, err := s.backend.CurrentPrincipal(ctx)
	if err != nil {
		s.logger.Error("resend verification principal lookup error: %v", err)
		return s.failure(err)
	}

	if principal == nil {
		return s.failure(ErrNoPrincipal)
	}

	if principal.EmailVerified() {
		return s.failure(ErrAlreadyVerified)
	}

	if err := s.backend.SendVerificationEmail(ctx, principal); err != nil {
		s.logger.Error("resend verification email error: %v", err)
		return s.failure(err)
	}

	return Result{
		Success: true,
		Message: "Verification email sent! Please check your inbox.",
	}
}

// reconcile folds the principal's profile document into a cacheable user
// record. With touchLogin set the document's last-login timestamp and
// verified flag are written back, matching what a successful sign-in does.
func (s *Service) reconcile(ctx context.Context, p Principal, touchLogin bool) (*User, error) {
	user := UserFromPrincipal(p)

	doc, err := s.backend.GetProfileDocument(ctx, p.ID())
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryNotFound {
			doc = nil
		} else {
			return nil, err
		}
	}

	if touchLogin {
		now := time.Now()
		update := &ProfileDocument{
			LastLoginAt:   &now,
			EmailVerified: true,
		}
		if err := s.backend.UpsertProfileDocument(ctx, p.ID(), update); err != nil {
			s.logger.Warn("last login update error: %v", err)
		}
	}

	return MergeProfile(user, doc), nil
}

func (s *Service) failure(err error) Result {
	return Result{Message: UserMessage(err)}
}
