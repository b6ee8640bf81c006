package accounts

import (
	"context"
	"sync"
)

// SessionSnapshot is a point-in-time copy of the session state. Loading is
// true until Start has finished its first reconciliation pass.
type SessionSnapshot struct {
	User            *User `json:"user,omitempty"`
	IsAuthenticated bool  `json:"is_authenticated"`
	Loading         bool  `json:"loading"`
}

// SessionState holds the live authentication state the route guards and
// page handlers read. It hydrates from the session cache immediately,
// reconciles against the backend once, then follows backend notifications
// until closed.
type SessionState struct {
	service *Service
	logger  Logger

	mu      sync.RWMutex
	user    *User
	authed  bool
	loading bool
	sub     Subscription
}

// NewSessionState creates a state container over the given service. The
// state reports loading until Start completes.
func NewSessionState(service *Service) *SessionState {
	return &SessionState{
		service: service,
		logger:  defLogger{},
		loading: true,
	}
}

// WithLogger sets the state logger
func (s *SessionState) WithLogger(logger Logger) *SessionState {
	s.logger = logger
	return s
}

// Start brings the state online: hydrate from the cache for an instant
// answer, reconcile with the backend exactly once, re-read the cache the
// reconciliation may have rewritten, then subscribe for ongoing changes.
// Only after all of that does loading drop to false.
func (s *SessionState) Start(ctx context.Context) error {
	if user, ok := s.service.cache.Read(ctx); ok {
		s.set(user, user.IsAuthenticated())
	}

	if _, err := s.service.InitializeAuth(ctx); err != nil {
		s.logger.Error("session state initialization error: %v", err)
		return err
	}

	if user, ok := s.service.cache.Read(ctx); ok {
		s.set(user, user.IsAuthenticated())
	} else {
		s.set(nil, false)
	}

	sub := s.service.OnAuthStateChange(func(user *User) {
		s.set(user, user.IsAuthenticated())
	})

	s.mu.Lock()
	s.sub = sub
	s.loading = false
	s.mu.Unlock()

	return nil
}

// Snapshot returns a copy of the current state
func (s *SessionState) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := SessionSnapshot{
		IsAuthenticated: s.authed,
		Loading:         s.loading,
	}
	if s.user != nil {
		clone := *s.user
		snap.User = &clone
	}
	return snap
}

// Login runs the sign-in flow and, on success, adopts the returned user.
// The state turns authenticated even while loading was never started.
func (s *SessionState) Login(ctx context.Context, email, password string) Result {
	res := s.service.SignIn(ctx, email, password)
	if res.Success {
		s.set(res.User, true)
	}
	return res
}

// Signup runs the registration flow and, on success, adopts the returned
// user. The session counts as authenticated immediately even though the
// email is unverified; the cache stays empty so nothing survives a restart.
func (s *SessionState) Signup(ctx context.Context, email, password, name string, accountType AccountType) Result {
	res := s.service.SignUp(ctx, email, password, name, accountType)
	if res.Success {
		s.set(res.User, true)
	}
	return res
}

// Logout ends the session and resets the state regardless of the backend
// outcome.
func (s *SessionState) Logout(ctx context.Context) Result {
	res := s.service.SignOut(ctx)
	s.set(nil, false)
	return res
}

// UpdateUser merges partial updates into the in-memory user record. It does
// not write through to the backend.
func (s *SessionState) UpdateUser(update *User) {
	if update == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		clone := *update
		s.user = &clone
		return
	}

	if update.Email != "" {
		s.user.Email = update.Email
	}
	if update.DisplayName != "" {
		s.user.DisplayName = update.DisplayName
	}
	if update.AccountType != "" {
		s.user.AccountType = update.AccountType
	}
	if update.EmailVerified {
		s.user.EmailVerified = true
	}
}

// Service exposes the underlying auth service
func (s *SessionState) Service() *Service {
	return s.service
}

// Close tears down the backend subscription. Safe to call more than once.
func (s *SessionState) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *SessionState) set(user *User, authed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		s.user = nil
		s.authed = false
		return
	}

	clone := *user
	s.user = &clone
	s.authed = authed
}
