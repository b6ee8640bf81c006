package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/oshub-dev/go-accounts"
)

func newTestService(t *testing.T) (*accounts.Service, *fakeBackend, accounts.SessionCache) {
	t.Helper()
	backend := newFakeBackend()
	cache := accounts.NewMemorySessionCache()
	return accounts.NewService(backend, cache), backend, cache
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)

	res := svc.SignUp(ctx, "dev@example.com", "abcdef", "Dev One", accounts.AccountTypeDeveloper)

	require.True(t, res.Success)
	assert.Equal(t, "Account created successfully! Please check your email to verify your account.", res.Message)

	require.NotNil(t, res.User)
	assert.Equal(t, "uid-dev@example.com", res.User.ID)
	assert.Equal(t, "dev@example.com", res.User.Email)
	assert.Equal(t, "Dev One", res.User.DisplayName)
	assert.Equal(t, accounts.AccountTypeDeveloper, res.User.AccountType)
	assert.False(t, res.User.EmailVerified)

	assert.Equal(t, []string{"dev@example.com"}, backend.verificationEmails)

	doc, err := backend.GetProfileDocument(ctx, "uid-dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Dev One", doc.Name)
	assert.Equal(t, accounts.AccountTypeDeveloper, doc.AccountType)
	assert.False(t, doc.EmailVerified)
	assert.NotNil(t, doc.CreatedAt)

	// the account is not verified yet; the session cache stays empty
	_, ok := cache.Read(ctx)
	assert.False(t, ok)
	assert.False(t, cache.IsAuthenticated(ctx))
}

func TestSignUpNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res := svc.SignUp(ctx, "  Dev@Example.COM ", "abcdef", "Dev One", accounts.AccountTypeClient)
	require.True(t, res.Success)
	assert.Equal(t, "dev@example.com", res.User.Email)
	assert.Equal(t, accounts.AccountTypeClient, res.User.AccountType)
}

func TestSignUpMissingFields(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	for _, tt := range []struct {
		name, email, password, displayName string
	}{
		{"missing email", "", "abcdef", "Dev One"},
		{"missing password", "dev@example.com", "", "Dev One"},
		{"missing name", "dev@example.com", "abcdef", ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.SignUp(ctx, tt.email, tt.password, tt.displayName, accounts.AccountTypeDeveloper)
			assert.False(t, res.Success)
			assert.Equal(t, "Email, password, and name are required", res.Message)
		})
	}
}

func TestSignUpInvalidEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res := svc.SignUp(ctx, "not-an-email", "abcdef", "Dev One", accounts.AccountTypeDeveloper)
	assert.False(t, res.Success)
	assert.Equal(t, "Please enter a valid email address.", res.Message)
}

func TestSignUpWeakPassword(t *testing.T) {
	ctx := context.Background()
	svc, backend, _ := newTestService(t)

	res := svc.SignUp(ctx, "dev@example.com", "abc", "Dev One", accounts.AccountTypeDeveloper)
	assert.False(t, res.Success)
	assert.Equal(t, "Password must be at least 6 characters long.", res.Message)
	assert.Empty(t, backend.accounts)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, backend, _ := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef", false)

	res := svc.SignUp(ctx, "dev@example.com", "abcdef", "Dev One", accounts.AccountTypeDeveloper)
	assert.False(t, res.Success)
	assert.Equal(t, "An account with this email already exists.", res.Message)
}

func TestSignUpUnknownAccountTypeDefaults(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res := svc.SignUp(ctx, "dev@example.com", "abcdef", "Dev One", "wizard")
	require.True(t, res.Success)
	assert.Equal(t, accounts.AccountTypeDeveloper, res.User.AccountType)
}

func TestSignInVerified(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef12", true)
	backend.profiles["uid-1"] = &accounts.ProfileDocument{
		Name:        "Dev One",
		AccountType: accounts.AccountTypeBoth,
	}

	res := svc.SignIn(ctx, "dev@example.com", "abcdef12")

	require.True(t, res.Success)
	assert.Equal(t, "Login successful!", res.Message)
	require.NotNil(t, res.User)
	assert.Equal(t, "uid-1", res.User.ID)
	assert.Equal(t, "Dev One", res.User.DisplayName)
	assert.Equal(t, accounts.AccountTypeBoth, res.User.AccountType)
	assert.True(t, res.User.EmailVerified)

	cached, ok := cache.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, res.User, cached)
	assert.True(t, cache.IsAuthenticated(ctx))

	// a successful sign-in writes the login timestamp back to the profile
	doc, err := backend.GetProfileDocument(ctx, "uid-1")
	require.NoError(t, err)
	assert.NotNil(t, doc.LastLoginAt)
	assert.True(t, doc.EmailVerified)
}

func TestSignInUnverifiedNeverCaches(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef12", false)

	res := svc.SignIn(ctx, "dev@example.com", "abcdef12")

	assert.False(t, res.Success)
	assert.Equal(t,
		"Please verify your email before logging in. Check your inbox for the verification link.",
		res.Message,
	)

	_, ok := cache.Read(ctx)
	assert.False(t, ok)
	assert.False(t, cache.IsAuthenticated(ctx))
	assert.Nil(t, backend.currentPrincipal())
}

func TestSignInWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef12", true)

	res := svc.SignIn(ctx, "dev@example.com", "wrong")
	assert.False(t, res.Success)
	assert.Equal(t, "Incorrect password. Please try again.", res.Message)

	_, ok := cache.Read(ctx)
	assert.False(t, ok)
}

func TestSignInUnknownAccount(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res := svc.SignIn(ctx, "missing@example.com", "abcdef12")
	assert.False(t, res.Success)
	assert.Equal(t, "No account found with this email address.", res.Message)
}

func TestSignInMissingFields(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res := svc.SignIn(ctx, "", "abcdef12")
	assert.Equal(t, "Email and password are required", res.Message)

	res = svc.SignIn(ctx, "dev@example.com", "")
	assert.Equal(t, "Email and password are required", res.Message)
}

func TestSignInWithoutProfileDocument(t *testing.T) {
	ctx := context.Background()
	svc, backend, _ := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef12", true)

	res := svc.SignIn(ctx, "dev@example.com", "abcdef12")
	require.True(t, res.Success)
	assert.Equal(t, accounts.AccountTypeDeveloper, res.User.AccountType)
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef12", true)

	require.True(t, svc.SignIn(ctx, "dev@example.com", "abcdef12").Success)
	require.True(t, cache.IsAuthenticated(ctx))

	res := svc.SignOut(ctx)

	assert.True(t, res.Success)
	assert.Equal(t, "Signed out successfully", res.Message)
	assert.Equal(t, 1, backend.signOutCalls)

	_, ok := cache.Read(ctx)
	assert.False(t, ok)
	assert.False(t, cache.IsAuthenticated(ctx))
}

func TestSignOutClearsCacheOnBackendError(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.addAccount("uid-1", "dev@example.com", "abcdef12", true)

	require.True(t, svc.SignIn(ctx, "dev@example.com", "abcdef12").Success)

	backend.signOutErr = errors.New("backend unavailable")

	res := svc.SignOut(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "Error signing out", res.Message)
	assert.Equal(t, 1, backend.signOutCalls)

	// the local session is gone even though the backend call failed
	_, ok := cache.Read(ctx)
	assert.False(t, ok)
	assert.False(t, cache.IsAuthenticated(ctx))
}

func TestInitializeAuthSignedOut(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)

	user, err := svc.InitializeAuth(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, ok := cache.Read(ctx)
	assert.False(t, ok)

	// the startup subscription is torn down once the state is resolved
	assert.Equal(t, 0, backend.broadcaster.Len())
}

func TestInitializeAuthVerifiedSession(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.profiles["uid-1"] = &accounts.ProfileDocument{Name: "Dev One"}
	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: true})

	user, err := svc.InitializeAuth(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "uid-1", user.ID)
	assert.Equal(t, "Dev One", user.DisplayName)

	cached, ok := cache.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, user, cached)

	assert.Equal(t, 0, backend.broadcaster.Len())
}

func TestInitializeAuthUnverifiedClearsCache(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)

	require.NoError(t, cache.Store(ctx, cache.Begin(), &accounts.User{ID: "stale", EmailVerified: true}))
	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: false})

	user, err := svc.InitializeAuth(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, ok := cache.Read(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, backend.broadcaster.Len())
}

func TestInitializeAuthContextCancelled(t *testing.T) {
	backend := newFakeBackend()
	svc := accounts.NewService(&silentBackend{fakeBackend: backend}, accounts.NewMemorySessionCache())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.InitializeAuth(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, backend.broadcaster.Len())
}

// silentBackend suppresses the synchronous initial notification so the
// cancellation path can be exercised.
type silentBackend struct {
	*fakeBackend
}

func (b *silentBackend) SubscribeToAuthChanges(cb accounts.AuthChangeCallback) accounts.Subscription {
	return b.broadcaster.Subscribe(cb)
}

func TestOnAuthStateChange(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)
	backend.profiles["uid-1"] = &accounts.ProfileDocument{Name: "Dev One"}

	var got []*accounts.User
	sub := svc.OnAuthStateChange(func(user *accounts.User) {
		got = append(got, user)
	})
	defer sub.Unsubscribe()

	// initial synchronous delivery, signed out
	require.Len(t, got, 1)
	assert.Nil(t, got[0])

	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: true})
	require.Len(t, got, 2)
	require.NotNil(t, got[1])
	assert.Equal(t, "Dev One", got[1].DisplayName)
	assert.True(t, cache.IsAuthenticated(ctx))

	backend.setCurrent(nil)
	require.Len(t, got, 3)
	assert.Nil(t, got[2])
	assert.False(t, cache.IsAuthenticated(ctx))
}

func TestOnAuthStateChangeUnverifiedDeliversNil(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)

	var got []*accounts.User
	sub := svc.OnAuthStateChange(func(user *accounts.User) {
		got = append(got, user)
	})
	defer sub.Unsubscribe()

	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: false})

	require.Len(t, got, 2)
	assert.Nil(t, got[1])
	assert.False(t, cache.IsAuthenticated(ctx))
}

func TestOnAuthStateChangeProfileErrorFallsBack(t *testing.T) {
	svc, backend, _ := newTestService(t)
	backend.profileErr = errors.New("store unavailable")

	var got []*accounts.User
	sub := svc.OnAuthStateChange(func(user *accounts.User) {
		got = append(got, user)
	})
	defer sub.Unsubscribe()

	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", displayName: "Dev One", emailVerified: true})

	require.Len(t, got, 2)
	require.NotNil(t, got[1])
	assert.Equal(t, "uid-1", got[1].ID)
	assert.Equal(t, "Dev One", got[1].DisplayName)
}

func TestGetCurrentUserAndIsAuthenticated(t *testing.T) {
	ctx := context.Background()
	svc, _, cache := newTestService(t)

	assert.Nil(t, svc.GetCurrentUser(ctx))
	assert.False(t, svc.IsAuthenticated(ctx))

	require.NoError(t, cache.Store(ctx, cache.Begin(), &accounts.User{ID: "uid-1", EmailVerified: true}))

	user := svc.GetCurrentUser(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "uid-1", user.ID)
	assert.True(t, svc.IsAuthenticated(ctx))
}

func TestGetCurrentUserPrefersLivePrincipal(t *testing.T) {
	ctx := context.Background()
	svc, backend, cache := newTestService(t)

	// the backend has a verified session but the cache never saw the
	// store, for instance because the write failed
	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", displayName: "Dev One", emailVerified: true})

	user := svc.GetCurrentUser(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "uid-1", user.ID)
	assert.Equal(t, "dev@example.com", user.Email)
	assert.True(t, user.EmailVerified)

	// when the cache holds the same identity the merged record wins
	require.NoError(t, cache.Store(ctx, cache.Begin(), &accounts.User{
		ID:            "uid-1",
		Email:         "dev@example.com",
		DisplayName:   "Profile Name",
		EmailVerified: true,
	}))

	user = svc.GetCurrentUser(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "Profile Name", user.DisplayName)
}

func TestGetCurrentUserUnverifiedPrincipalFallsBack(t *testing.T) {
	ctx := context.Background()
	svc, backend, _ := newTestService(t)

	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: false})

	assert.Nil(t, svc.GetCurrentUser(ctx))
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	svc, backend, _ := newTestService(t)
	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: false})

	res := svc.ResendVerification(ctx)
	require.True(t, res.Success)
	assert.Equal(t, "Verification email sent! Please check your inbox.", res.Message)
	assert.Equal(t, []string{"dev@example.com"}, backend.verificationEmails)
}

func TestResendVerificationNoSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res := svc.ResendVerification(ctx)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	ctx := context.Background()
	svc, backend, _ := newTestService(t)
	backend.setCurrent(testPrincipal{id: "uid-1", email: "dev@example.com", emailVerified: true})

	res := svc.ResendVerification(ctx)
	assert.False(t, res.Success)
	assert.Empty(t, backend.verificationEmails)
}
