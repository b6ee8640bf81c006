package accounts_test

import (
	"context"
	"io"
	"mime/multipart"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"

	accounts "github.com/oshub-dev/go-accounts"
)

// testPrincipal implements accounts.Principal
type testPrincipal struct {
	id            string
	email         string
	displayName   string
	emailVerified bool
	idToken       string
}

func (p testPrincipal) ID() string          { return p.id }
func (p testPrincipal) Email() string       { return p.email }
func (p testPrincipal) DisplayName() string { return p.displayName }
func (p testPrincipal) EmailVerified() bool { return p.emailVerified }
func (p testPrincipal) IDToken() string     { return p.idToken }

type fakeAccount struct {
	id       string
	password string
	verified bool
}

// fakeBackend is an in-memory accounts.IdentityBackend with scriptable
// failures, used to drive the service and state tests.
type fakeBackend struct {
	mu          sync.Mutex
	broadcaster *accounts.AuthChangeBroadcaster
	current     accounts.Principal

	accounts map[string]*fakeAccount
	profiles map[string]*accounts.ProfileDocument

	verificationEmails []string
	signOutCalls       int
	signOutErr         error
	profileErr         error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		broadcaster: accounts.NewAuthChangeBroadcaster(),
		accounts:    map[string]*fakeAccount{},
		profiles:    map[string]*accounts.ProfileDocument{},
	}
}

func (b *fakeBackend) addAccount(id, email, password string, verified bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[email] = &fakeAccount{id: id, password: password, verified: verified}
}

func (b *fakeBackend) currentPrincipal() accounts.Principal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *fakeBackend) setCurrent(p accounts.Principal) {
	b.mu.Lock()
	b.current = p
	b.mu.Unlock()
	b.broadcaster.Publish(p)
}

func (b *fakeBackend) CreateAccount(ctx context.Context, email, password string) (accounts.Principal, error) {
	b.mu.Lock()
	if _, ok := b.accounts[email]; ok {
		b.mu.Unlock()
		return nil, accounts.ErrEmailTaken
	}
	id := "uid-" + email
	b.accounts[email] = &fakeAccount{id: id, password: password}
	b.mu.Unlock()

	p := testPrincipal{id: id, email: email}
	b.setCurrent(p)
	return p, nil
}

func (b *fakeBackend) SendVerificationEmail(ctx context.Context, p accounts.Principal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verificationEmails = append(b.verificationEmails, p.Email())
	return nil
}

func (b *fakeBackend) Authenticate(ctx context.Context, email, password string) (accounts.Principal, error) {
	b.mu.Lock()
	record, ok := b.accounts[email]
	b.mu.Unlock()

	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	if record.password != password {
		return nil, accounts.ErrWrongPassword
	}

	if !record.verified {
		b.setCurrent(nil)
		return nil, accounts.ErrEmailUnverified
	}

	p := testPrincipal{id: record.id, email: email, emailVerified: true}
	b.setCurrent(p)
	return p, nil
}

func (b *fakeBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.signOutCalls++
	err := b.signOutErr
	b.mu.Unlock()

	b.setCurrent(nil)
	return err
}

func (b *fakeBackend) CurrentPrincipal(ctx context.Context) (accounts.Principal, error) {
	return b.currentPrincipal(), nil
}

func (b *fakeBackend) SubscribeToAuthChanges(cb accounts.AuthChangeCallback) accounts.Subscription {
	sub := b.broadcaster.Subscribe(cb)
	cb(b.currentPrincipal())
	return sub
}

func (b *fakeBackend) GetProfileDocument(ctx context.Context, id string) (*accounts.ProfileDocument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.profileErr != nil {
		return nil, b.profileErr
	}

	doc, ok := b.profiles[id]
	if !ok {
		return nil, goerrors.New("profile not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	clone := *doc
	return &clone, nil
}

func (b *fakeBackend) UpsertProfileDocument(ctx context.Context, id string, doc *accounts.ProfileDocument) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.profiles[id]
	if !ok {
		clone := *doc
		b.profiles[id] = &clone
		return nil
	}

	if doc.Name != "" {
		existing.Name = doc.Name
	}
	if doc.AccountType != "" {
		existing.AccountType = doc.AccountType
	}
	if doc.EmailVerified {
		existing.EmailVerified = true
	}
	if doc.LastLoginAt != nil {
		existing.LastLoginAt = doc.LastLoginAt
	}
	return nil
}

var _ accounts.IdentityBackend = (*fakeBackend)(nil)

// testConfig implements accounts.Config for the guard tests
type testConfig struct {
	loginRoute           string
	browseRoute          string
	rejectedRouteKey     string
	rejectedRouteDefault string
}

func newTestConfig() testConfig {
	return testConfig{
		loginRoute:           "/auth/login",
		browseRoute:          "/browse",
		rejectedRouteKey:     "rejected_route",
		rejectedRouteDefault: "/browse",
	}
}

func (c testConfig) GetLoginRoute() string           { return c.loginRoute }
func (c testConfig) GetBrowseRoute() string          { return c.browseRoute }
func (c testConfig) GetRejectedRouteKey() string     { return c.rejectedRouteKey }
func (c testConfig) GetRejectedRouteDefault() string { return c.rejectedRouteDefault }

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}
