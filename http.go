package accounts

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// RouteGuard protects routes using the live session state. Guards read the
// state snapshot on every request, so a sign-out observed by the backend
// subscription takes effect without restarting the router.
type RouteGuard struct {
	state  *SessionState
	cfg    Config
	Logger Logger
}

// NewRouteGuard creates a guard over the given state
func NewRouteGuard(state *SessionState, cfg Config) *RouteGuard {
	return &RouteGuard{
		state:  state,
		cfg:    cfg,
		Logger: defLogger{},
	}
}

// Protected only lets verified sessions through. While the session state is
// still loading it answers with a retryable placeholder instead of deciding
// either way; unauthenticated requests get their route recorded and are
// redirected to the login page.
func (g *RouteGuard) Protected() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snap := g.state.Snapshot()

			if snap.Loading {
				return g.loadingPlaceholder(ctx)
			}

			if snap.IsAuthenticated && snap.User.IsAuthenticated() {
				ctx.Locals("user", snap.User)
				ctx.SetContext(WithContext(ctx.Context(), snap.User))
				return next(ctx)
			}

			g.Logger.Info("protected route rejected, redirecting to login, path: %s", ctx.OriginalURL())
			g.SetRedirect(ctx)

			return ctx.Redirect(g.cfg.GetLoginRoute(), g.redirectStatus(ctx))
		}
	}
}

// PublicOnly keeps verified signed-in users away from auth pages, sending
// them to the browse page instead. Unverified sessions still get through:
// a fresh signup needs the login form once its email is verified.
func (g *RouteGuard) PublicOnly() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snap := g.state.Snapshot()

			if snap.Loading {
				return g.loadingPlaceholder(ctx)
			}

			if snap.IsAuthenticated && snap.User.IsAuthenticated() {
				return ctx.Redirect(g.cfg.GetBrowseRoute(), g.redirectStatus(ctx))
			}

			return next(ctx)
		}
	}
}

// GetRedirect returns the recorded rejected route, or the given default,
// clearing the cookie either way.
func (g *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

// SetRedirect records the rejected route so a later login can land the
// user back where they were headed.
func (g *RouteGuard) SetRedirect(ctx router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) loadingPlaceholder(ctx router.Context) error {
	ctx.SetHeader("Retry-After", "1")
	return ctx.JSON(http.StatusServiceUnavailable, map[string]any{
		"loading": true,
		"message": "Loading...",
	})
}

func (g *RouteGuard) redirectStatus(ctx router.Context) int {
	if ctx.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}
