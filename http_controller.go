package accounts

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// RegisterAuthRoutes mounts the auth endpoints on the given router. The
// public-only guard keeps signed-in sessions away from signup and login.
func RegisterAuthRoutes[T any](app router.Router[T], guard *RouteGuard, opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Signup, controller.SignupPost, guard.PublicOnly()).
		SetName("auth.signup.post")

	app.Post(controller.Routes.Login, controller.LoginPost, guard.PublicOnly()).
		SetName("auth.login.post")

	app.Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("auth.logout.post")

	app.Post(controller.Routes.ResendVerification, controller.ResendVerificationPost).
		SetName("auth.resend-verification.post")

	app.Get(controller.Routes.Me, controller.MeGet).
		SetName("auth.me.get")
}

type AuthControllerRoutes struct {
	Signup             string
	Login              string
	Logout             string
	ResendVerification string
	Me                 string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	State        *SessionState
	Routes       *AuthControllerRoutes
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerState sets the session state the controller drives
func WithControllerState(state *SessionState) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.State = state
		return c
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

// WithControllerRoutes overrides the default route paths
func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Routes = routes
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Signup:             "/auth/signup",
			Login:              "/auth/login",
			Logout:             "/auth/logout",
			ResendVerification: "/auth/resend-verification",
			Me:                 "/auth/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.State == nil {
		panic("Missing SessionState in auth controller...")
	}

	return c
}

// SignupRequest payload
type SignupRequest struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Name            string `form:"name" json:"name"`
	AccountType     string `form:"account_type" json:"account_type"`
	Phone           string `form:"phone" json:"phone"`
	AcceptTerms     bool   `form:"accept_terms" json:"accept_terms"`
}

// Validate will run validation rules
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.Required),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(
			&r.AccountType,
			validation.In(AccountTypeDeveloper, AccountTypeClient, AccountTypeBoth),
		),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.AcceptTerms, validation.In(true)),
	)
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) SignupPost(ctx router.Context) error {
	payload := new(SignupRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"success":    false,
			"message":    "Please correct the highlighted fields.",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH SIGNUP ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	res := a.State.Signup(ctx.Context(), payload.Email, payload.Password, payload.Name, payload.AccountType)
	if !res.Success {
		return ctx.JSON(fiber.StatusBadRequest, res)
	}

	return ctx.JSON(fiber.StatusCreated, res)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusBadRequest, map[string]any{
			"success":    false,
			"message":    "Please correct the highlighted fields.",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	res := a.State.Login(ctx.Context(), payload.Email, payload.Password)
	if !res.Success {
		return ctx.JSON(fiber.StatusUnauthorized, res)
	}

	return ctx.JSON(fiber.StatusOK, res)
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	res := a.State.Logout(ctx.Context())
	if !res.Success {
		return ctx.JSON(fiber.StatusInternalServerError, res)
	}
	return ctx.JSON(fiber.StatusOK, res)
}

func (a *AuthController) ResendVerificationPost(ctx router.Context) error {
	res := a.State.Service().ResendVerification(ctx.Context())
	if !res.Success {
		return ctx.JSON(fiber.StatusBadRequest, res)
	}
	return ctx.JSON(fiber.StatusOK, res)
}

func (a *AuthController) MeGet(ctx router.Context) error {
	snap := a.State.Snapshot()

	if snap.Loading {
		ctx.SetHeader("Retry-After", "1")
		return ctx.JSON(fiber.StatusServiceUnavailable, map[string]any{
			"loading": true,
		})
	}

	if snap.User == nil {
		return ctx.JSON(fiber.StatusUnauthorized, Result{
			Message: UserMessage(ErrNoPrincipal),
		})
	}

	return ctx.JSON(fiber.StatusOK, snap)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts empty values and otherwise requires a valid
// US-parseable phone number.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field/message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.JSON(fiber.StatusBadRequest, map[string]any{
		"success": false,
		"message": err.Error(),
	})
}
