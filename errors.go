package accounts

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced in structured errors. The HTTP layer and the service
// Result mapping key off these, not off message strings.
const (
	TextCodeEmailTaken        = "EMAIL_TAKEN"
	TextCodeWeakPassword      = "WEAK_PASSWORD"
	TextCodeInvalidEmail      = "INVALID_EMAIL"
	TextCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	TextCodeWrongPassword     = "WRONG_PASSWORD"
	TextCodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
	TextCodeNetworkFailure    = "NETWORK_FAILURE"
	TextCodeInvalidCredential = "INVALID_CREDENTIAL"
	TextCodeEmailUnverified   = "EMAIL_UNVERIFIED"
	TextCodeNoPrincipal       = "NO_PRINCIPAL"
	TextCodeAlreadyVerified   = "ALREADY_VERIFIED"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
)

// ErrEmailTaken is returned when sign-up hits an already registered email
var ErrEmailTaken = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is the hard floor rejection, not the advisory message
var ErrWeakPassword = goerrors.New("password is below the minimum length", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidEmail is returned for malformed email addresses
var ErrInvalidEmail = goerrors.New("email address is not valid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotFound is returned when no account matches the email
var ErrAccountNotFound = goerrors.New("no account found for email", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrWrongPassword is returned when the password does not match
var ErrWrongPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyAttempts is returned when the backend rate-limits sign-in
var ErrTooManyAttempts = goerrors.New("too many failed attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNetworkFailure is returned when the backend is unreachable
var ErrNetworkFailure = goerrors.New("identity backend unreachable", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetworkFailure).
	WithCode(goerrors.CodeInternal)

// ErrInvalidCredential is the backend's opaque credential rejection
var ErrInvalidCredential = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredential).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailUnverified is returned when sign-in succeeds against the backend
// but the email has not been verified; the backend session is already torn
// down by the time callers see this.
var ErrEmailUnverified = goerrors.New("email address has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailUnverified).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoPrincipal is returned when an operation needs a signed-in principal
var ErrNoPrincipal = goerrors.New("no user is currently signed in", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoPrincipal).
	WithCode(goerrors.CodeUnauthorized)

// ErrAlreadyVerified is returned when re-sending verification to a
// verified principal
var ErrAlreadyVerified = goerrors.New("email is already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for expired ID tokens
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail parsing or signature
// validation
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// userMessages maps text codes to the strings shown to end users. Anything
// not listed falls through to the error's own message.
var userMessages = map[string]string{
	TextCodeEmailTaken:        "An account with this email already exists.",
	TextCodeWeakPassword:      "Password is too weak. Please use at least 6 characters.",
	TextCodeInvalidEmail:      "Please enter a valid email address.",
	TextCodeAccountNotFound:   "No account found with this email address.",
	TextCodeWrongPassword:     "Incorrect password. Please try again.",
	TextCodeTooManyAttempts:   "Too many failed attempts. Please try again later.",
	TextCodeNetworkFailure:    "Network error. Please check your internet connection.",
	TextCodeInvalidCredential: "Invalid email or password.",
	TextCodeEmailUnverified:   "Please verify your email before logging in. Check your inbox for the verification link.",
	TextCodeNoPrincipal:       "No user is currently signed in.",
	TextCodeAlreadyVerified:   "Email is already verified.",
	TextCodeEmptyPassword:     "Password is required.",
}

const genericUserMessage = "An unexpected error occurred. Please try again."

// UserMessage flattens a structured error into the user-facing string the
// service Result carries. Unknown rich errors fall back to their own
// message; everything else gets the generic fallback.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if msg, ok := userMessages[richErr.TextCode]; ok {
			return msg
		}
		if richErr.Message != "" {
			return richErr.Message
		}
	}

	return genericUserMessage
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
