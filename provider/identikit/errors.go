package identikit

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"

	accounts "github.com/oshub-dev/go-accounts"
)

// Error codes the identity service returns in its error envelope
const (
	codeEmailExists         = "EMAIL_EXISTS"
	codeWeakPassword        = "WEAK_PASSWORD"
	codeInvalidEmail        = "INVALID_EMAIL"
	codeEmailNotFound       = "EMAIL_NOT_FOUND"
	codeInvalidPassword     = "INVALID_PASSWORD"
	codeTooManyAttempts     = "TOO_MANY_ATTEMPTS_TRY_LATER"
	codeInvalidLoginCreds   = "INVALID_LOGIN_CREDENTIALS"
	codeUserDisabled        = "USER_DISABLED"
	codeCredentialMismatch  = "CREDENTIAL_MISMATCH"
	codeInvalidIDToken      = "INVALID_ID_TOKEN"
	codeUserNotFound        = "USER_NOT_FOUND"
	codeTokenExpiredService = "TOKEN_EXPIRED"
)

// mapServiceError converts the service's error code into the structured
// errors callers match on. Codes carry optional suffixes like
// "WEAK_PASSWORD : Password should be at least 6 characters", so matching
// is on the prefix.
func mapServiceError(code string) *goerrors.Error {
	normalized := strings.TrimSpace(code)
	if i := strings.IndexAny(normalized, " :"); i > 0 {
		normalized = normalized[:i]
	}

	switch normalized {
	case codeEmailExists:
		return accounts.ErrEmailTaken
	case codeWeakPassword:
		return accounts.ErrWeakPassword
	case codeInvalidEmail:
		return accounts.ErrInvalidEmail
	case codeEmailNotFound, codeUserNotFound:
		return accounts.ErrAccountNotFound
	case codeInvalidPassword, codeCredentialMismatch:
		return accounts.ErrWrongPassword
	case codeTooManyAttempts:
		return accounts.ErrTooManyAttempts
	case codeInvalidLoginCreds:
		return accounts.ErrInvalidCredential
	case codeInvalidIDToken:
		return accounts.ErrTokenMalformed
	case codeTokenExpiredService:
		return accounts.ErrTokenExpired
	default:
		return goerrors.New("identity service rejected the request", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{
				"service_code": code,
			})
	}
}
