package accounts

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordValidation is the outcome of the password policy check. The
// message is user facing and is populated for both rejections and
// advisories, so a valid password may still carry a suggestion.
type PasswordValidation struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
}

const (
	passwordMinLength       = 6
	passwordSuggestedLength = 8
)

// ValidatePassword applies the signup password policy. Only the six
// character floor is a hard rejection; everything above it is valid with
// an advisory message.
func ValidatePassword(password string) PasswordValidation {
	if password == "" {
		return PasswordValidation{
			IsValid: false,
			Message: "Password is required.",
		}
	}

	if len(password) < passwordMinLength {
		return PasswordValidation{
			IsValid: false,
			Message: "Password must be at least 6 characters long.",
		}
	}

	if len(password) < passwordSuggestedLength {
		return PasswordValidation{
			IsValid: true,
			Message: "Password is acceptable but consider using 8+ characters for better security.",
		}
	}

	if hasLettersAndNumbers(password) {
		return PasswordValidation{
			IsValid: true,
			Message: "Password strength is good.",
		}
	}

	return PasswordValidation{
		IsValid: true,
		Message: "Consider adding numbers and letters for better security.",
	}
}

func hasLettersAndNumbers(s string) bool {
	letters, numbers := false, false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters = true
		case unicode.IsDigit(r):
			numbers = true
		}
	}
	return letters && numbers
}

// ValidateEmail checks the address is non-empty and parses as a single
// RFC 5322 address.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPassword
		}
		return err
	}
	return nil
}
