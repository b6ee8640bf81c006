package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountType is what the user signed up as
type AccountType = string

const (
	// AccountTypeDeveloper posts solutions against open bounties
	AccountTypeDeveloper AccountType = "developer"
	// AccountTypeClient is a maintainer funding bounties
	AccountTypeClient AccountType = "client"
	// AccountTypeBoth covers users acting on both sides of the marketplace
	AccountTypeBoth AccountType = "both"
)

// IsValidAccountType checks the value against the known account types
func IsValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeDeveloper, AccountTypeClient, AccountTypeBoth:
		return true
	default:
		return false
	}
}

// ParseAccountType safely parses a string, falling back to developer which
// is the signup default.
func ParseAccountType(raw string) (AccountType, bool) {
	if IsValidAccountType(raw) {
		return AccountType(raw), true
	}
	return AccountTypeDeveloper, false
}

// User is the cached session record: the principal merged with its profile
// document. It is what the session cache serializes and what guards and
// page handlers consume.
type User struct {
	ID            string      `json:"id,omitempty"`
	Email         string      `json:"email,omitempty"`
	DisplayName   string      `json:"display_name,omitempty"`
	EmailVerified bool        `json:"email_verified,omitempty"`
	AccountType   AccountType `json:"account_type,omitempty"`
}

// IsAuthenticated reports whether the record satisfies the route-guard
// invariant: an identifier is present and the email is verified.
func (u *User) IsAuthenticated() bool {
	return u != nil && u.ID != "" && u.EmailVerified
}

// ProfileDocument holds the user-chosen attributes stored separately from
// the identity principal, keyed by principal identifier.
type ProfileDocument struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string      `bun:"name" json:"name,omitempty"`
	AccountType   AccountType `bun:"account_type" json:"account_type,omitempty"`
	EmailVerified bool        `bun:"email_verified" json:"email_verified,omitempty"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	LastLoginAt   *time.Time  `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Account is the credential record used by the self-hosted identity
// backend. Hosted deployments never touch this table.
type Account struct {
	bun.BaseModel     `bun:"table:accounts,alias:acc"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"password_hash,omitempty"`
	EmailVerified     bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	VerificationToken string     `bun:"verification_token" json:"verification_token,omitempty"`
	LoginAttempts     int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt    *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LoggedInAt        *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// CacheEntry is a row of the session_cache key-value table backing the
// persistent SessionCache implementation.
type CacheEntry struct {
	bun.BaseModel `bun:"table:session_cache,alias:sc"`
	Key           string `bun:"key,pk" json:"key"`
	Value         string `bun:"value" json:"value,omitempty"`
	Seq           int64  `bun:"seq,notnull,default:0" json:"seq,omitempty"`
}

// MergeProfile folds profile document fields into the user record. Profile
// values win for display name and account type, mirroring how the document
// store is the source of user-chosen attributes.
func MergeProfile(u *User, doc *ProfileDocument) *User {
	if u == nil {
		return nil
	}
	if doc == nil {
		if u.AccountType == "" {
			u.AccountType = AccountTypeDeveloper
		}
		return u
	}

	if doc.Name != "" {
		u.DisplayName = doc.Name
	}
	if doc.AccountType != "" {
		u.AccountType = doc.AccountType
	} else if u.AccountType == "" {
		u.AccountType = AccountTypeDeveloper
	}
	return u
}

// UserFromPrincipal builds the cacheable record for a backend principal.
func UserFromPrincipal(p Principal) *User {
	if p == nil {
		return nil
	}
	return &User{
		ID:            p.ID(),
		Email:         p.Email(),
		DisplayName:   p.DisplayName(),
		EmailVerified: p.EmailVerified(),
	}
}
