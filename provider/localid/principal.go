package localid

import (
	accounts "github.com/oshub-dev/go-accounts"
)

type principal struct {
	id            string
	email         string
	displayName   string
	emailVerified bool
	idToken       string
}

func (p principal) ID() string          { return p.id }
func (p principal) Email() string       { return p.email }
func (p principal) DisplayName() string { return p.displayName }
func (p principal) EmailVerified() bool { return p.emailVerified }
func (p principal) IDToken() string     { return p.idToken }

var _ accounts.Principal = principal{}
