package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrBadCredentials covers both an unknown username and a wrong secret.
var ErrBadCredentials = errors.New("identity: bad credentials")

// Identity is who is standing at the gate.  MemberID is empty for staff
// accounts that may not check in.
type Identity struct {
	Username string
	MemberID string
	Admin    bool
}

func (id Identity) IsMember() bool { return id.MemberID != "" }

// IdentityResolver maps credentials to an Identity.  A failed match returns
// ErrBadCredentials; any other error is an infrastructure failure.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, username, secret string) (Identity, error)
}

// Account is one row of the static identity table.  Either Password
// (plaintext, hashed on load) or PasswordHash (bcrypt) must be set.
type Account struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	MemberID     string `yaml:"member_id,omitempty"`
	Admin        bool   `yaml:"admin,omitempty"`
}

type accountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// DemoMemberID is the member behind the built-in "demo" account.
const DemoMemberID = "member_demo_001"

// DemoAccounts is the built-in table used when no accounts file is given.
func DemoAccounts() []Account {
	return []Account{
		{Username: "admin", Password: "admin", Admin: true},
		{Username: "demo", Password: "demo", MemberID: DemoMemberID},
	}
}

func LoadAccountsFile(path string) ([]Account, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var f accountsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s has no accounts", path)
	}
	return f.Accounts, nil
}

type staticAccount struct {
	hash     []byte
	memberID string
	admin    bool
}

// StaticIdentities resolves credentials against a fixed in-process table.
type StaticIdentities struct {
	accounts map[string]staticAccount
	// decoy is compared against for unknown usernames so both failure
	// paths cost one bcrypt comparison.
	decoy []byte
}

func NewStaticIdentities(accounts []Account, cost int) (*StaticIdentities, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy"), cost)
	if err != nil {
		return nil, fmt.Errorf("hash decoy: %w", err)
	}

	s := &StaticIdentities{accounts: make(map[string]staticAccount, len(accounts)), decoy: decoy}
	for _, a := range accounts {
		name := strings.TrimSpace(a.Username)
		if name == "" {
			return nil, errors.New("account username is required")
		}
		if _, dup := s.accounts[name]; dup {
			return nil, fmt.Errorf("duplicate account %q", name)
		}

		var hash []byte
		switch {
		case a.PasswordHash != "":
			hash = []byte(a.PasswordHash)
			if _, err := bcrypt.Cost(hash); err != nil {
				return nil, fmt.Errorf("account %q: bad password_hash: %w", name, err)
			}
		case a.Password != "":
			hash, err = bcrypt.GenerateFromPassword([]byte(a.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("account %q: hash password: %w", name, err)
			}
		default:
			return nil, fmt.Errorf("account %q: password or password_hash is required", name)
		}

		s.accounts[name] = staticAccount{hash: hash, memberID: a.MemberID, admin: a.Admin}
	}
	return s, nil
}

func (s *StaticIdentities) ResolveIdentity(_ context.Context, username, secret string) (Identity, error) {
	name := strings.TrimSpace(username)
	acct, ok := s.accounts[name]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.decoy, []byte(secret))
		return Identity{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(secret)); err != nil {
		return Identity{}, ErrBadCredentials
	}
	return Identity{Username: name, MemberID: acct.memberID, Admin: acct.admin}, nil
}
