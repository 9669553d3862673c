// Package auth resolves a submitting user from credentials. The ledger core
// only ever sees the display name it returns.
package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"dailyledger/internal/core"
)

type User struct {
	Username     string
	DisplayName  string
	PasswordHash string
}

// Directory is an immutable set of users keyed by lower-cased username.
type Directory struct {
	users map[string]User
	// dummy is compared against when the user is unknown so lookups of
	// missing and present users cost the same.
	dummy []byte
}

func NewDirectory(users []User) (*Directory, error) {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		key := strings.ToLower(strings.TrimSpace(u.Username))
		if key == "" {
			return nil, fmt.Errorf("user with empty username")
		}
		if _, dup := d.users[key]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		if u.DisplayName == "" {
			u.DisplayName = u.Username
		}
		d.users[key] = u
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dailyledger"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("prepare directory: %w", err)
	}
	d.dummy = dummy
	return d, nil
}

// Authenticate checks the password and returns the user. Users without a
// password hash can never sign in.
func (d *Directory) Authenticate(username, password string) (User, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok || u.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(d.dummy, []byte(password))
		return User{}, core.ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, core.ErrUnauthenticated
	}
	return u, nil
}

// Lookup returns a user without checking credentials.
func (d *Directory) Lookup(username string) (User, bool) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(username))]
	return u, ok
}

// Len returns the number of users.
func (d *Directory) Len() int {
	return len(d.users)
}

// HashPassword produces a bcrypt hash for storing in the users table.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
