package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type User struct {
	ID           int
	Username     string
	Role         Role
	passwordHash []byte
}

// UserStore holds the fixed operator accounts. Passwords are only kept as
// bcrypt hashes.
type UserStore struct {
	users map[string]*User
}

// NewUserStore creates the admin and viewer accounts.
func NewUserStore(adminPassword, viewerPassword string) (*UserStore, error) {
	s := &UserStore{users: make(map[string]*User, 2)}
	accounts := []struct {
		id       int
		name     string
		password string
		role     Role
	}{
		{1, "admin", adminPassword, RoleAdmin},
		{2, "viewer", viewerPassword, RoleViewer},
	}
	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", a.name, err)
		}
		s.users[a.name] = &User{ID: a.id, Username: a.name, Role: a.role, passwordHash: hash}
	}
	return s, nil
}

// Authenticate returns the user when the password matches.
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
