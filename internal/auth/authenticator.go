package auth

import (
	"context"
	"errors"
)

// Authenticator checks email and password credentials.
type Authenticator struct {
	users UserStore
}

func NewAuthenticator(users UserStore) *Authenticator {
	return &Authenticator{users: users}
}

// Authenticate returns the user owning the credentials. An unknown email and a
// wrong password yield the same error value. It has no side effects.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		burnPasswordCheck(password)
		return User{}, errInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return User{}, errInvalidCredentials
	}
	if !user.Active() {
		return User{}, errAccountInactive
	}
	return user, nil
}
