package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("a user with that username or email already exists")
	ErrInvalidUser        = errors.New("invalid user")
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")
	ErrAccountLocked      = errors.New("Account is locked due to too many failed login attempts.")
	ErrAccountInactive    = errors.New("user account is disabled")
	ErrForbidden          = errors.New("you do not have permission to perform this action")
)
