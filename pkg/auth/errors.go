package auth

import "errors"

// Credential hasher errors
var (
	// ErrEmptyPassword is returned when an empty password is hashed or verified
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordLength bytes
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedDigest is returned when a stored digest cannot be parsed
	ErrMalformedDigest = errors.New("malformed password digest")
)

// Token codec errors
var (
	// ErrTokenMalformed is returned when a token cannot be parsed at all
	ErrTokenMalformed = errors.New("malformed token")
	// ErrBadSignature is returned when a token signature does not verify
	ErrBadSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when a token is past its expiry
	ErrTokenExpired = errors.New("token expired")
)

// ErrUnknownRole is returned by ParseRole for any string outside the closed enum
var ErrUnknownRole = errors.New("unknown role")
