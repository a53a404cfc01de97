package auth

import "errors"

var (
	// ErrUnauthorized indicates a missing credential.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInvalidToken indicates a token that failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)
