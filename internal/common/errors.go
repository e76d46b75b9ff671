package common

import "errors"

var (

	// storage errors
	ErrNotFound = errors.New("not found")

	// delegation errors
	ErrUnknownUser    = errors.New("unknown user")
	ErrNotEntitled    = errors.New("user not entitled")
	ErrSelfDelegation = errors.New("users cannot sponsor themselves")

	// transport errors
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidSecret      = errors.New("invalid shared secret")
	ErrInvalidToken       = errors.New("invalid token")
)
