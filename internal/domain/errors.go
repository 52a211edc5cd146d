package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
	ErrInvalidFill  = errors.New("invalid fill")
	ErrNoWeights    = errors.New("no trader weights available")
	ErrUnauthorized = errors.New("unauthorized")
)
