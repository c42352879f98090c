package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
	ErrEmptyEventRef = errors.New("event reference required")
	ErrEmptyWinners  = errors.New("at least one winner required")
	ErrBadAddress    = errors.New("invalid winner address")
	ErrBadAmount     = errors.New("invalid amount")
)
