package service

import "errors"

var (
	// ErrCodeSpaceExhausted is returned when code generation cannot find an
	// unused 6-digit code within the retry bound. With 900k possible codes
	// this indicates an operational problem, not bad luck.
	ErrCodeSpaceExhausted = errors.New("failed to generate a unique link code")
)
