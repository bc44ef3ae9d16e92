package model

import "errors"

// Load-time validation errors
var (
	ErrEmptyModelName = errors.New("model name is required")
	ErrEmptyBoneName  = errors.New("bone name is required")
	ErrDuplicateBone  = errors.New("duplicate bone name")
	ErrBoneCycle      = errors.New("bone hierarchy contains a cycle")
	ErrInvalidNumber  = errors.New("non-finite number")
	ErrInvalidScale   = errors.New("model scale must be positive")
	ErrUnknownFormat  = errors.New("unknown blueprint format")
)
