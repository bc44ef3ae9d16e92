package view

import "errors"

var (
	ErrViewDestroyed    = errors.New("view destroyed")
	ErrNilModel         = errors.New("view needs a model")
	ErrNonFinitePose    = errors.New("pose contains non-finite values")
	ErrInvalidScale     = errors.New("view scale must be positive")
	ErrUnknownAnimation = errors.New("unknown animation")
)
