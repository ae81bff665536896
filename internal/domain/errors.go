package domain

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrNotReady          = errors.New("artifact not ready")
	ErrGone              = errors.New("artifact already consumed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrBusy              = errors.New("server busy")
)
