package status

import "errors"

var (
	ErrValidation = errors.New("validation: invalid input")
	ErrNotFound   = errors.New("store: record not found")
	ErrStore      = errors.New("store: persistence failed")
	ErrTimeout    = errors.New("store: call timed out")
)
