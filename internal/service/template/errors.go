package template

import "errors"

// Sentinel errors for the template service layer.
var (
	ErrNotFound        = errors.New("template not found")
	ErrInvalidInput    = errors.New("invalid template input")
	ErrInvalidTemplate = errors.New("invalid template syntax")
	ErrInUse           = errors.New("template is used by a campaign")
)
