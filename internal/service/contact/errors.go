package contact

import "errors"

// Sentinel errors for the contact service layer.
var (
	ErrNotFound       = errors.New("contact not found")
	ErrDuplicateEmail = errors.New("contact with this email already exists")
	ErrInvalidInput   = errors.New("invalid contact input")
)
