package models

import "errors"

// Store-level outcomes shared by every persistence package.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
)
