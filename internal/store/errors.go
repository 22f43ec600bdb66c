package store

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrItemNotFound  = errors.New("item not found")
	ErrInvalidID     = errors.New("invalid identifier")
)
