package service

import "errors"

var (
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrUnauthenticated = errors.New("unauthenticated")
)
