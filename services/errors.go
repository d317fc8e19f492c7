package services

import "errors"

var ErrNotFound = errors.New("resource not found")
var ErrForbidden = errors.New("operation not allowed for this user")
var ErrConflict = errors.New("conflicting operation already in progress")
var ErrInvalidState = errors.New("operation not valid in the current state")
var ErrVersionConflict = errors.New("team was modified concurrently")
