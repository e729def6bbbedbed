package service

import "errors"

var (
	// ErrUsernameTaken rejects a join whose username is already present in the
	// room. The registry is left untouched.
	ErrUsernameTaken = errors.New("username already taken in this room")
	// ErrEmptyMessage rejects a send whose body is blank after trimming.
	ErrEmptyMessage = errors.New("message body is empty")
	// ErrValidation rejects a room id or username below the minimum length
	// before any registry interaction.
	ErrValidation = errors.New("validation failed")
	// ErrStore wraps a persistence failure; the send aborts and nothing is
	// broadcast.
	ErrStore = errors.New("message store failure")
)
