package registry

import "errors"

// ErrUsernameTaken is returned by Register when the username is already
// present among the room's entries.
var ErrUsernameTaken = errors.New("registry: username already taken in room")
