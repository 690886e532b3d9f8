package session

import (
	"errors"
	"fmt"
)

var (
	ErrConnectTimeout  = errors.New("connect timed out")
	ErrResendTimeout   = errors.New("packet was not acknowledged in time")
	ErrSilenceTimeout  = errors.New("server went silent")
	ErrKicked          = errors.New("removed from server")
	ErrAborted         = errors.New("connect aborted")
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("session closed")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrSocket          = errors.New("socket failure")
	ErrUnknownChannel  = errors.New("unknown channel")
)

// ServerError is a non-zero error line sent by the server.
type ServerError struct {
	ID      int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.ID, e.Message)
}
