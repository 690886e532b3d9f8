package command

import "errors"

var (
	ErrEmpty          = errors.New("empty command")
	ErrUnexpectedName = errors.New("unexpected command name")
	ErrMissingParam   = errors.New("missing command parameter")
	ErrInvalidParam   = errors.New("invalid command parameter")
)
