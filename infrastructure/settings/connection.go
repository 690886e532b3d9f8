package settings

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrInvalidConnection = errors.New("invalid connection settings")

// FieldError names the setting that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidConnection }

// Connection describes one voice server connection. Identity holds an
// exported identity string; a new identity is generated when it is empty.
type Connection struct {
	Host                   string     `json:"Host"`
	Port                   uint16     `json:"Port"`
	Nickname               string     `json:"Nickname"`
	ServerPassword         string     `json:"ServerPassword,omitempty"`
	DefaultChannel         string     `json:"DefaultChannel,omitempty"`
	DefaultChannelPassword string     `json:"DefaultChannelPassword,omitempty"`
	Identity               string     `json:"Identity,omitempty"`
	SecurityLevel          int        `json:"SecurityLevel"`
	Codec                  VoiceCodec `json:"Codec"`
	HardwareID             string     `json:"HardwareID,omitempty"`
	Timeouts               Timeouts   `json:"Timeouts"`
}

// WithDefaults fills the port and timers left unset.
func (c Connection) WithDefaults() Connection {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	c.Timeouts = c.Timeouts.WithDefaults()
	return c
}

func (c Connection) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &FieldError{Field: "Host", Reason: "must not be empty"}
	}
	if c.Port == 0 {
		return &FieldError{Field: "Port", Reason: "must be between 1 and 65535"}
	}
	if n := utf8.RuneCountInString(c.Nickname); n < MinNicknameLength || n > MaxNicknameLength {
		return &FieldError{
			Field:  "Nickname",
			Reason: fmt.Sprintf("must be %d to %d characters, got %d", MinNicknameLength, MaxNicknameLength, n),
		}
	}
	if c.SecurityLevel < 0 || c.SecurityLevel > MaxSecurityLevel {
		return &FieldError{Field: "SecurityLevel", Reason: fmt.Sprintf("must be between 0 and %d", MaxSecurityLevel)}
	}
	if c.Codec != OpusVoice && c.Codec != OpusMusic {
		return &FieldError{Field: "Codec", Reason: ErrInvalidCodec.Error()}
	}
	return c.Timeouts.validate()
}
