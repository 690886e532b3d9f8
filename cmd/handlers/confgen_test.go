package handlers

import (
	"context"
	"errors"
	"testing"

	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/settings"
)

type memoryWriter struct {
	saved []settings.Connection
	err   error
}

func (w *memoryWriter) Save(conf settings.Connection) error {
	w.saved = append(w.saved, conf)
	return w.err
}

func TestGenerateNewConnectionConf(t *testing.T) {
	w := &memoryWriter{}
	conf, err := GenerateNewConnectionConf(context.Background(), ConfRequest{
		Host:     "voice.example.com",
		Nickname: "listener",
	}, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.saved) != 1 || w.saved[0] != conf {
		t.Fatalf("configuration was not written: %+v", w.saved)
	}
	if conf.Port != settings.DefaultPort {
		t.Fatalf("expected default port, got %d", conf.Port)
	}
	if _, err := identity.Import(conf.Identity); err != nil {
		t.Fatalf("generated identity does not import: %v", err)
	}
}

func TestGenerateNewConnectionConf_Invalid(t *testing.T) {
	w := &memoryWriter{}
	_, err := GenerateNewConnectionConf(context.Background(), ConfRequest{Nickname: "listener"}, w)
	if !errors.Is(err, settings.ErrInvalidConnection) {
		t.Fatalf("expected ErrInvalidConnection, got %v", err)
	}
	if len(w.saved) != 0 {
		t.Fatal("invalid configuration was written")
	}
}

func TestGenerateNewConnectionConf_WriteError(t *testing.T) {
	w := &memoryWriter{err: errors.New("disk full")}
	if _, err := GenerateNewConnectionConf(context.Background(), ConfRequest{Host: "h", Nickname: "listener"}, w); err == nil {
		t.Fatal("expected write error")
	}
}
