package handlers

import (
	"context"
	"fmt"

	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/settings"
)

type ConfigurationWriter interface {
	Save(conf settings.Connection) error
}

// ConfRequest holds the values a user supplies for a new connection file.
type ConfRequest struct {
	Host           string
	Port           uint16
	Nickname       string
	DefaultChannel string
	SecurityLevel  int
	Codec          settings.VoiceCodec
}

// GenerateNewConnectionConf builds a connection file with a fresh
// identity, validates it and writes it.
func GenerateNewConnectionConf(ctx context.Context, req ConfRequest, w ConfigurationWriter) (settings.Connection, error) {
	conf, err := generate(ctx, req)
	if err != nil {
		return settings.Connection{}, fmt.Errorf("failed to generate connection conf: %w", err)
	}
	if err := w.Save(conf); err != nil {
		return settings.Connection{}, fmt.Errorf("failed to write connection conf: %w", err)
	}
	return conf, nil
}

func generate(ctx context.Context, req ConfRequest) (settings.Connection, error) {
	conf := settings.Connection{
		Host:           req.Host,
		Port:           req.Port,
		Nickname:       req.Nickname,
		DefaultChannel: req.DefaultChannel,
		SecurityLevel:  req.SecurityLevel,
		Codec:          req.Codec,
	}.WithDefaults()
	if err := conf.Validate(); err != nil {
		return settings.Connection{}, err
	}

	id, err := identity.Generate(ctx, conf.SecurityLevel)
	if err != nil {
		return settings.Connection{}, err
	}
	if conf.Identity, err = id.Export(); err != nil {
		return settings.Connection{}, err
	}
	return conf, nil
}
