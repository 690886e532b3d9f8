package client

import (
	"context"
	"fmt"

	"voicelink/application/logging"
	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/session"
	"voicelink/infrastructure/settings"
)

type ConfigurationManager interface {
	Configuration() (settings.Connection, error)
	Save(conf settings.Connection) error
}

type AppDependencies interface {
	Initialize(ctx context.Context) error
	Configuration() settings.Connection
	Client() Client
}

// Dependencies reads the connection settings and builds the session. An
// identity is generated and saved on first use so the server keeps
// recognising the client.
type Dependencies struct {
	cfgManager ConfigurationManager
	logger     logging.Logger
	conf       settings.Connection
	client     Client
}

func NewDependencies(cfgManager ConfigurationManager, logger logging.Logger) AppDependencies {
	return &Dependencies{cfgManager: cfgManager, logger: logger}
}

func (d *Dependencies) Initialize(ctx context.Context) error {
	conf, err := d.cfgManager.Configuration()
	if err != nil {
		return fmt.Errorf("failed to read connection configuration: %w", err)
	}

	if conf.Identity == "" {
		d.logger.Printf("generating identity at security level %d", conf.SecurityLevel)
		id, genErr := identity.Generate(ctx, conf.SecurityLevel)
		if genErr != nil {
			return fmt.Errorf("failed to generate identity: %w", genErr)
		}
		if conf.Identity, err = id.Export(); err != nil {
			return fmt.Errorf("failed to export identity: %w", err)
		}
		if err := d.cfgManager.Save(conf); err != nil {
			return fmt.Errorf("failed to save identity: %w", err)
		}
	}

	s, err := session.New(session.Options{Connection: conf, Logger: d.logger})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	d.conf = conf
	d.client = s
	return nil
}

func (d *Dependencies) Configuration() settings.Connection {
	return d.conf
}

func (d *Dependencies) Client() Client {
	return d.client
}
