package commands

import (
	"context"
	"fmt"

	"github.com/systmms/keyrotator/internal/awsclient"
	"github.com/systmms/keyrotator/internal/config"
	"github.com/systmms/keyrotator/internal/logging"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// Clients builds the secret store and credential authority for a loaded
// configuration.
type Clients func(ctx context.Context, def *config.Definition) (rotation.SecretStore, rotation.CredentialAuthority, error)

// AWSClients builds the Secrets Manager and IAM adapters.
func AWSClients(ctx context.Context, def *config.Definition) (rotation.SecretStore, rotation.CredentialAuthority, error) {
	clients, err := awsclient.New(ctx, def)
	if err != nil {
		return nil, nil, err
	}
	return clients.Store, clients.Authority, nil
}

// NewLogger returns a JSON logger on stdout or a console logger on stderr.
func NewLogger(debug, noColor, json bool) *logging.Logger {
	if json {
		return logging.NewJSON(debug)
	}
	return logging.New(debug, noColor)
}

// loadConfig loads the configuration and switches the logger when the file
// or environment asks for more than the flags did.
func loadConfig(cfg *config.Config) error {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if l := cfg.Definition.Logging; l.Debug || l.JSON {
		cfg.Logger = NewLogger(l.Debug, false, l.JSON)
	}
	return nil
}

// newCoordinator loads the configuration and wires a coordinator to the
// clients it describes.
func newCoordinator(ctx context.Context, cfg *config.Config, clients Clients, opts ...rotation.Option) (*rotation.Coordinator, error) {
	if err := loadConfig(cfg); err != nil {
		return nil, err
	}
	store, authority, err := clients(ctx, cfg.Definition)
	if err != nil {
		return nil, err
	}
	opts = append([]rotation.Option{
		rotation.WithLogger(cfg.Logger),
		rotation.WithTagKeys(cfg.Definition.TagKeys()),
	}, opts...)
	return rotation.New(store, authority, opts...), nil
}
