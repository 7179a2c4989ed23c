// Package awsclient loads the AWS configuration and builds the Secrets
// Manager and IAM adapters from a keyrotator configuration.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/systmms/keyrotator/internal/authority"
	krconfig "github.com/systmms/keyrotator/internal/config"
	"github.com/systmms/keyrotator/internal/secretstore"
)

// Clients holds the adapters the coordinator runs against.
type Clients struct {
	Config    aws.Config
	Store     *secretstore.Store
	Authority *authority.Authority
}

// LoadConfig returns an AWS config with adaptive retry mode enabled. An
// empty region leaves the SDK's default resolution (AWS_REGION) in place.
func LoadConfig(ctx context.Context, region string, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	opts = append(opts, optFns...)

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// New builds the clients described by def.
func New(ctx context.Context, def *krconfig.Definition, optFns ...func(*config.LoadOptions) error) (*Clients, error) {
	cfg, err := LoadConfig(ctx, def.AWS.Region, optFns...)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg, def), nil
}

// FromConfig builds the clients from an already loaded AWS config.
func FromConfig(cfg aws.Config, def *krconfig.Definition) *Clients {
	endpoints := def.AWS.Endpoints
	return &Clients{
		Config: cfg,
		Store:  secretstore.NewFromConfig(cfg, endpoints.SecretsManager),
		Authority: authority.NewFromConfig(cfg,
			authority.WithProbe(def.Probe),
			authority.WithEndpoints(endpoints.IAM, endpoints.STS),
		),
	}
}
