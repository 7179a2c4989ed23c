package awsclient_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/keyrotator/internal/awsclient"
	krconfig "github.com/systmms/keyrotator/internal/config"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := awsclient.LoadConfig(context.Background(), "eu-west-1",
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIATEST", "secret", "")),
	)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, aws.RetryModeAdaptive, cfg.RetryMode)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIATEST", creds.AccessKeyID)
}

func TestFromConfig(t *testing.T) {
	def := krconfig.Default()
	def.AWS.Endpoints.SecretsManager = "http://localhost:4566"

	clients := awsclient.FromConfig(aws.Config{Region: "us-east-1"}, def)
	assert.NotNil(t, clients.Store)
	assert.NotNil(t, clients.Authority)
	assert.Equal(t, "us-east-1", clients.Config.Region)
}
