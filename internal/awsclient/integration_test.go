//go:build integration

// Integration tests run the adapters and the coordinator against LocalStack
// started with testcontainers. Docker must be running:
//
//	go test -tags=integration ./internal/awsclient/...
package awsclient_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/systmms/keyrotator/internal/awsclient"
	krconfig "github.com/systmms/keyrotator/internal/config"
	"github.com/systmms/keyrotator/pkg/rotation"
)

const (
	pendingToken = "3f1b5a34-8c1e-4b6e-9a61-2f0c6d1e7a55"
	userName     = "jenkins-alice"
	secretName   = "/dev/jenkins/mfa/alice"
)

func startLocalStack(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := localstack.Run(ctx, "localstack/localstack:3.8")
	require.NoError(t, err, "failed to start LocalStack container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	port, err := nat.NewPort("tcp", "4566")
	require.NoError(t, err)
	uri, err := container.PortEndpoint(ctx, port, "")
	require.NoError(t, err)
	if !strings.HasPrefix(uri, "http://") {
		uri = "http://" + uri
	}
	return uri
}

func TestLocalStackRotation(t *testing.T) {
	ctx := context.Background()
	endpoint := startLocalStack(ctx, t)

	def := krconfig.Default()
	def.AWS.Region = "us-east-1"
	def.AWS.Endpoints = krconfig.Endpoints{SecretsManager: endpoint, IAM: endpoint, STS: endpoint}
	def.Probe = krconfig.ProbeSTSGetCallerIdentity

	clients, err := awsclient.New(ctx, def,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	iamClient := iam.NewFromConfig(clients.Config, func(o *iam.Options) { o.BaseEndpoint = aws.String(endpoint) })
	smClient := secretsmanager.NewFromConfig(clients.Config, func(o *secretsmanager.Options) { o.BaseEndpoint = aws.String(endpoint) })

	_, err = iamClient.CreateUser(ctx, &iam.CreateUserInput{UserName: aws.String(userName)})
	require.NoError(t, err)
	initial, err := clients.Authority.CreateCredential(ctx, userName)
	require.NoError(t, err)
	initialSecret, err := initial.Secret.String()
	require.NoError(t, err)

	_, err = smClient.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secretName),
		SecretString: aws.String(initialSecret),
		Tags: []smtypes.Tag{
			{Key: aws.String("ciinabox:iam:user"), Value: aws.String(userName)},
			{Key: aws.String("jenkins:credentials:username"), Value: aws.String(initial.ID)},
		},
	})
	require.NoError(t, err)

	t.Run("adapters", func(t *testing.T) {
		creds, err := clients.Authority.ListCredentials(ctx, userName)
		require.NoError(t, err)
		require.Len(t, creds, 1)
		assert.Equal(t, initial.ID, creds[0].ID)

		meta, err := clients.Store.Describe(ctx, secretName)
		require.NoError(t, err)
		assert.Equal(t, userName, meta.Tags["ciinabox:iam:user"])

		_, err = clients.Store.GetValue(ctx, secretName, pendingToken, rotation.StagePending)
		assert.ErrorIs(t, err, rotation.ErrValueNotFound)
	})

	t.Run("stage, probe and promote", func(t *testing.T) {
		// LocalStack cannot invoke a rotation function, so the pending
		// version is staged the way createSecret would.
		issued, err := clients.Authority.CreateCredential(ctx, userName)
		require.NoError(t, err)
		secret, err := issued.Secret.String()
		require.NoError(t, err)

		require.NoError(t, clients.Store.PutValue(ctx, secretName, pendingToken, secret, []string{rotation.StagePending}))
		require.NoError(t, clients.Store.Tag(ctx, secretName, def.Tags.Pending, issued.ID))

		coord := rotation.New(clients.Store, clients.Authority, rotation.WithTagKeys(def.TagKeys()))
		_, err = coord.Execute(ctx, rotation.Request{SecretID: secretName, Token: pendingToken, Step: rotation.StepTest})
		require.NoError(t, err)

		result, err := coord.Execute(ctx, rotation.Request{SecretID: secretName, Token: pendingToken, Step: rotation.StepFinish})
		require.NoError(t, err)
		assert.Equal(t, rotation.OutcomeSuccess, result.Outcome)

		meta, err := clients.Store.Describe(ctx, secretName)
		require.NoError(t, err)
		assert.Contains(t, meta.Versions[pendingToken], rotation.StageCurrent)
		assert.Equal(t, issued.ID, meta.Tags[def.Tags.Identity])
		assert.NotContains(t, meta.Tags, def.Tags.Pending)

		value, err := clients.Store.GetValue(ctx, secretName, pendingToken, rotation.StageCurrent)
		require.NoError(t, err)
		assert.Equal(t, secret, value)
	})
}
