// Package secretstore implements rotation.SecretStore on AWS Secrets
// Manager.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	krerrors "github.com/systmms/keyrotator/internal/errors"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// SecretsManagerClientAPI defines the Secrets Manager operations the store uses.
// This allows for mocking in tests
type SecretsManagerClientAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error)
	UntagResource(ctx context.Context, params *secretsmanager.UntagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UntagResourceOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// Store is a Secrets Manager backed rotation.SecretStore.
type Store struct {
	client SecretsManagerClientAPI
}

var _ rotation.SecretStore = (*Store)(nil)

// New creates a Store.
func New(client SecretsManagerClientAPI) *Store {
	return &Store{client: client}
}

// NewFromConfig creates a Store with a client built from cfg. endpoint
// overrides the service endpoint when set (LocalStack).
func NewFromConfig(cfg aws.Config, endpoint string) *Store {
	var clientOpts []func(*secretsmanager.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return New(secretsmanager.NewFromConfig(cfg, clientOpts...))
}

// Describe returns the secret's rotation flag, version stages and tags.
func (s *Store) Describe(ctx context.Context, secretID string) (*rotation.SecretMetadata, error) {
	out, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, krerrors.ProviderError(krerrors.ServiceSecretsManager, "DescribeSecret", err)
	}

	meta := &rotation.SecretMetadata{
		ID:              aws.ToString(out.ARN),
		RotationEnabled: aws.ToBool(out.RotationEnabled),
		Versions:        make(map[string][]string, len(out.VersionIdsToStages)),
		Tags:            make(map[string]string, len(out.Tags)),
	}
	if meta.ID == "" {
		meta.ID = secretID
	}
	for id, stages := range out.VersionIdsToStages {
		meta.Versions[id] = append([]string(nil), stages...)
	}
	for _, tag := range out.Tags {
		meta.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return meta, nil
}

// GetValue returns the string value stored under token with stage.
func (s *Store) GetValue(ctx context.Context, secretID, token, stage string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionId:    aws.String(token),
		VersionStage: aws.String(stage),
	})
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("%w: version %s of %s staged %s: %v", rotation.ErrValueNotFound, token, secretID, stage, err)
		}
		return "", krerrors.ProviderError(krerrors.ServiceSecretsManager, "GetSecretValue", err)
	}

	switch {
	case out.SecretString != nil:
		return *out.SecretString, nil
	case out.SecretBinary != nil:
		return string(out.SecretBinary), nil
	default:
		return "", fmt.Errorf("%w: version %s of %s has no value", rotation.ErrValueNotFound, token, secretID)
	}
}

// PutValue stores value as a new version identified by token.
func (s *Store) PutValue(ctx context.Context, secretID, token, value string, stages []string) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(token),
		SecretString:       aws.String(value),
		VersionStages:      stages,
	})
	if err != nil {
		return krerrors.ProviderError(krerrors.ServiceSecretsManager, "PutSecretValue", err)
	}
	return nil
}

// Tag sets one tag on the secret.
func (s *Store) Tag(ctx context.Context, secretID, key, value string) error {
	_, err := s.client.TagResource(ctx, &secretsmanager.TagResourceInput{
		SecretId: aws.String(secretID),
		Tags:     []types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	})
	if err != nil {
		return krerrors.ProviderError(krerrors.ServiceSecretsManager, "TagResource", err)
	}
	return nil
}

// Untag removes one tag from the secret.
func (s *Store) Untag(ctx context.Context, secretID, key string) error {
	_, err := s.client.UntagResource(ctx, &secretsmanager.UntagResourceInput{
		SecretId: aws.String(secretID),
		TagKeys:  []string{key},
	})
	if err != nil {
		return krerrors.ProviderError(krerrors.ServiceSecretsManager, "UntagResource", err)
	}
	return nil
}

// MoveStage moves stage to toToken in one call. Secrets Manager labels the
// previous AWSCURRENT version AWSPREVIOUS.
func (s *Store) MoveStage(ctx context.Context, secretID, stage, toToken, fromToken string) error {
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(secretID),
		VersionStage:    aws.String(stage),
		MoveToVersionId: aws.String(toToken),
	}
	if fromToken != "" {
		input.RemoveFromVersionId = aws.String(fromToken)
	}

	if _, err := s.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return krerrors.ProviderError(krerrors.ServiceSecretsManager, "UpdateSecretVersionStage", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}
