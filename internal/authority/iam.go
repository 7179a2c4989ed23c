// Package authority implements rotation.CredentialAuthority on AWS IAM.
//
// Access keys are listed, created and deleted with the rotator's own
// credentials. Authenticate signs a read-only call with the key pair under
// test using a throwaway client, and classifies the failure codes IAM and
// STS return so the coordinator can tell a rejected key from one that is
// merely not permitted to make the probe call.
package authority

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	krerrors "github.com/systmms/keyrotator/internal/errors"
	"github.com/systmms/keyrotator/internal/secure"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// Probe methods.
const (
	ProbeIAMGetUser           = "iam-get-user"
	ProbeSTSGetCallerIdentity = "sts-get-caller-identity"
)

// IAMOperations interface for AWS IAM key management operations
type IAMOperations interface {
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
}

// IAMProbeAPI is the IAM call used to probe a key pair.
type IAMProbeAPI interface {
	GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error)
}

// STSProbeAPI is the STS call used to probe a key pair.
type STSProbeAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Error codes that mean the key pair itself was not accepted.
var authenticationCodes = map[string]bool{
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
	"UnrecognizedClientException": true,
	"AuthFailure":                 true,
	"InvalidAccessKeyId":          true,
}

// Error codes that mean the key pair was accepted but the call was not allowed.
var authorizationCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
}

// Authority is an IAM backed rotation.CredentialAuthority.
type Authority struct {
	iam         IAMOperations
	base        aws.Config
	probe       string
	iamEndpoint string
	stsEndpoint string

	newIAMProbe func(aws.Config) IAMProbeAPI
	newSTSProbe func(aws.Config) STSProbeAPI
}

var _ rotation.CredentialAuthority = (*Authority)(nil)

// Option is a functional option for configuring the authority
type Option func(*Authority)

// WithProbe selects the probe call. The default is ProbeIAMGetUser.
func WithProbe(method string) Option {
	return func(a *Authority) {
		a.probe = method
	}
}

// WithEndpoints overrides the IAM and STS endpoints of probe clients.
func WithEndpoints(iamEndpoint, stsEndpoint string) Option {
	return func(a *Authority) {
		a.iamEndpoint = iamEndpoint
		a.stsEndpoint = stsEndpoint
	}
}

// WithProbeClients replaces the constructors of probe clients (for testing)
func WithProbeClients(newIAM func(aws.Config) IAMProbeAPI, newSTS func(aws.Config) STSProbeAPI) Option {
	return func(a *Authority) {
		if newIAM != nil {
			a.newIAMProbe = newIAM
		}
		if newSTS != nil {
			a.newSTSProbe = newSTS
		}
	}
}

// New creates an Authority. base supplies the region, retry and HTTP
// settings of probe clients; its credentials are never used for probes.
func New(client IAMOperations, base aws.Config, opts ...Option) *Authority {
	a := &Authority{
		iam:   client,
		base:  base,
		probe: ProbeIAMGetUser,
	}
	a.newIAMProbe = func(cfg aws.Config) IAMProbeAPI {
		return iam.NewFromConfig(cfg, func(o *iam.Options) {
			if a.iamEndpoint != "" {
				o.BaseEndpoint = aws.String(a.iamEndpoint)
			}
		})
	}
	a.newSTSProbe = func(cfg aws.Config) STSProbeAPI {
		return sts.NewFromConfig(cfg, func(o *sts.Options) {
			if a.stsEndpoint != "" {
				o.BaseEndpoint = aws.String(a.stsEndpoint)
			}
		})
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig creates an Authority with an IAM client built from cfg.
func NewFromConfig(cfg aws.Config, opts ...Option) *Authority {
	a := New(nil, cfg, opts...)
	a.iam = iam.NewFromConfig(cfg, func(o *iam.Options) {
		if a.iamEndpoint != "" {
			o.BaseEndpoint = aws.String(a.iamEndpoint)
		}
	})
	return a
}

// ListCredentials returns every access key of the user, active or not.
// Inactive keys count towards the IAM limit too.
func (a *Authority) ListCredentials(ctx context.Context, principal string) ([]rotation.Credential, error) {
	var creds []rotation.Credential

	paginator := iam.NewListAccessKeysPaginator(a.iam, &iam.ListAccessKeysInput{
		UserName: aws.String(principal),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, krerrors.ProviderError(krerrors.ServiceIAM, "ListAccessKeys", err)
		}
		for _, key := range page.AccessKeyMetadata {
			creds = append(creds, rotation.Credential{
				ID:        aws.ToString(key.AccessKeyId),
				CreatedAt: aws.ToTime(key.CreateDate),
			})
		}
	}
	return creds, nil
}

// CreateCredential issues a new access key for the user.
func (a *Authority) CreateCredential(ctx context.Context, principal string) (*rotation.IssuedCredential, error) {
	out, err := a.iam.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(principal),
	})
	if err != nil {
		return nil, krerrors.ProviderError(krerrors.ServiceIAM, "CreateAccessKey", err)
	}
	if out.AccessKey == nil {
		return nil, fmt.Errorf("CreateAccessKey for %s returned no access key", principal)
	}

	return &rotation.IssuedCredential{
		ID:     aws.ToString(out.AccessKey.AccessKeyId),
		Secret: secure.FromString(aws.ToString(out.AccessKey.SecretAccessKey)),
	}, nil
}

// DeleteCredential deletes one access key of the user.
func (a *Authority) DeleteCredential(ctx context.Context, principal, id string) error {
	_, err := a.iam.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		UserName:    aws.String(principal),
		AccessKeyId: aws.String(id),
	})
	if err != nil {
		return krerrors.ProviderError(krerrors.ServiceIAM, "DeleteAccessKey", err)
	}
	return nil
}

// Authenticate makes the probe call signed with the key pair.
func (a *Authority) Authenticate(ctx context.Context, id, secret string) (*rotation.ProbeResult, error) {
	cfg := a.base.Copy()
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(id, secret, ""))

	switch a.probe {
	case ProbeSTSGetCallerIdentity:
		out, err := a.newSTSProbe(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return nil, classify(krerrors.ServiceSTS, "GetCallerIdentity", err)
		}
		return &rotation.ProbeResult{Identity: aws.ToString(out.Arn)}, nil

	case ProbeIAMGetUser, "":
		out, err := a.newIAMProbe(cfg).GetUser(ctx, &iam.GetUserInput{})
		if err != nil {
			return nil, classify(krerrors.ServiceIAM, "GetUser", err)
		}
		identity := ""
		if out.User != nil {
			identity = aws.ToString(out.User.Arn)
		}
		return &rotation.ProbeResult{Identity: identity}, nil

	default:
		return nil, fmt.Errorf("unknown probe %q", a.probe)
	}
}

// classify turns API errors with a known code into *rotation.ProbeError.
// Codes outside both lists (throttling, service errors) say nothing about the
// key pair and are returned as plain errors so the step fails and is retried.
func classify(service, operation string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return krerrors.ProviderError(service, operation, err)
	}

	code := apiErr.ErrorCode()
	switch {
	case authenticationCodes[code]:
		return &rotation.ProbeError{Class: rotation.ClassAuthentication, Code: code, Err: err}
	case authorizationCodes[code]:
		return &rotation.ProbeError{Class: rotation.ClassAuthorization, Code: code, Err: err}
	default:
		return krerrors.ProviderError(service, operation, err)
	}
}
