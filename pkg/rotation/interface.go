package rotation

import (
	"context"
	"errors"
	"time"

	"github.com/systmms/keyrotator/internal/secure"
)

// Staging labels understood by the secret store.
const (
	StageCurrent = "AWSCURRENT"
	StagePending = "AWSPENDING"
)

// MaxCredentials is the number of access keys IAM allows per user.
const MaxCredentials = 2

// ErrValueNotFound is returned by SecretStore.GetValue when no value is
// stored for the requested version and stage.
var ErrValueNotFound = errors.New("secret value not found")

// SecretMetadata is what the secret store reports about a secret without
// revealing its value.
type SecretMetadata struct {
	// ID is the identifier the store returned, usually the ARN.
	ID string
	// RotationEnabled is false when rotation has been switched off.
	RotationEnabled bool
	// Versions maps version tokens to their staging labels.
	Versions map[string][]string
	// Tags holds the secret's tags.
	Tags map[string]string
}

// SecretStore is the subset of a versioned secret store the rotation
// protocol needs.
type SecretStore interface {
	// Describe returns the secret's rotation flag, versions and tags.
	Describe(ctx context.Context, secretID string) (*SecretMetadata, error)
	// GetValue returns the value stored under token with the given stage
	// label, or ErrValueNotFound.
	GetValue(ctx context.Context, secretID, token, stage string) (string, error)
	// PutValue stores value under token with the given stages. Repeating the
	// call with the same token and value is safe.
	PutValue(ctx context.Context, secretID, token, value string, stages []string) error
	// Tag sets one tag on the secret, overwriting any existing value.
	Tag(ctx context.Context, secretID, key, value string) error
	// Untag removes one tag from the secret.
	Untag(ctx context.Context, secretID, key string) error
	// MoveStage atomically moves stage from fromToken (which may be empty) to
	// toToken.
	MoveStage(ctx context.Context, secretID, stage, toToken, fromToken string) error
}

// Credential is one live access key of a principal.
type Credential struct {
	ID        string
	CreatedAt time.Time
}

// IssuedCredential is a freshly created access key. Secret must be destroyed
// by whoever consumes it.
type IssuedCredential struct {
	ID     string
	Secret *secure.SecureBuffer
}

// ProbeResult describes the identity a probe call was authenticated as.
type ProbeResult struct {
	// Identity is the ARN (or user name) the authority resolved the key to.
	Identity string
}

// CredentialAuthority issues and verifies access keys for a principal.
type CredentialAuthority interface {
	// ListCredentials returns the principal's live keys in any order.
	ListCredentials(ctx context.Context, principal string) ([]Credential, error)
	// CreateCredential issues a new key for the principal.
	CreateCredential(ctx context.Context, principal string) (*IssuedCredential, error)
	// DeleteCredential deletes one key of the principal.
	DeleteCredential(ctx context.Context, principal, id string) error
	// Authenticate signs a read-only call with the given key pair. Failures
	// the authority could classify are returned as *ProbeError.
	Authenticate(ctx context.Context, id, secret string) (*ProbeResult, error)
}
