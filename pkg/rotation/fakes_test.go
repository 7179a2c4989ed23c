package rotation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/systmms/keyrotator/internal/secure"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore behaves like Secrets Manager for the calls the coordinator makes.
type memStore struct {
	id       string
	enabled  bool
	versions map[string][]string
	tags     map[string]string
	values   map[string]string

	calls []string
	errs  map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		id:      "arn:aws:secretsmanager:us-east-1:123456789012:secret:/dev/jenkins/mfa/alice-AbCdEf",
		enabled: true,
		versions: map[string][]string{
			"v1": {StageCurrent},
			"v2": {StagePending},
		},
		tags: map[string]string{
			"ciinabox:iam:user":            "alice",
			"jenkins:credentials:username": "k1",
		},
		values: map[string]string{"v1": "secret-k1"},
		errs:   map[string]error{},
	}
}

func (s *memStore) record(call string) error {
	s.calls = append(s.calls, call)
	return s.errs[call]
}

// mutations returns the calls that changed store state.
func (s *memStore) mutations() []string {
	var out []string
	for _, c := range s.calls {
		if c != "describe" && c != "get" {
			out = append(out, c)
		}
	}
	return out
}

func (s *memStore) Describe(ctx context.Context, secretID string) (*SecretMetadata, error) {
	if err := s.record("describe"); err != nil {
		return nil, err
	}
	versions := make(map[string][]string, len(s.versions))
	for k, v := range s.versions {
		versions[k] = slices.Clone(v)
	}
	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	return &SecretMetadata{ID: s.id, RotationEnabled: s.enabled, Versions: versions, Tags: tags}, nil
}

func (s *memStore) GetValue(ctx context.Context, secretID, token, stage string) (string, error) {
	if err := s.record("get"); err != nil {
		return "", err
	}
	value, ok := s.values[token]
	if !ok || !slices.Contains(s.versions[token], stage) {
		return "", ErrValueNotFound
	}
	return value, nil
}

func (s *memStore) PutValue(ctx context.Context, secretID, token, value string, stages []string) error {
	if err := s.record("put"); err != nil {
		return err
	}
	if existing, ok := s.values[token]; ok && existing != value {
		return fmt.Errorf("ResourceExistsException: version %s already has a different value", token)
	}
	s.values[token] = value
	for _, stage := range stages {
		if !slices.Contains(s.versions[token], stage) {
			s.versions[token] = append(s.versions[token], stage)
		}
	}
	return nil
}

func (s *memStore) Tag(ctx context.Context, secretID, key, value string) error {
	if err := s.record("tag:" + key); err != nil {
		return err
	}
	s.tags[key] = value
	return nil
}

func (s *memStore) Untag(ctx context.Context, secretID, key string) error {
	if err := s.record("untag:" + key); err != nil {
		return err
	}
	delete(s.tags, key)
	return nil
}

// MoveStage follows Secrets Manager: the previous holder of AWSCURRENT gets
// AWSPREVIOUS and the promoted version loses AWSPENDING.
func (s *memStore) MoveStage(ctx context.Context, secretID, stage, toToken, fromToken string) error {
	if err := s.record("move"); err != nil {
		return err
	}
	if fromToken != "" {
		s.versions[fromToken] = slices.DeleteFunc(s.versions[fromToken], func(l string) bool { return l == stage })
	}
	if stage == StageCurrent {
		for token := range s.versions {
			s.versions[token] = slices.DeleteFunc(s.versions[token], func(l string) bool { return l == "AWSPREVIOUS" })
		}
		if fromToken != "" {
			s.versions[fromToken] = append(s.versions[fromToken], "AWSPREVIOUS")
		}
		s.versions[toToken] = slices.DeleteFunc(s.versions[toToken], func(l string) bool { return l == StagePending })
	}
	s.versions[toToken] = append(s.versions[toToken], stage)
	return nil
}

// memAuthority is an IAM user store with a deterministic clock.
type memAuthority struct {
	creds   map[string][]Credential
	secrets map[string]string
	now     time.Time
	nextID  int

	calls   []string
	created []string
	deleted []string

	authErr error
	errs    map[string]error
}

func newMemAuthority(existing ...Credential) *memAuthority {
	a := &memAuthority{
		creds:   map[string][]Credential{"alice": existing},
		secrets: map[string]string{},
		now:     t0,
		nextID:  2,
		errs:    map[string]error{},
	}
	for _, c := range existing {
		a.secrets[c.ID] = "secret-" + c.ID
	}
	return a
}

func (a *memAuthority) record(call string) error {
	a.calls = append(a.calls, call)
	return a.errs[call]
}

func (a *memAuthority) ListCredentials(ctx context.Context, principal string) ([]Credential, error) {
	if err := a.record("list"); err != nil {
		return nil, err
	}
	return slices.Clone(a.creds[principal]), nil
}

func (a *memAuthority) CreateCredential(ctx context.Context, principal string) (*IssuedCredential, error) {
	if err := a.record("create"); err != nil {
		return nil, err
	}
	if len(a.creds[principal]) >= MaxCredentials {
		return nil, fmt.Errorf("LimitExceeded: cannot exceed quota for AccessKeysPerUser: %d", MaxCredentials)
	}
	a.now = a.now.Add(time.Minute)
	id := fmt.Sprintf("k%d", a.nextID)
	a.nextID++
	a.creds[principal] = append(a.creds[principal], Credential{ID: id, CreatedAt: a.now})
	a.secrets[id] = "secret-" + id
	a.created = append(a.created, id)
	return &IssuedCredential{ID: id, Secret: secure.FromString("secret-" + id)}, nil
}

func (a *memAuthority) DeleteCredential(ctx context.Context, principal, id string) error {
	if err := a.record("delete"); err != nil {
		return err
	}
	a.creds[principal] = slices.DeleteFunc(a.creds[principal], func(c Credential) bool { return c.ID == id })
	delete(a.secrets, id)
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *memAuthority) Authenticate(ctx context.Context, id, secret string) (*ProbeResult, error) {
	if err := a.record("authenticate"); err != nil {
		return nil, err
	}
	if a.authErr != nil {
		return nil, a.authErr
	}
	if a.secrets[id] != secret {
		return nil, &ProbeError{Class: ClassAuthentication, Code: "InvalidClientTokenId"}
	}
	return &ProbeResult{Identity: "arn:aws:iam::123456789012:user/alice"}, nil
}
