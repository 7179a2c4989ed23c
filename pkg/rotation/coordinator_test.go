package rotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_Valid(t *testing.T) {
	for _, step := range Steps {
		assert.True(t, step.Valid(), step)
	}
	assert.False(t, Step("rotateSecret").Valid())
	assert.False(t, Step("").Valid())
}

func TestCoordinator_Validation(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *memStore)
		token    string
		step     Step
		wantKind ErrorKind
	}{
		{
			name:     "rotation disabled",
			setup:    func(s *memStore) { s.enabled = false },
			token:    "v2",
			step:     StepCreate,
			wantKind: KindRotationDisabled,
		},
		{
			name:     "rotation disabled wins over unknown token",
			setup:    func(s *memStore) { s.enabled = false },
			token:    "nope",
			step:     StepFinish,
			wantKind: KindRotationDisabled,
		},
		{
			name:     "unknown version",
			token:    "v9",
			step:     StepCreate,
			wantKind: KindUnknownVersion,
		},
		{
			name:     "version without pending stage",
			setup:    func(s *memStore) { s.versions["v0"] = []string{"AWSPREVIOUS"} },
			token:    "v0",
			step:     StepTest,
			wantKind: KindNotPending,
		},
		{
			name:     "invalid step",
			token:    "v2",
			step:     Step("rotateSecret"),
			wantKind: KindInvalidStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})

			_, err := New(store, authority).Execute(context.Background(), Request{SecretID: "alice", Token: tt.token, Step: tt.step})
			require.Error(t, err)

			kind, ok := KindOf(err)
			require.True(t, ok, "expected *Error, got %T", err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Empty(t, store.mutations())
			assert.Empty(t, authority.calls)
		})
	}
}

func TestCoordinator_RotationDisabledAnyStep(t *testing.T) {
	for _, step := range Steps {
		t.Run(string(step), func(t *testing.T) {
			store := newMemStore()
			store.enabled = false
			authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})

			_, err := New(store, authority).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: step})
			assert.ErrorIs(t, err, ErrRotationDisabled)
			assert.Equal(t, []string{"describe"}, store.calls)
			assert.Empty(t, authority.calls)
		})
	}
}

func TestCoordinator_CurrentTokenIsNoop(t *testing.T) {
	for _, step := range Steps {
		t.Run(string(step), func(t *testing.T) {
			store := newMemStore()
			authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})

			result, err := New(store, authority).Execute(context.Background(), Request{SecretID: "alice", Token: "v1", Step: step})
			require.NoError(t, err)
			assert.Equal(t, OutcomeAlreadyDone, result.Outcome)
			assert.Empty(t, store.mutations())
			assert.Empty(t, authority.calls)
		})
	}
}

func TestCoordinator_DescribeErrorPropagatesUnmodified(t *testing.T) {
	store := newMemStore()
	throttled := errors.New("ThrottlingException: Rate exceeded")
	store.errs["describe"] = throttled

	_, err := New(store, newMemAuthority()).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: StepCreate})
	assert.Same(t, throttled, err)
}

func TestCoordinator_SetSecretIsNoop(t *testing.T) {
	store := newMemStore()
	authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})

	result, err := New(store, authority).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: StepSet})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, StepSet, result.Step)
	assert.Empty(t, store.mutations())
	assert.Empty(t, authority.calls)
}

func TestCoordinator_FullCycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})
	coord := New(store, authority)

	for _, step := range Steps {
		result, err := coord.Execute(ctx, Request{SecretID: "alice", Token: "v2", Step: step})
		require.NoError(t, err, step)
		assert.Equal(t, OutcomeSuccess, result.Outcome, step)
	}

	current, ok := NewRecord(mustDescribe(t, store), DefaultTagKeys()).VersionWithStage(StageCurrent)
	require.True(t, ok)
	assert.Equal(t, "v2", current)
	assert.Equal(t, "k2", store.tags["jenkins:credentials:username"])
	assert.NotContains(t, store.tags, "ciinabox:iam:pending_access_key_id")
	assert.Len(t, authority.creds["alice"], 2)

	// at-least-once delivery: every step replayed after finish is a no-op
	for _, step := range Steps {
		result, err := coord.Execute(ctx, Request{SecretID: "alice", Token: "v2", Step: step})
		require.NoError(t, err, step)
		assert.Equal(t, OutcomeAlreadyDone, result.Outcome, step)
	}
	assert.Equal(t, []string{"k2"}, authority.created)
}

func TestCoordinator_ConsecutiveRotations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})
	coord := New(store, authority)

	rotate := func(token string) {
		store.versions[token] = []string{StagePending}
		for _, step := range Steps {
			_, err := coord.Execute(ctx, Request{SecretID: "alice", Token: token, Step: step})
			require.NoError(t, err, "%s %s", token, step)
		}
	}

	rotate("v2")
	rotate("v3")

	assert.Equal(t, []string{"k1"}, authority.deleted)
	assert.Equal(t, "k3", store.tags["jenkins:credentials:username"])
	assert.Equal(t, "secret-k3", store.values["v3"])
	for _, c := range authority.creds["alice"] {
		assert.Contains(t, []string{"k2", "k3"}, c.ID)
	}
}

func TestError_Formatting(t *testing.T) {
	err := &Error{
		Kind:     KindNotPending,
		SecretID: "alice",
		Token:    "v0",
		Step:     StepTest,
		Message:  "version is not staged AWSPENDING",
	}
	assert.Equal(t, "testSecret: NotPending: version is not staged AWSPENDING (secret alice, version v0)", err.Error())
	assert.ErrorIs(t, err, ErrNotPending)
	assert.NotErrorIs(t, err, ErrInvalidStep)

	wrapped := &Error{Kind: KindCredentialAuthenticationFailed, Err: &ProbeError{Class: ClassAuthentication, Code: "InvalidClientTokenId"}}
	var perr *ProbeError
	require.ErrorAs(t, wrapped, &perr)
	assert.Equal(t, "InvalidClientTokenId", perr.Code)

	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func mustDescribe(t *testing.T, store *memStore) *SecretMetadata {
	t.Helper()
	meta, err := store.Describe(context.Background(), store.id)
	require.NoError(t, err)
	return meta
}
