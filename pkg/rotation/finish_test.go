package rotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinishSecret_Promotes(t *testing.T) {
	store := stagedStore()

	result, err := New(store, stagedAuthority()).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: StepFinish})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)

	var current []string
	for token, stages := range store.versions {
		for _, stage := range stages {
			if stage == StageCurrent {
				current = append(current, token)
			}
		}
	}
	assert.Equal(t, []string{"v2"}, current)
	assert.NotContains(t, store.versions["v1"], StageCurrent)
	assert.NotContains(t, store.versions["v2"], StagePending)

	assert.Equal(t, "k2", store.tags["jenkins:credentials:username"])
	assert.NotContains(t, store.tags, "ciinabox:iam:pending_access_key_id")
	assert.Equal(t, []string{
		"move",
		"tag:jenkins:credentials:username",
		"untag:ciinabox:iam:pending_access_key_id",
	}, store.mutations())
}

func TestFinishSecret_WithoutPreviousVersion(t *testing.T) {
	store := stagedStore()
	delete(store.versions, "v1")

	_, err := New(store, stagedAuthority()).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: StepFinish})
	require.NoError(t, err)
	assert.Contains(t, store.versions["v2"], StageCurrent)
}

func TestFinishSecret_MissingPendingTag(t *testing.T) {
	store := stagedStore()
	delete(store.tags, "ciinabox:iam:pending_access_key_id")

	_, err := New(store, stagedAuthority()).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: StepFinish})
	assert.ErrorIs(t, err, ErrMissingPendingKeyTag)
	assert.Empty(t, store.mutations())
	assert.Contains(t, store.versions["v1"], StageCurrent)
}

func TestFinishSecret_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := stagedStore()
	coord := New(store, stagedAuthority())
	req := Request{SecretID: "alice", Token: "v2", Step: StepFinish}

	_, err := coord.Execute(ctx, req)
	require.NoError(t, err)
	mutations := len(store.mutations())

	result, err := coord.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDone, result.Outcome)
	assert.Len(t, store.mutations(), mutations)
}

func TestFinishSecret_CurrentTokenIsNoop(t *testing.T) {
	store := stagedStore()
	coord := New(store, stagedAuthority())
	rec := NewRecord(mustDescribe(t, store), coord.TagKeys())

	result, err := coord.finishSecret(context.Background(), coord.logger, rec, Request{SecretID: "alice", Token: "v1", Step: StepFinish})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDone, result.Outcome)
	assert.Empty(t, store.mutations())
}

func TestFinishSecret_MoveErrorLeavesTags(t *testing.T) {
	store := stagedStore()
	boom := errors.New("InternalServiceError")
	store.errs["move"] = boom

	_, err := New(store, stagedAuthority()).Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: StepFinish})
	assert.Same(t, boom, err)
	assert.Equal(t, "k2", store.tags["ciinabox:iam:pending_access_key_id"])
	assert.Equal(t, "k1", store.tags["jenkins:credentials:username"])
}

func TestWithTagKeys(t *testing.T) {
	keys := TagKeys{Principal: "iam-user", Identity: "access-key-id", Pending: "pending-access-key-id"}
	store := newMemStore()
	store.tags = map[string]string{"iam-user": "alice", "access-key-id": "k1"}
	authority := newMemAuthority(Credential{ID: "k1", CreatedAt: t0})
	coord := New(store, authority, WithTagKeys(keys))

	for _, step := range Steps {
		_, err := coord.Execute(context.Background(), Request{SecretID: "alice", Token: "v2", Step: step})
		require.NoError(t, err, step)
	}
	assert.Equal(t, map[string]string{"iam-user": "alice", "access-key-id": "k2"}, store.tags)
}
