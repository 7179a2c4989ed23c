package rotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/keyrotator/internal/logging"
)

// createSecret issues a new access key for the principal and stages its
// secret as AWSPENDING under the request token.
func (c *Coordinator) createSecret(ctx context.Context, log *logging.Logger, rec *Record, req Request) (Result, error) {
	if rec.Principal == "" {
		return Result{}, c.fail(KindMissingPrincipalTag, req, fmt.Sprintf("secret has no %q tag", c.tags.Principal))
	}

	// A re-delivered createSecret must not burn another key.
	_, err := c.store.GetValue(ctx, rec.ID, req.Token, StagePending)
	switch {
	case err == nil:
		return c.resumeCreate(ctx, log, rec, req)
	case !errors.Is(err, ErrValueNotFound):
		return Result{}, err
	}

	creds, err := c.authority.ListCredentials(ctx, rec.Principal)
	if err != nil {
		return Result{}, err
	}
	sortByAge(creds)

	if len(creds) >= MaxCredentials {
		// Evicting by age alone can remove the active key when a previous
		// rotation stopped after createSecret. Kept as is; flagged below.
		oldest := creds[0]
		active := oldest.ID == rec.ActiveCredentialID
		if active {
			log.Warn("Evicting access key %s of %s, which the secret still names as its active key", oldest.ID, rec.Principal)
		}
		if err := c.authority.DeleteCredential(ctx, rec.Principal, oldest.ID); err != nil {
			return Result{}, err
		}
		c.metrics.KeyEvicted(active)
		log.Info("Deleted oldest access key %s of %s (created %s)", oldest.ID, rec.Principal, oldest.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}

	issued, err := c.authority.CreateCredential(ctx, rec.Principal)
	if err != nil {
		return Result{}, err
	}
	defer issued.Secret.Destroy()
	log.Info("Created access key %s for %s", issued.ID, rec.Principal)

	secret, err := issued.Secret.String()
	if err != nil {
		return Result{}, err
	}
	if err := c.store.PutValue(ctx, rec.ID, req.Token, secret, []string{StagePending}); err != nil {
		return Result{}, err
	}

	if err := c.store.Tag(ctx, rec.ID, c.tags.Pending, issued.ID); err != nil {
		return Result{}, err
	}
	log.Info("Staged access key %s as %s", issued.ID, StagePending)

	return Result{Step: req.Step, Outcome: OutcomeSuccess}, nil
}

// resumeCreate handles a previous run that stored the pending value. The
// newest key of the principal is the one that run created; the pending tag
// may still name a key from an earlier cycle if that run stopped before
// tagging.
func (c *Coordinator) resumeCreate(ctx context.Context, log *logging.Logger, rec *Record, req Request) (Result, error) {
	creds, err := c.authority.ListCredentials(ctx, rec.Principal)
	if err != nil {
		return Result{}, err
	}
	if len(creds) == 0 {
		return Result{}, fmt.Errorf("pending value is staged for %s but %s has no access keys", req.Token, rec.Principal)
	}
	sortByAge(creds)
	newest := creds[len(creds)-1]

	if newest.ID == rec.ActiveCredentialID {
		return Result{}, fmt.Errorf("pending value is staged for %s but the newest access key %s of %s is the active key", req.Token, newest.ID, rec.Principal)
	}
	if rec.PendingCredentialID == newest.ID {
		log.Info("Pending key %s is already staged", rec.PendingCredentialID)
		return Result{Step: req.Step, Outcome: OutcomeAlreadyDone}, nil
	}

	if err := c.store.Tag(ctx, rec.ID, c.tags.Pending, newest.ID); err != nil {
		return Result{}, err
	}
	if rec.PendingCredentialID != "" {
		log.Warn("Pending tag named %s, retagged newest key %s", rec.PendingCredentialID, newest.ID)
	} else {
		log.Warn("Pending value was staged without a pending tag, tagged newest key %s", newest.ID)
	}
	return Result{Step: req.Step, Outcome: OutcomeSuccess}, nil
}
