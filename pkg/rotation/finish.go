package rotation

import (
	"context"
	"fmt"

	"github.com/systmms/keyrotator/internal/logging"
)

// finishSecret promotes the pending version and makes its key the secret's
// recorded identity.
func (c *Coordinator) finishSecret(ctx context.Context, log *logging.Logger, rec *Record, req Request) (Result, error) {
	if rec.HasStage(req.Token, StageCurrent) {
		return Result{Step: req.Step, Outcome: OutcomeAlreadyDone}, nil
	}
	previous, _ := rec.VersionWithStage(StageCurrent)

	if rec.PendingCredentialID == "" {
		return Result{}, c.fail(KindMissingPendingKeyTag, req, fmt.Sprintf("secret has no %q tag", c.tags.Pending))
	}

	if err := c.store.MoveStage(ctx, rec.ID, StageCurrent, req.Token, previous); err != nil {
		return Result{}, err
	}
	log.Info("Moved %s from version %q to %s", StageCurrent, previous, req.Token)

	if err := c.store.Tag(ctx, rec.ID, c.tags.Identity, rec.PendingCredentialID); err != nil {
		return Result{}, err
	}
	if err := c.store.Untag(ctx, rec.ID, c.tags.Pending); err != nil {
		return Result{}, err
	}
	log.Info("Access key %s is now active", rec.PendingCredentialID)

	return Result{Step: req.Step, Outcome: OutcomeSuccess}, nil
}
