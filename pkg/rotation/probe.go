package rotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/keyrotator/internal/logging"
	"github.com/systmms/keyrotator/internal/metrics"
)

// testSecret proves the pending key authenticates. Only a ClassAuthentication
// failure rejects the key; any other classified failure still passes.
func (c *Coordinator) testSecret(ctx context.Context, log *logging.Logger, rec *Record, req Request) (Result, error) {
	if rec.Principal == "" {
		return Result{}, c.fail(KindMissingPrincipalTag, req, fmt.Sprintf("secret has no %q tag", c.tags.Principal))
	}
	if rec.PendingCredentialID == "" {
		return Result{}, c.fail(KindMissingPendingKeyTag, req, fmt.Sprintf("secret has no %q tag, createSecret has not completed", c.tags.Pending))
	}

	secret, err := c.store.GetValue(ctx, rec.ID, req.Token, StagePending)
	if err != nil {
		return Result{}, err
	}

	log.Debug("Authenticating access key %s with secret %s", rec.PendingCredentialID, logging.Secret(secret))
	probe, err := c.authority.Authenticate(ctx, rec.PendingCredentialID, secret)
	if err != nil {
		var perr *ProbeError
		if !errors.As(err, &perr) {
			return Result{}, err
		}
		if perr.Class == ClassAuthentication {
			c.metrics.ProbeResult(metrics.ProbeRejected)
			rerr := c.fail(KindCredentialAuthenticationFailed, req, fmt.Sprintf("access key %s was rejected", rec.PendingCredentialID))
			rerr.Err = perr
			return Result{}, rerr
		}
		c.metrics.ProbeResult(metrics.ProbeUnauthorized)
		log.Info("Access key %s is authentic (probe denied with %s)", rec.PendingCredentialID, perr.Code)
		return Result{Step: req.Step, Outcome: OutcomeSuccess}, nil
	}

	c.metrics.ProbeResult(metrics.ProbeAuthenticated)
	identity := ""
	if probe != nil {
		identity = probe.Identity
	}
	log.Info("Access key %s authenticated as %s", rec.PendingCredentialID, identity)
	return Result{Step: req.Step, Outcome: OutcomeSuccess}, nil
}
