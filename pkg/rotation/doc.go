// Package rotation implements the four-step rotation protocol for a secret
// that holds an IAM user's access key.
//
// The rotation trigger (Secrets Manager) invokes the Coordinator once per
// step with the secret ID, the version token being rotated in and the step
// name:
//
//  1. createSecret: evict the principal's oldest key if it already has two,
//     issue a new key, stage its secret as AWSPENDING and remember its ID in
//     the pending tag.
//  2. setSecret: nothing to do, an IAM key is live as soon as it is issued.
//  3. testSecret: sign a read-only call with the pending key. Rejected
//     credentials fail the step; an authorization error still proves the key
//     is authentic and passes.
//  4. finishSecret: move AWSCURRENT to the token, record the new key ID in
//     the identity tag and drop the pending tag.
//
// Every invocation re-validates the secret's staging state before running a
// step, and every step tolerates being re-delivered, so the trigger can retry
// any step at any time.
//
// # Usage
//
//	coord := rotation.New(store, authority,
//	    rotation.WithLogger(logger),
//	    rotation.WithMetrics(m),
//	)
//
//	result, err := coord.Execute(ctx, rotation.Request{
//	    SecretID: event.SecretID,
//	    Token:    event.ClientRequestToken,
//	    Step:     rotation.Step(event.Step),
//	})
//	switch {
//	case errors.Is(err, rotation.ErrCredentialAuthenticationFailed):
//	    // the trigger will retry testSecret later
//	case err != nil:
//	    return err
//	case result.Outcome == rotation.OutcomeAlreadyDone:
//	    // re-delivered step, nothing changed
//	}
//
// # Concurrency
//
// The Coordinator holds no per-secret state and takes no locks. Invocations
// for the same secret must be serialized by the caller; Secrets Manager does
// this for its own rotations.
package rotation
