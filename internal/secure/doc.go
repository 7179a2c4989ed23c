// Package secure keeps freshly issued access key secrets out of plain Go
// memory between the moment IAM returns them and the moment they are written
// to Secrets Manager.
//
// Secrets are sealed in a memguard enclave (XSalsa20Poly1305, mlock'd where
// the platform allows it). The plaintext only exists inside the callback
// passed to Reveal and is wiped as soon as the callback returns.
//
//	buf := secure.FromString(*out.AccessKey.SecretAccessKey)
//	defer buf.Destroy()
//
//	err := buf.Reveal(func(secret []byte) error {
//	    return store.PutValue(ctx, id, token, string(secret), stages)
//	})
//
// Lambda sandboxes run with a small RLIMIT_MEMLOCK. memguard degrades to
// ordinary allocations when mlock fails, so callers never need to handle that
// case.
package secure
