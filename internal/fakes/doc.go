// Package fakes provides in-memory AWS SDK clients for tests.
//
// The fakes implement the narrow client interfaces the adapters accept and
// emulate the service behaviour the rotation protocol depends on: version
// staging labels in Secrets Manager, the two-key limit in IAM, and
// authentication of a key pair for probe calls. They are manually
// implemented (not generated) to give precise control over test behaviour.
//
// Usage:
//
//	sm := fakes.NewFakeSecretsManagerClient()
//	sm.AddRotatingSecret("jenkins/alice", map[string]string{"ciinabox:iam:user": "alice"})
//	store := secretstore.New(sm)
package fakes
