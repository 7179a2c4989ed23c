package rotation

import (
	"context"
	"fmt"

	"github.com/systmms/keyrotator/internal/logging"
	"github.com/systmms/keyrotator/internal/metrics"
)

// Step is one of the four rotation steps named by the trigger.
type Step string

const (
	StepCreate Step = "createSecret"
	StepSet    Step = "setSecret"
	StepTest   Step = "testSecret"
	StepFinish Step = "finishSecret"
)

// Steps lists the protocol's steps in execution order.
var Steps = []Step{StepCreate, StepSet, StepTest, StepFinish}

// Valid reports whether s is one of the four protocol steps.
func (s Step) Valid() bool {
	switch s {
	case StepCreate, StepSet, StepTest, StepFinish:
		return true
	}
	return false
}

// Request identifies one step invocation.
type Request struct {
	SecretID string
	Token    string
	Step     Step
}

// Outcome tells a successful invocation apart from a re-delivered one.
type Outcome string

const (
	// OutcomeSuccess means the step ran.
	OutcomeSuccess Outcome = "Success"
	// OutcomeAlreadyDone means the step had nothing left to do.
	OutcomeAlreadyDone Outcome = "NoOpAlreadyDone"
)

// Result is returned by a step that did not fail.
type Result struct {
	Step    Step
	Outcome Outcome
}

// Coordinator validates the staging state of a secret and runs rotation
// steps against the injected store and authority.
type Coordinator struct {
	store     SecretStore
	authority CredentialAuthority
	tags      TagKeys
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTagKeys overrides the tag names.
func WithTagKeys(keys TagKeys) Option {
	return func(c *Coordinator) {
		c.tags = keys
	}
}

// WithMetrics records eviction and probe metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a Coordinator.
func New(store SecretStore, authority CredentialAuthority, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		authority: authority,
		tags:      DefaultTagKeys(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TagKeys returns the tag names the coordinator reads and writes.
func (c *Coordinator) TagKeys() TagKeys {
	return c.tags
}

// Execute validates the secret's staging state for req.Token and runs
// req.Step. Errors from the store or authority are returned unmodified;
// terminal protocol failures are *Error.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Result, error) {
	log := c.logger.With("secret_id", req.SecretID, "token", req.Token, "step", string(req.Step))

	meta, err := c.store.Describe(ctx, req.SecretID)
	if err != nil {
		return Result{}, err
	}
	rec := NewRecord(meta, c.tags)

	if !rec.RotationEnabled {
		return Result{}, c.fail(KindRotationDisabled, req, "rotation is not enabled for this secret")
	}
	if _, ok := rec.Versions[req.Token]; !ok {
		return Result{}, c.fail(KindUnknownVersion, req, "secret has no version with this token")
	}
	if rec.HasStage(req.Token, StageCurrent) {
		log.Info("Version is already %s, nothing to do", StageCurrent)
		return Result{Step: req.Step, Outcome: OutcomeAlreadyDone}, nil
	}
	if !rec.HasStage(req.Token, StagePending) {
		return Result{}, c.fail(KindNotPending, req, fmt.Sprintf("version is not staged %s", StagePending))
	}

	switch req.Step {
	case StepCreate:
		return c.createSecret(ctx, log, rec, req)
	case StepSet:
		return c.setSecret(log, req)
	case StepTest:
		return c.testSecret(ctx, log, rec, req)
	case StepFinish:
		return c.finishSecret(ctx, log, rec, req)
	default:
		return Result{}, c.fail(KindInvalidStep, req, fmt.Sprintf("unknown step %q", req.Step))
	}
}

// setSecret has nothing to push anywhere: IAM activates a key on creation.
func (c *Coordinator) setSecret(log *logging.Logger, req Request) (Result, error) {
	log.Debug("Access keys are active on creation, nothing to set")
	return Result{Step: req.Step, Outcome: OutcomeSuccess}, nil
}

func (c *Coordinator) fail(kind ErrorKind, req Request, message string) *Error {
	return &Error{
		Kind:     kind,
		SecretID: req.SecretID,
		Token:    req.Token,
		Step:     req.Step,
		Message:  message,
	}
}
