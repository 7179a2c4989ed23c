// Package handler adapts the rotation coordinator to Secrets Manager
// rotation invocations delivered through AWS Lambda.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	krerrors "github.com/systmms/keyrotator/internal/errors"
	"github.com/systmms/keyrotator/internal/logging"
	"github.com/systmms/keyrotator/internal/metrics"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// ErrMissingSecretID is returned for an invocation without a SecretId.
var ErrMissingSecretID = errors.New("rotation event has no SecretId")

// Event is the payload Secrets Manager sends to a rotation function.
type Event struct {
	SecretId           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
	Step               string `json:"Step"`
}

// Executor runs one rotation step.
type Executor interface {
	Execute(ctx context.Context, req rotation.Request) (rotation.Result, error)
}

// Handler runs rotation invocations and reports them.
type Handler struct {
	executor Executor
	logger   *logging.Logger
	metrics  *metrics.Metrics

	pushgateway string
	job         string
	now         func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records step metrics, pushing them to gatewayURL after every
// invocation when it is set.
func WithMetrics(m *metrics.Metrics, gatewayURL, job string) Option {
	return func(h *Handler) {
		h.metrics = m
		h.pushgateway = gatewayURL
		h.job = job
	}
}

// WithClock replaces time.Now (for testing)
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a Handler.
func New(executor Executor, opts ...Option) *Handler {
	h := &Handler{
		executor: executor,
		logger:   logging.Nop(),
		job:      "keyrotator",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start hands the handler to the Lambda runtime. It does not return.
func (h *Handler) Start() {
	lambda.Start(h.Handle)
}

// Handle runs one rotation step. The returned error fails the invocation so
// that Secrets Manager retries it.
func (h *Handler) Handle(ctx context.Context, event Event) error {
	_, err := h.Run(ctx, event)
	return err
}

// Run is Handle that also returns the step result.
func (h *Handler) Run(ctx context.Context, event Event) (rotation.Result, error) {
	log := h.logger.With("secret_id", event.SecretId, "token", event.ClientRequestToken, "step", event.Step)
	defer func() { _ = log.Sync() }()

	if event.SecretId == "" {
		log.Error("Ignoring invocation: %v", ErrMissingSecretID)
		return rotation.Result{}, ErrMissingSecretID
	}

	start := h.now()
	result, err := h.executor.Execute(ctx, rotation.Request{
		SecretID: event.SecretId,
		Token:    event.ClientRequestToken,
		Step:     rotation.Step(event.Step),
	})
	elapsed := h.now().Sub(start)

	outcome := string(result.Outcome)
	if err != nil {
		outcome = outcomeLabel(err)
		log.Error("Step failed after %s: %v", elapsed, err)
	} else {
		log.Info("Step finished with %s in %s", result.Outcome, elapsed)
	}

	h.metrics.RecordStep(event.Step, outcome, elapsed)
	if perr := h.metrics.Push(ctx, h.pushgateway, h.job); perr != nil {
		log.Warn("%v", perr)
	}

	return result, err
}

// Outcome labels for failures that are not a rotation.ErrorKind.
const (
	OutcomeRetryable = "Retryable"
	OutcomeError     = "Error"
)

// outcomeLabel names a failure for the step_total metric.
func outcomeLabel(err error) string {
	if kind, ok := rotation.KindOf(err); ok {
		return string(kind)
	}
	if krerrors.IsRetryable(err) {
		return OutcomeRetryable
	}
	return OutcomeError
}
