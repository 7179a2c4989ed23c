package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// AWS services the rotator talks to, as passed to ProviderError.
const (
	ServiceSecretsManager = "secretsmanager"
	ServiceIAM            = "iam"
	ServiceSTS            = "sts"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Message != "" && e.Err != nil {
		parts = append(parts, ": "+e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ProviderError adds operator-facing context to an AWS error. The original
// error stays reachable through errors.As.
func ProviderError(service string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", service, operation),
		Suggestion: getProviderSuggestion(service, err),
		Err:        err,
	}
}

// ErrorCode returns the AWS error code of err, or "" if err is not an API
// error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// getProviderSuggestion returns helpful suggestions based on service and error
func getProviderSuggestion(service string, err error) string {
	code := ErrorCode(err)

	switch code {
	case "ExpiredToken", "ExpiredTokenException":
		return "Your AWS session has expired. Refresh your credentials and try again"
	case "InvalidClientTokenId", "UnrecognizedClientException", "SignatureDoesNotMatch":
		return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException":
		return "AWS rate limit exceeded. Wait a moment and try again"
	}

	switch service {
	case ServiceSecretsManager:
		switch code {
		case "AccessDeniedException":
			return "Check IAM permissions for secretsmanager:DescribeSecret, GetSecretValue, PutSecretValue, TagResource, UntagResource and UpdateSecretVersionStage"
		case "ResourceNotFoundException":
			return "Verify the secret ID and region. List secrets with: 'aws secretsmanager list-secrets'"
		case "InvalidRequestException":
			return "The secret may be scheduled for deletion or another rotation may be in progress"
		case "ResourceExistsException":
			return "A different value is already stored under this version token. Cancel the rotation and start a new one"
		}

	case ServiceIAM:
		switch code {
		case "AccessDenied":
			return "Check IAM permissions for iam:ListAccessKeys, CreateAccessKey and DeleteAccessKey on the user"
		case "NoSuchEntity":
			return "The IAM user named by the secret's principal tag does not exist"
		case "LimitExceeded":
			return "The user already has two access keys. Delete one with 'aws iam delete-access-key'"
		}

	case ServiceSTS:
		if code == "AccessDenied" {
			return "Check IAM permissions for sts:GetCallerIdentity"
		}
	}

	// Generic suggestions
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and the configured AWS endpoints"
	}

	return ""
}

var retryableCodes = map[string]bool{
	"Throttling":                    true,
	"ThrottlingException":           true,
	"RequestLimitExceeded":          true,
	"TooManyRequestsException":      true,
	"InternalFailure":               true,
	"InternalServiceError":          true,
	"InternalServiceErrorException": true,
	"ServiceFailure":                true,
	"ServiceUnavailable":            true,
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if retryableCodes[ErrorCode(err)] {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
