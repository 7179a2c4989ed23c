package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/systmms/keyrotator/internal/authority"
	krerrors "github.com/systmms/keyrotator/internal/errors"
	"github.com/systmms/keyrotator/internal/logging"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// DefaultPath is used when no --config flag is given. A missing file at
// this path is not an error.
const DefaultPath = "keyrotator.yaml"

// Probe methods for the test step.
const (
	ProbeIAMGetUser           = authority.ProbeIAMGetUser
	ProbeSTSGetCallerIdentity = authority.ProbeSTSGetCallerIdentity
)

const (
	defaultMetricsJob = "keyrotator"
	currentVersion    = 1
	envPrefix         = "KEYROTATOR_"
)

//go:embed schema.json
var schema string

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Definition represents the keyrotator.yaml structure
type Definition struct {
	Version int           `yaml:"version"`
	AWS     AWSConfig     `yaml:"aws"`
	Tags    TagsConfig    `yaml:"tags"`
	Probe   string        `yaml:"probe"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// AWSConfig selects the region and optional service endpoints (LocalStack)
type AWSConfig struct {
	Region    string    `yaml:"region"`
	Endpoints Endpoints `yaml:"endpoints"`
}

// Endpoints overrides the base endpoint of individual services
type Endpoints struct {
	SecretsManager string `yaml:"secretsmanager"`
	IAM            string `yaml:"iam"`
	STS            string `yaml:"sts"`
}

// TagsConfig names the secret tags used for rotation bookkeeping
type TagsConfig struct {
	Principal string `yaml:"principal"`
	Identity  string `yaml:"identity"`
	Pending   string `yaml:"pending"`
}

// MetricsConfig configures the optional Pushgateway
type MetricsConfig struct {
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
	JSON  bool `yaml:"json"`
}

// Default returns the configuration used when no file is present.
func Default() *Definition {
	keys := rotation.DefaultTagKeys()
	return &Definition{
		Version: currentVersion,
		Tags: TagsConfig{
			Principal: keys.Principal,
			Identity:  keys.Identity,
			Pending:   keys.Pending,
		},
		Probe:   ProbeIAMGetUser,
		Metrics: MetricsConfig{Job: defaultMetricsJob},
	}
}

// TagKeys converts the tag section for the rotation coordinator.
func (d *Definition) TagKeys() rotation.TagKeys {
	return rotation.TagKeys{
		Principal: d.Tags.Principal,
		Identity:  d.Tags.Identity,
		Pending:   d.Tags.Pending,
	}
}

// Load reads keyrotator.yaml, validates it and applies KEYROTATOR_*
// environment overrides.
func (c *Config) Load() error {
	def := Default()

	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
		if err := parse(data, def); err != nil {
			return err
		}
	case os.IsNotExist(err) && (c.Path == "" || c.Path == DefaultPath):
		if c.Logger != nil {
			c.Logger.Debug("No configuration file at %s, using defaults", DefaultPath)
		}
	case os.IsNotExist(err):
		return krerrors.ConfigError{
			Field:      "path",
			Value:      c.Path,
			Message:    "configuration file not found",
			Suggestion: "Check the --config path or omit it to use defaults and KEYROTATOR_* variables",
		}
	default:
		return krerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	lookup := c.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(def, lookup); err != nil {
		return err
	}
	if err := def.validate(); err != nil {
		return err
	}

	c.Definition = def
	return nil
}

func parse(data []byte, def *Definition) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return krerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw == nil {
		return nil
	}
	if err := validateSchema(raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, def); err != nil {
		return krerrors.ConfigError{
			Message:    "failed to decode configuration",
			Suggestion: err.Error(),
		}
	}
	return nil
}

func validateSchema(raw map[string]interface{}) error {
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return krerrors.ConfigError{
			Message:    "configuration does not match schema:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "See the example keyrotator.yaml in the README",
		}
	}
	return nil
}

func applyEnv(def *Definition, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"REGION":                  &def.AWS.Region,
		"SECRETSMANAGER_ENDPOINT": &def.AWS.Endpoints.SecretsManager,
		"IAM_ENDPOINT":            &def.AWS.Endpoints.IAM,
		"STS_ENDPOINT":            &def.AWS.Endpoints.STS,
		"PRINCIPAL_TAG":           &def.Tags.Principal,
		"IDENTITY_TAG":            &def.Tags.Identity,
		"PENDING_TAG":             &def.Tags.Pending,
		"PROBE":                   &def.Probe,
		"PUSHGATEWAY_URL":         &def.Metrics.Pushgateway,
		"METRICS_JOB":             &def.Metrics.Job,
	}
	for name, field := range strs {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*field = v
		}
	}

	bools := map[string]*bool{
		"DEBUG":     &def.Logging.Debug,
		"JSON_LOGS": &def.Logging.JSON,
	}
	for name, field := range bools {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return krerrors.ConfigError{
				Field:      envPrefix + name,
				Value:      v,
				Message:    "not a boolean",
				Suggestion: "Use true or false",
			}
		}
		*field = b
	}
	return nil
}

func (d *Definition) validate() error {
	if d.Version != currentVersion {
		return krerrors.ConfigError{
			Field:      "version",
			Value:      d.Version,
			Message:    "unsupported configuration version",
			Suggestion: fmt.Sprintf("Set 'version: %d' at the top of your keyrotator.yaml file", currentVersion),
		}
	}
	switch d.Probe {
	case ProbeIAMGetUser, ProbeSTSGetCallerIdentity:
	default:
		return krerrors.ConfigError{
			Field:      "probe",
			Value:      d.Probe,
			Message:    "unknown probe",
			Suggestion: fmt.Sprintf("Use %s or %s", ProbeIAMGetUser, ProbeSTSGetCallerIdentity),
		}
	}
	if d.Tags.Principal == "" || d.Tags.Identity == "" || d.Tags.Pending == "" {
		return krerrors.ConfigError{
			Field:      "tags",
			Message:    "tag names must not be empty",
			Suggestion: "Remove the tags section to use the defaults",
		}
	}
	if d.Metrics.Job == "" {
		d.Metrics.Job = defaultMetricsJob
	}
	return nil
}
