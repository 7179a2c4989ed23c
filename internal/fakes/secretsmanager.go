package fakes

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretData holds the state of one fake secret.
type SecretData struct {
	ARN             string
	RotationEnabled bool
	// Versions maps version IDs to their value and staging labels.
	Versions map[string]*VersionData
	Tags     map[string]string
}

// VersionData is one version of a fake secret.
type VersionData struct {
	SecretString string
	Stages       []string
	CreatedDate  time.Time
}

// FakeSecretsManagerClient is an in-memory Secrets Manager.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their data. Lookups also accept the ARN.
	Secrets map[string]*SecretData
	// Errors maps operation names (e.g. "PutSecretValue") to errors to return.
	Errors map[string]error
	// Calls records operation names in order.
	Calls []string
	// Now returns the creation time of new versions.
	Now func() time.Time
}

// NewFakeSecretsManagerClient creates an empty fake.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretData),
		Errors:  make(map[string]error),
		Now:     time.Now,
	}
}

// AddSecret adds a secret under name.
func (f *FakeSecretsManagerClient) AddSecret(name string, data *SecretData) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if data.ARN == "" {
		data.ARN = fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s-AbCdEf", name)
	}
	if data.Versions == nil {
		data.Versions = make(map[string]*VersionData)
	}
	if data.Tags == nil {
		data.Tags = make(map[string]string)
	}
	f.Secrets[name] = data
}

// AddRotatingSecret adds a rotation-enabled secret whose current version
// "v1" holds "secret-v1", plus a version "v2" staged AWSPENDING without a
// value, the state Secrets Manager leaves before invoking createSecret.
func (f *FakeSecretsManagerClient) AddRotatingSecret(name string, tags map[string]string) {
	now := f.Now()
	f.AddSecret(name, &SecretData{
		RotationEnabled: true,
		Versions: map[string]*VersionData{
			"v1": {SecretString: "secret-v1", Stages: []string{"AWSCURRENT"}, CreatedDate: now},
			"v2": {Stages: []string{"AWSPENDING"}, CreatedDate: now},
		},
		Tags: tags,
	})
}

// AddError configures the fake to fail an operation.
func (f *FakeSecretsManagerClient) AddError(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[operation] = err
}

// Secret returns the stored data for name.
func (f *FakeSecretsManagerClient) Secret(name string) *SecretData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Secrets[name]
}

// VersionWithStage returns the version ID carrying stage.
func (d *SecretData) VersionWithStage(stage string) string {
	ids := make([]string, 0, len(d.Versions))
	for id := range d.Versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if slices.Contains(d.Versions[id].Stages, stage) {
			return id
		}
	}
	return ""
}

func (f *FakeSecretsManagerClient) begin(operation string, secretID *string) (*SecretData, error) {
	f.Calls = append(f.Calls, operation)
	if err, ok := f.Errors[operation]; ok {
		return nil, err
	}

	id := aws.ToString(secretID)
	if data, ok := f.Secrets[id]; ok {
		return data, nil
	}
	for _, data := range f.Secrets {
		if data.ARN == id {
			return data, nil
		}
	}
	return nil, &types.ResourceNotFoundException{
		Message: aws.String("Secrets Manager can't find the specified secret."),
	}
}

func (f *FakeSecretsManagerClient) name(data *SecretData) string {
	for name, d := range f.Secrets {
		if d == data {
			return name
		}
	}
	return ""
}

// DescribeSecret mocks the DescribeSecret operation
func (f *FakeSecretsManagerClient) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.begin("DescribeSecret", params.SecretId)
	if err != nil {
		return nil, err
	}

	stages := make(map[string][]string, len(data.Versions))
	for id, v := range data.Versions {
		if len(v.Stages) > 0 {
			stages[id] = slices.Clone(v.Stages)
		}
	}

	keys := make([]string, 0, len(data.Tags))
	for k := range data.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(data.Tags[k])})
	}

	return &secretsmanager.DescribeSecretOutput{
		ARN:                aws.String(data.ARN),
		Name:               aws.String(f.name(data)),
		RotationEnabled:    aws.Bool(data.RotationEnabled),
		VersionIdsToStages: stages,
		Tags:               tags,
	}, nil
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.begin("GetSecretValue", params.SecretId)
	if err != nil {
		return nil, err
	}

	id := aws.ToString(params.VersionId)
	stage := aws.ToString(params.VersionStage)
	if id == "" {
		if stage == "" {
			stage = "AWSCURRENT"
		}
		id = data.VersionWithStage(stage)
	}

	version, ok := data.Versions[id]
	if !ok || version.SecretString == "" || (stage != "" && !slices.Contains(version.Stages, stage)) {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Secrets Manager can't find the specified secret value for VersionId: " + id),
		}
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(data.ARN),
		Name:          aws.String(f.name(data)),
		SecretString:  aws.String(version.SecretString),
		VersionId:     aws.String(id),
		VersionStages: slices.Clone(version.Stages),
		CreatedDate:   aws.Time(version.CreatedDate),
	}, nil
}

// PutSecretValue mocks the PutSecretValue operation. Repeating a call with
// the same token and value succeeds; a different value is rejected.
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.begin("PutSecretValue", params.SecretId)
	if err != nil {
		return nil, err
	}

	id := aws.ToString(params.ClientRequestToken)
	value := aws.ToString(params.SecretString)
	stages := params.VersionStages
	if len(stages) == 0 {
		stages = []string{"AWSCURRENT"}
	}

	version, ok := data.Versions[id]
	switch {
	case ok && version.SecretString != "" && version.SecretString != value:
		return nil, &types.ResourceExistsException{
			Message: aws.String("You can't modify an existing version, you can only create new versions."),
		}
	case ok:
		version.SecretString = value
	default:
		version = &VersionData{SecretString: value, CreatedDate: f.Now()}
		data.Versions[id] = version
	}

	for _, stage := range stages {
		for otherID, other := range data.Versions {
			if otherID != id {
				other.Stages = slices.DeleteFunc(other.Stages, func(s string) bool { return s == stage })
			}
		}
		if !slices.Contains(version.Stages, stage) {
			version.Stages = append(version.Stages, stage)
		}
	}

	return &secretsmanager.PutSecretValueOutput{
		ARN:           aws.String(data.ARN),
		Name:          aws.String(f.name(data)),
		VersionId:     aws.String(id),
		VersionStages: slices.Clone(version.Stages),
	}, nil
}

// TagResource mocks the TagResource operation
func (f *FakeSecretsManagerClient) TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.begin("TagResource", params.SecretId)
	if err != nil {
		return nil, err
	}
	for _, tag := range params.Tags {
		data.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return &secretsmanager.TagResourceOutput{}, nil
}

// UntagResource mocks the UntagResource operation
func (f *FakeSecretsManagerClient) UntagResource(ctx context.Context, params *secretsmanager.UntagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UntagResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.begin("UntagResource", params.SecretId)
	if err != nil {
		return nil, err
	}
	for _, key := range params.TagKeys {
		delete(data.Tags, key)
	}
	return &secretsmanager.UntagResourceOutput{}, nil
}

// UpdateSecretVersionStage mocks the UpdateSecretVersionStage operation.
// Moving AWSCURRENT labels the previous holder AWSPREVIOUS and clears
// AWSPENDING from the promoted version.
func (f *FakeSecretsManagerClient) UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.begin("UpdateSecretVersionStage", params.SecretId)
	if err != nil {
		return nil, err
	}

	stage := aws.ToString(params.VersionStage)
	from := aws.ToString(params.RemoveFromVersionId)
	to := aws.ToString(params.MoveToVersionId)

	holder := data.VersionWithStage(stage)
	if holder != "" && holder != to && holder != from {
		return nil, &types.InvalidParameterException{
			Message: aws.String(fmt.Sprintf("The staging label %s is currently attached to version %s, so you must explicitly reference that version in RemoveFromVersionId.", stage, holder)),
		}
	}
	if from != "" {
		old, ok := data.Versions[from]
		if !ok || !slices.Contains(old.Stages, stage) {
			return nil, &types.InvalidParameterException{
				Message: aws.String(fmt.Sprintf("The staging label %s is not attached to version %s.", stage, from)),
			}
		}
	}
	target, ok := data.Versions[to]
	if to != "" && !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Secrets Manager can't find the specified version " + to),
		}
	}

	if from != "" {
		old := data.Versions[from]
		old.Stages = slices.DeleteFunc(old.Stages, func(s string) bool { return s == stage })
		if stage == "AWSCURRENT" && from != to {
			for _, v := range data.Versions {
				v.Stages = slices.DeleteFunc(v.Stages, func(s string) bool { return s == "AWSPREVIOUS" })
			}
			old.Stages = append(old.Stages, "AWSPREVIOUS")
		}
	}
	if target != nil {
		if stage == "AWSCURRENT" {
			target.Stages = slices.DeleteFunc(target.Stages, func(s string) bool { return s == "AWSPENDING" || s == "AWSPREVIOUS" })
		}
		if !slices.Contains(target.Stages, stage) {
			target.Stages = append(target.Stages, stage)
		}
	}

	return &secretsmanager.UpdateSecretVersionStageOutput{
		ARN:  aws.String(data.ARN),
		Name: aws.String(f.name(data)),
	}, nil
}
