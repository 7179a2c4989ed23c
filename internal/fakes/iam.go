package fakes

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

const accountID = "123456789012"

// AccessKeyData is one access key of a fake IAM user.
type AccessKeyData struct {
	ID        string
	Secret    string
	CreatedAt time.Time
}

// FakeIAMClient is an in-memory IAM that enforces the two-key limit and
// authenticates probe calls made with its keys.
type FakeIAMClient struct {
	mu sync.Mutex

	// Users maps user names to their access keys.
	Users map[string][]AccessKeyData
	// Errors maps operation names (e.g. "CreateAccessKey") to errors to return.
	Errors map[string]error
	// Calls records operation names in order.
	Calls []string
	// DenyProbe makes authenticated probe calls fail with AccessDenied.
	DenyProbe bool
	// PageSize limits ListAccessKeys pages. Zero returns one page.
	PageSize int

	now    time.Time
	nextID int
}

// NewFakeIAMClient creates a fake whose clock starts at start and advances a
// minute per created key.
func NewFakeIAMClient(start time.Time) *FakeIAMClient {
	return &FakeIAMClient{
		Users:  make(map[string][]AccessKeyData),
		Errors: make(map[string]error),
		now:    start,
		nextID: 1,
	}
}

// AddUser adds a user with the given keys.
func (f *FakeIAMClient) AddUser(name string, keys ...AccessKeyData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[name] = append([]AccessKeyData(nil), keys...)
}

// AddError configures the fake to fail an operation.
func (f *FakeIAMClient) AddError(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[operation] = err
}

// KeyIDs returns the IDs of a user's keys in creation order.
func (f *FakeIAMClient) KeyIDs(user string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.Users[user]))
	for _, k := range f.Users[user] {
		ids = append(ids, k.ID)
	}
	return ids
}

func (f *FakeIAMClient) begin(operation string) error {
	f.Calls = append(f.Calls, operation)
	if err, ok := f.Errors[operation]; ok {
		return err
	}
	return nil
}

func (f *FakeIAMClient) user(name *string) ([]AccessKeyData, error) {
	keys, ok := f.Users[aws.ToString(name)]
	if !ok {
		return nil, &iamtypes.NoSuchEntityException{
			Message: aws.String(fmt.Sprintf("The user with name %s cannot be found.", aws.ToString(name))),
		}
	}
	return keys, nil
}

// ListAccessKeys mocks the ListAccessKeys operation
func (f *FakeIAMClient) ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("ListAccessKeys"); err != nil {
		return nil, err
	}
	keys, err := f.user(params.UserName)
	if err != nil {
		return nil, err
	}

	start := 0
	if params.Marker != nil {
		start, _ = strconv.Atoi(aws.ToString(params.Marker))
	}
	end := len(keys)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &iam.ListAccessKeysOutput{}
	for _, k := range keys[start:end] {
		out.AccessKeyMetadata = append(out.AccessKeyMetadata, iamtypes.AccessKeyMetadata{
			AccessKeyId: aws.String(k.ID),
			CreateDate:  aws.Time(k.CreatedAt),
			Status:      iamtypes.StatusTypeActive,
			UserName:    params.UserName,
		})
	}
	if end < len(keys) {
		out.IsTruncated = true
		out.Marker = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// CreateAccessKey mocks the CreateAccessKey operation
func (f *FakeIAMClient) CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("CreateAccessKey"); err != nil {
		return nil, err
	}
	keys, err := f.user(params.UserName)
	if err != nil {
		return nil, err
	}
	if len(keys) >= 2 {
		return nil, &iamtypes.LimitExceededException{
			Message: aws.String("Cannot exceed quota for AccessKeysPerUser: 2"),
		}
	}

	f.now = f.now.Add(time.Minute)
	key := AccessKeyData{
		ID:        fmt.Sprintf("AKIAFAKE%012d", f.nextID),
		Secret:    fmt.Sprintf("fake-secret-%d", f.nextID),
		CreatedAt: f.now,
	}
	f.nextID++
	f.Users[aws.ToString(params.UserName)] = append(keys, key)

	return &iam.CreateAccessKeyOutput{
		AccessKey: &iamtypes.AccessKey{
			AccessKeyId:     aws.String(key.ID),
			SecretAccessKey: aws.String(key.Secret),
			CreateDate:      aws.Time(key.CreatedAt),
			Status:          iamtypes.StatusTypeActive,
			UserName:        params.UserName,
		},
	}, nil
}

// DeleteAccessKey mocks the DeleteAccessKey operation
func (f *FakeIAMClient) DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("DeleteAccessKey"); err != nil {
		return nil, err
	}
	keys, err := f.user(params.UserName)
	if err != nil {
		return nil, err
	}
	id := aws.ToString(params.AccessKeyId)
	if !slices.ContainsFunc(keys, func(k AccessKeyData) bool { return k.ID == id }) {
		return nil, &iamtypes.NoSuchEntityException{
			Message: aws.String(fmt.Sprintf("The Access Key with id %s cannot be found.", id)),
		}
	}
	f.Users[aws.ToString(params.UserName)] = slices.DeleteFunc(keys, func(k AccessKeyData) bool { return k.ID == id })
	return &iam.DeleteAccessKeyOutput{}, nil
}

// ProbeClient returns a client that authenticates its calls with the
// credentials in cfg, the way a client built from cfg would.
func (f *FakeIAMClient) ProbeClient(cfg aws.Config) *FakeProbeClient {
	return &FakeProbeClient{iam: f, cfg: cfg}
}

// FakeProbeClient serves read-only identity calls for one key pair.
type FakeProbeClient struct {
	iam *FakeIAMClient
	cfg aws.Config
}

// authenticate returns the user owning the key pair in cfg.
func (p *FakeProbeClient) authenticate(ctx context.Context, operation string) (string, error) {
	creds, err := p.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", err
	}

	p.iam.mu.Lock()
	defer p.iam.mu.Unlock()

	if err := p.iam.begin(operation); err != nil {
		return "", err
	}
	for user, keys := range p.iam.Users {
		for _, k := range keys {
			if k.ID != creds.AccessKeyID {
				continue
			}
			if k.Secret != creds.SecretAccessKey {
				return "", &smithy.GenericAPIError{
					Code:    "SignatureDoesNotMatch",
					Message: "The request signature we calculated does not match the signature you provided.",
				}
			}
			if p.iam.DenyProbe {
				return "", &smithy.GenericAPIError{
					Code:    "AccessDenied",
					Message: fmt.Sprintf("User: arn:aws:iam::%s:user/%s is not authorized to perform: %s", accountID, user, operation),
				}
			}
			return user, nil
		}
	}
	return "", &smithy.GenericAPIError{
		Code:    "InvalidClientTokenId",
		Message: "The security token included in the request is invalid.",
	}
}

// GetUser mocks the GetUser operation for the caller.
func (p *FakeProbeClient) GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error) {
	user, err := p.authenticate(ctx, "iam:GetUser")
	if err != nil {
		return nil, err
	}
	return &iam.GetUserOutput{
		User: &iamtypes.User{
			Arn:      aws.String(fmt.Sprintf("arn:aws:iam::%s:user/%s", accountID, user)),
			UserName: aws.String(user),
			UserId:   aws.String("AIDAFAKE" + user),
			Path:     aws.String("/"),
		},
	}, nil
}

// GetCallerIdentity mocks the GetCallerIdentity operation.
func (p *FakeProbeClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	user, err := p.authenticate(ctx, "sts:GetCallerIdentity")
	if err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(accountID),
		Arn:     aws.String(fmt.Sprintf("arn:aws:iam::%s:user/%s", accountID, user)),
		UserId:  aws.String("AIDAFAKE" + user),
	}, nil
}
