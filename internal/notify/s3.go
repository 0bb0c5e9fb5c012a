package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// s3Putter is the subset of the S3 API needed to archive submissions.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// kmsKeyDescriber is the subset of the KMS API needed to check the archive key.
type kmsKeyDescriber interface {
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
}

type S3Options struct {
	Bucket string
	Prefix string
	// KMSKeyID enables SSE-KMS with this key, empty uses the bucket default
	KMSKeyID string
}

// S3Sink archives each submission as a JSON object.
type S3Sink struct {
	opts   S3Options
	client s3Putter
}

func NewS3Sink(client *s3.Client, opts S3Options) (*S3Sink, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("archive bucket is required")
	}
	return &S3Sink{opts: opts, client: client}, nil
}

func (a *S3Sink) Name() string { return "s3" }

// Key returns <prefix>/<kind>/<yyyy>/<mm>/<dd>/<id>.json.
func (a *S3Sink) Key(s Submission) string {
	day := s.ReceivedAt.UTC().Format("2006/01/02")
	return path.Join(a.opts.Prefix, s.Kind, day, s.ID+".json")
}

func (a *S3Sink) Deliver(ctx context.Context, s Submission) error {
	body, err := json.Marshal(s)
	if err != nil {
		return xerrors.Wrap(err, "encode submission")
	}

	key := a.Key(s)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(a.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}
	if a.opts.KMSKeyID != "" {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(a.opts.KMSKeyID)
	}

	if _, err := a.client.PutObject(ctx, in); err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", a.opts.Bucket, key)
	}
	return nil
}

// CheckArchiveKey returns an error unless keyID is an enabled symmetric
// encryption key. Run once at startup.
func CheckArchiveKey(ctx context.Context, client kmsKeyDescriber, keyID string) error {
	if client == nil {
		return xerrors.New("kms client is not configured")
	}
	out, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return xerrors.Wrapf(err, "kms describe key %s", keyID)
	}
	md := out.KeyMetadata
	if md == nil {
		return xerrors.Newf("kms key %s has no metadata", keyID)
	}
	if md.KeyState != kmstypes.KeyStateEnabled {
		return xerrors.Newf("kms key %s is %s, expected Enabled", keyID, md.KeyState)
	}
	if md.KeyUsage != kmstypes.KeyUsageTypeEncryptDecrypt {
		return xerrors.Newf("kms key %s has KeyUsage=%s, expected ENCRYPT_DECRYPT", keyID, md.KeyUsage)
	}
	return nil
}
