package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the slice of the S3 client we use.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one JSON object per session in a bucket.
type S3Store struct {
	api    s3API
	bucket string
	prefix string
}

// NewS3 builds an S3-backed store using the default AWS credential
// chain. Prefix, when set, namespaces all transcript keys.
func NewS3(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if strings.TrimSpace(region) != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3WithAPI(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

// NewS3WithAPI wires an explicit S3 implementation. Used by tests.
func NewS3WithAPI(api s3API, bucket, prefix string) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: normalizePrefix(prefix)}
}

// LoadConversation implements Store. A missing object means the
// session has no history yet.
func (s *S3Store) LoadConversation(ctx context.Context, sessionID string) ([]Message, error) {
	key, err := s.objectKey(sessionID)
	if err != nil {
		return nil, err
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("get transcript %s: %w", key, err)
	}
	defer out.Body.Close() // nolint:errcheck // best-effort cleanup

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", key, err)
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", key, err)
	}
	return messages, nil
}

// SaveConversation implements Store.
func (s *S3Store) SaveConversation(ctx context.Context, sessionID string, messages []Message) error {
	key, err := s.objectKey(sessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put transcript %s: %w", key, err)
	}
	return nil
}

// ListSessions implements Store.
func (s *S3Store) ListSessions(ctx context.Context) ([]string, error) {
	sessions := []string{}
	var token *string

	for {
		out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list transcripts: %w", err)
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			name = strings.TrimSuffix(name, ".json")
			if _, err := SanitizeSessionID(name); err != nil {
				continue
			}
			sessions = append(sessions, name)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	return sessions, nil
}

// Close implements Store.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) objectKey(sessionID string) (string, error) {
	key, err := transcriptKey(sessionID)
	if err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	return strings.TrimSuffix(prefix, "/") + "/"
}
