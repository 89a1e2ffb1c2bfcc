package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/lsjoeberg/deltactl/utils"
)

type (
	S3Store struct {
		bucket   string
		prefix   string
		client   *s3.S3
		uploader *s3manager.Uploader
	}
)

func NewS3Store(bucket, prefix string, storageOptions map[string]string) (*S3Store, error) {
	opt := func(key, fallback string) string {
		if v, ok := storageOptions[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	s3Config := &aws.Config{
		Region: aws.String(opt("region", utils.AWS_DEFAULT_REGION)),
	}
	if accessKey := opt("access_key_id", utils.AWS_ACCESS_KEY_ID); accessKey != "" {
		s3Config.Credentials = credentials.NewStaticCredentials(
			accessKey,
			opt("secret_access_key", utils.AWS_SECRET_ACCESS_KEY),
			"",
		)
	} else {
		s3Config.Credentials = credentials.NewEnvCredentials()
	}
	if endpoint := opt("endpoint", utils.S3_ENDPOINT); endpoint != "" {
		s3Config.Endpoint = aws.String(endpoint)
		// MinIO and most other custom endpoints need path-style addressing
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}
	if opt("path_style", "") == "true" {
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	return &S3Store{
		bucket:   bucket,
		prefix:   strings.TrimSuffix(prefix, "/"),
		client:   s3.New(s3Session),
		uploader: s3manager.NewUploader(s3Session),
	}, nil
}

func (s *S3Store) URI() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// retry wraps transient S3 failures in exponential backoff. Not-found and
// permanent errors abort immediately.
func (s *S3Store) retry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if utils.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := s.retry(ctx, func() error {
		objects = objects[:0]
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.fullKey(prefix)),
		}
		return s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if s.prefix != "" {
					key = strings.TrimPrefix(key, s.prefix+"/")
				}
				objects = append(objects, ObjectInfo{
					Key:     key,
					Size:    aws.Int64Value(obj.Size),
					ModTime: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error listing s3 objects: %w", err)
	}
	return objects, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retry(ctx, func() error {
		out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fullKey(key)),
		})
		if isNoSuchKey(err) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrObjectNotFound, key))
		}
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error getting s3 object: %w", err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.retry(ctx, func() error {
		_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fullKey(key)),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(start)
	logger.Debug().Str("key", key).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")
	return nil
}

// PutIfAbsent on S3 is only check-then-put: callers that need real mutual
// exclusion for commits must hold the commit lock around it.
func (s *S3Store) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err == nil {
		return fmt.Errorf("%w: %s", ErrObjectExists, key)
	}
	if !isNotFound(err) {
		return fmt.Errorf("error in HeadObject: %w", err)
	}
	return s.Put(ctx, key, data)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.retry(ctx, func() error {
		_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fullKey(key)),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("error deleting s3 object: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

func isNotFound(err error) bool {
	return isNoSuchKey(err)
}
