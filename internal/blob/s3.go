package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options parameterizes the S3 backend. Endpoint and static credentials
// are optional; when Endpoint is set path-style addressing is used so
// S3-compatible services work out of the box.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	KeyPrefix string
}

// S3Store keeps objects in an S3 bucket under keyPrefix/namespace/name.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Store creates an S3-backed store. The bucket must already exist.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("blob: s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, errLoad := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if errLoad != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", errLoad)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:    client,
		bucket:    opts.Bucket,
		keyPrefix: strings.Trim(opts.KeyPrefix, "/"),
	}, nil
}

func (s *S3Store) objectKey(namespace, name string) (string, error) {
	if errNS := validComponent(namespace); errNS != nil {
		return "", errNS
	}
	if errName := validComponent(name); errName != nil {
		return "", errName
	}
	if s.keyPrefix == "" {
		return path.Join(namespace, name), nil
	}
	return path.Join(s.keyPrefix, namespace, name), nil
}

// isNotFound reports whether an S3 error means the key does not exist.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// Write replaces the object's bytes with the reader's contents.
func (s *S3Store) Write(ctx context.Context, namespace, name string, r io.Reader) (int64, error) {
	key, errKey := s.objectKey(namespace, name)
	if errKey != nil {
		return 0, errKey
	}

	// PutObject wants a seekable body for signing. Uploads are
	// request-bounded, so reading fully is acceptable.
	data, errRead := io.ReadAll(r)
	if errRead != nil {
		return 0, fmt.Errorf("blob: read upload: %w", errRead)
	}
	_, errPut := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if errPut != nil {
		return 0, fmt.Errorf("blob: put object: %w", errPut)
	}
	return int64(len(data)), nil
}

// Open returns a reader over the object's bytes.
func (s *S3Store) Open(ctx context.Context, namespace, name string) (io.ReadCloser, error) {
	key, errKey := s.objectKey(namespace, name)
	if errKey != nil {
		return nil, errKey
	}
	out, errGet := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if errGet != nil {
		if isNotFound(errGet) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: get object: %w", errGet)
	}
	return out.Body, nil
}

// Stat reports the object's current size and modification time.
func (s *S3Store) Stat(ctx context.Context, namespace, name string) (Info, error) {
	key, errKey := s.objectKey(namespace, name)
	if errKey != nil {
		return Info{}, errKey
	}
	out, errHead := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if errHead != nil {
		if isNotFound(errHead) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("blob: head object: %w", errHead)
	}
	info := Info{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// Rename copies the object to the new key and deletes the old one. S3 has
// no native rename.
func (s *S3Store) Rename(ctx context.Context, namespace, oldName, newName string) error {
	oldKey, errOld := s.objectKey(namespace, oldName)
	if errOld != nil {
		return errOld
	}
	newKey, errNew := s.objectKey(namespace, newName)
	if errNew != nil {
		return errNew
	}

	_, errCopy := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + oldKey),
		Key:        aws.String(newKey),
	})
	if errCopy != nil {
		if isNotFound(errCopy) {
			return ErrNotFound
		}
		return fmt.Errorf("blob: copy object: %w", errCopy)
	}
	_, errDel := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(oldKey),
	})
	if errDel != nil {
		return fmt.Errorf("blob: delete old object: %w", errDel)
	}
	return nil
}

// Delete removes the object. S3 DeleteObject is idempotent, so a missing
// key is checked first to preserve not-found reporting.
func (s *S3Store) Delete(ctx context.Context, namespace, name string) error {
	key, errKey := s.objectKey(namespace, name)
	if errKey != nil {
		return errKey
	}
	if _, errStat := s.Stat(ctx, namespace, name); errStat != nil {
		return errStat
	}
	_, errDel := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if errDel != nil {
		return fmt.Errorf("blob: delete object: %w", errDel)
	}
	return nil
}

// DeleteNamespace removes every object under the namespace prefix, paging
// through listings until none remain.
func (s *S3Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if errNS := validComponent(namespace); errNS != nil {
		return errNS
	}
	prefix := path.Join(s.keyPrefix, namespace) + "/"

	var continuation *string
	for {
		page, errList := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if errList != nil {
			return fmt.Errorf("blob: list namespace: %w", errList)
		}
		for _, obj := range page.Contents {
			_, errDel := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if errDel != nil {
				return fmt.Errorf("blob: delete namespace object: %w", errDel)
			}
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			return nil
		}
		continuation = page.NextContinuationToken
	}
}
