package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store serves s3:// locations, for workspaces hosted on AWS.
type S3Store struct {
	client S3API
}

// S3StoreOption configures an S3Store.
type S3StoreOption func(*S3Store)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) S3StoreOption {
	return func(s *S3Store) { s.client = c }
}

// NewS3Store creates an S3Store from the default AWS credential chain.
func NewS3Store(ctx context.Context, opts ...S3StoreOption) (*S3Store, error) {
	s := &S3Store{}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
	}
	return s, nil
}

func s3Location(uri string) (Location, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return Location{}, err
	}
	if loc.Scheme != SchemeS3 {
		return Location{}, fmt.Errorf("not an s3:// location: %q", uri)
	}
	return loc, nil
}

// list pages through keys and common prefixes until fn returns false.
func (s *S3Store) list(ctx context.Context, bucket, prefix, delimiter string, fn func(string) bool) error {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, cp := range page.CommonPrefixes {
			if !fn(aws.ToString(cp.Prefix)) {
				return nil
			}
		}
		for _, obj := range page.Contents {
			if !fn(aws.ToString(obj.Key)) {
				return nil
			}
		}
	}
	return nil
}

// ObjectExists reports whether path names an object or a non-empty prefix.
func (s *S3Store) ObjectExists(ctx context.Context, path string) (bool, error) {
	loc, err := s3Location(path)
	if err != nil {
		return false, err
	}
	key := strings.TrimSuffix(loc.Key, "/")
	found := false
	err = s.list(ctx, loc.Bucket, key, "", func(name string) bool {
		found = matchesObject(name, key)
		return !found
	})
	if err != nil {
		return false, fmt.Errorf("listing %s: %w", path, err)
	}
	return found, nil
}

// DirContains lists the immediate children of dir as full s3:// URIs.
func (s *S3Store) DirContains(ctx context.Context, dir, pattern string) (bool, error) {
	loc, err := s3Location(dir)
	if err != nil {
		return false, err
	}
	found := false
	err = s.list(ctx, loc.Bucket, dirPrefix(loc.Key), "/", func(name string) bool {
		found = strings.Contains("s3://"+loc.Bucket+"/"+name, pattern)
		return !found
	})
	if err != nil {
		return false, fmt.Errorf("listing %s: %w", dir, err)
	}
	return found, nil
}

// Open opens an object for reading.
func (s *S3Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := s3Location(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return out.Body, nil
}

// Create buffers the object and uploads it on Close.
func (s *S3Store) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	loc, err := s3Location(uri)
	if err != nil {
		return nil, err
	}
	if loc.Key == "" {
		return nil, fmt.Errorf("%q has no object name", uri)
	}
	return &s3Writer{ctx: ctx, client: s.client, loc: loc}, nil
}

type s3Writer struct {
	ctx    context.Context
	client S3API
	loc    Location
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed object %s", w.loc)
	}
	return w.buf.Write(p)
}

// Abort drops the buffered body without uploading it.
func (w *s3Writer) Abort() error {
	w.closed = true
	w.buf.Reset()
	return nil
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.loc.Bucket),
		Key:         aws.String(w.loc.Key),
		Body:        bytes.NewReader(w.buf.Bytes()),
		ContentType: aws.String("text/tab-separated-values"),
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", w.loc, err)
	}
	return nil
}
