package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSAPI is the subset of the Cloud Storage client used by GCSStore.
type GCSAPI interface {
	// List calls fn for every object name (or synthetic directory prefix when
	// delimiter is set) under prefix until fn returns false.
	List(ctx context.Context, bucket, prefix, delimiter string, fn func(name string) bool) error
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

// gcsClientWrapper adapts *storage.Client to GCSAPI. userProject is billed
// for requester-pays buckets.
type gcsClientWrapper struct {
	client      *storage.Client
	userProject string
}

func (w *gcsClientWrapper) bucket(name string) *storage.BucketHandle {
	b := w.client.Bucket(name)
	if w.userProject != "" {
		b = b.UserProject(w.userProject)
	}
	return b
}

func (w *gcsClientWrapper) List(ctx context.Context, bucket, prefix, delimiter string, fn func(string) bool) error {
	q := &storage.Query{Prefix: prefix, Delimiter: delimiter}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return err
	}
	it := w.bucket(bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		name := attrs.Name
		if name == "" {
			name = attrs.Prefix
		}
		if !fn(name) {
			return nil
		}
	}
}

func (w *gcsClientWrapper) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := w.bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (w *gcsClientWrapper) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	ctx, cancel := context.WithCancel(ctx)
	wr := w.bucket(bucket).Object(object).NewWriter(ctx)
	if strings.HasSuffix(object, ".tsv") {
		wr.ContentType = "text/tab-separated-values"
	}
	return &gcsObjectWriter{WriteCloser: wr, cancel: cancel}
}

// gcsObjectWriter owns the context of an upload. Cancelling it before Close
// abandons the upload and leaves any existing object in place.
type gcsObjectWriter struct {
	io.WriteCloser
	cancel context.CancelFunc
}

func (w *gcsObjectWriter) Close() error {
	defer w.cancel()
	return w.WriteCloser.Close()
}

// Abort abandons the upload.
func (w *gcsObjectWriter) Abort() error {
	w.cancel()
	_ = w.WriteCloser.Close()
	return nil
}

// GCSStore serves gs:// locations.
type GCSStore struct {
	client GCSAPI
}

// GCSStoreOption configures a GCSStore.
type GCSStoreOption func(*gcsStoreConfig)

type gcsStoreConfig struct {
	client      GCSAPI
	userProject string
	clientOpts  []option.ClientOption
}

// WithGCSClient sets a custom client (useful for testing).
func WithGCSClient(c GCSAPI) GCSStoreOption {
	return func(cfg *gcsStoreConfig) { cfg.client = c }
}

// WithUserProject bills requester-pays reads to project.
func WithUserProject(project string) GCSStoreOption {
	return func(cfg *gcsStoreConfig) { cfg.userProject = project }
}

// WithGCSClientOptions passes options to storage.NewClient.
func WithGCSClientOptions(opts ...option.ClientOption) GCSStoreOption {
	return func(cfg *gcsStoreConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewGCSStore creates a GCSStore, dialing Cloud Storage unless a client is given.
func NewGCSStore(ctx context.Context, opts ...GCSStoreOption) (*GCSStore, error) {
	cfg := &gcsStoreConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.client == nil {
		client, err := storage.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating GCS client: %w", err)
		}
		cfg.client = &gcsClientWrapper{client: client, userProject: cfg.userProject}
	}
	return &GCSStore{client: cfg.client}, nil
}

func gcsLocation(uri string) (Location, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return Location{}, err
	}
	if loc.Scheme != SchemeGCS {
		return Location{}, fmt.Errorf("not a gs:// location: %q", uri)
	}
	return loc, nil
}

// ObjectExists reports whether path names an object or a non-empty prefix.
func (s *GCSStore) ObjectExists(ctx context.Context, path string) (bool, error) {
	loc, err := gcsLocation(path)
	if err != nil {
		return false, err
	}
	key := strings.TrimSuffix(loc.Key, "/")
	found := false
	err = s.client.List(ctx, loc.Bucket, key, "", func(name string) bool {
		found = matchesObject(name, key)
		return !found
	})
	if err != nil {
		return false, fmt.Errorf("listing %s: %w", path, err)
	}
	return found, nil
}

// DirContains lists the immediate children of dir as full gs:// URIs.
func (s *GCSStore) DirContains(ctx context.Context, dir, pattern string) (bool, error) {
	loc, err := gcsLocation(dir)
	if err != nil {
		return false, err
	}
	prefix := dirPrefix(loc.Key)
	found := false
	err = s.client.List(ctx, loc.Bucket, prefix, "/", func(name string) bool {
		found = strings.Contains("gs://"+loc.Bucket+"/"+name, pattern)
		return !found
	})
	if err != nil {
		return false, fmt.Errorf("listing %s: %w", dir, err)
	}
	return found, nil
}

// Open opens an object for reading.
func (s *GCSStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := gcsLocation(uri)
	if err != nil {
		return nil, err
	}
	r, err := s.client.NewReader(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return r, nil
}

// Create opens an object for writing. The object is committed on Close.
func (s *GCSStore) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	loc, err := gcsLocation(uri)
	if err != nil {
		return nil, err
	}
	if loc.Key == "" {
		return nil, fmt.Errorf("%q has no object name", uri)
	}
	return s.client.NewWriter(ctx, loc.Bucket, loc.Key), nil
}
