// Package remote provides existence probes, listings and object I/O over the
// object stores gwaspull reads from and writes to.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Probe is the narrow capability the pipeline needs to check remote state.
type Probe interface {
	// ObjectExists reports whether path is an object or a non-empty prefix.
	ObjectExists(ctx context.Context, path string) (bool, error)
	// DirContains lists the immediate children of dir and reports whether any
	// full child URI contains pattern.
	DirContains(ctx context.Context, dir, pattern string) (bool, error)
}

// Store is a Probe that can also read and write objects.
type Store interface {
	Probe
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Create(ctx context.Context, uri string) (io.WriteCloser, error)
}

// URI schemes understood by ParseLocation.
const (
	SchemeGCS  = "gs"
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Location is a parsed object URI.
type Location struct {
	Scheme string
	Bucket string // empty for file locations
	Key    string // object key, or filesystem path for file locations
}

// String renders the location back to URI form.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseLocation parses gs://, s3://, file:// URIs and plain filesystem paths.
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: SchemeFile, Key: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parsing %q: %w", uri, err)
	}
	switch u.Scheme {
	case SchemeGCS, SchemeS3:
		if u.Host == "" {
			return Location{}, fmt.Errorf("%q has no bucket", uri)
		}
		// Take the key from the raw string: object names may contain '?' or '#'.
		key := strings.TrimPrefix(uri, u.Scheme+"://"+u.Host)
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: strings.TrimPrefix(key, "/")}, nil
	case SchemeFile:
		return Location{Scheme: SchemeFile, Key: u.Path}, nil
	default:
		return Location{}, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, uri)
	}
}

// dirPrefix turns a key into a listing prefix ending in '/'.
func dirPrefix(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// matchesObject reports whether name is key itself or lies beneath it.
func matchesObject(name, key string) bool {
	return name == key || strings.HasPrefix(name, dirPrefix(key))
}

// Mux dispatches to a Store per URI scheme. Stores are created on first use.
type Mux struct {
	mu        sync.Mutex
	factories map[string]func(context.Context) (Store, error)
	stores    map[string]Store
}

// MuxOption configures a Mux.
type MuxOption func(*Mux)

// WithStore registers a ready-made store for scheme (useful for testing).
func WithStore(scheme string, s Store) MuxOption {
	return func(m *Mux) { m.stores[scheme] = s }
}

// WithFactory registers a lazily constructed store for scheme.
func WithFactory(scheme string, f func(context.Context) (Store, error)) MuxOption {
	return func(m *Mux) { m.factories[scheme] = f }
}

// NewMux creates a Mux. Local paths are always served by a LocalStore.
func NewMux(opts ...MuxOption) *Mux {
	m := &Mux{
		factories: make(map[string]func(context.Context) (Store, error)),
		stores:    map[string]Store{SchemeFile: NewLocalStore()},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mux) store(ctx context.Context, uri string) (Store, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[loc.Scheme]; ok {
		return s, nil
	}
	f, ok := m.factories[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("no store registered for %s:// locations", loc.Scheme)
	}
	s, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", loc.Scheme, err)
	}
	m.stores[loc.Scheme] = s
	return s, nil
}

// ObjectExists implements Probe.
func (m *Mux) ObjectExists(ctx context.Context, path string) (bool, error) {
	s, err := m.store(ctx, path)
	if err != nil {
		return false, err
	}
	return s.ObjectExists(ctx, path)
}

// DirContains implements Probe.
func (m *Mux) DirContains(ctx context.Context, dir, pattern string) (bool, error) {
	s, err := m.store(ctx, dir)
	if err != nil {
		return false, err
	}
	return s.DirContains(ctx, dir, pattern)
}

// Open implements Store.
func (m *Mux) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, err := m.store(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, uri)
}

// Create implements Store.
func (m *Mux) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	s, err := m.store(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, uri)
}
