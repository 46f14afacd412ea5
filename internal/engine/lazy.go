package engine

import (
	"context"
	"sync"

	"github.com/dwsmith1983/gwaspull/internal/table"
)

// Lazy defers building a Reader until the first Open. The build result,
// error included, is kept for later calls.
func Lazy(build func(ctx context.Context) (Reader, error)) Reader {
	return &lazyReader{build: build}
}

type lazyReader struct {
	build func(ctx context.Context) (Reader, error)

	mu     sync.Mutex
	reader Reader
	err    error
	built  bool
}

func (l *lazyReader) Open(ctx context.Context, src Source) (table.Table, error) {
	r, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, src)
}

func (l *lazyReader) get(ctx context.Context) (Reader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.built {
		l.reader, l.err = l.build(ctx)
		l.built = true
	}
	return l.reader, l.err
}
