package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// FileSink keeps a JSON-lines run log of every outcome, progress included.
// The log is reopened per outcome so it can be rotated between runs.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink checks that path can be appended to. Its directory must exist.
func NewFileSink(path string) (*FileSink, error) {
	f, err := openLog(path)
	if err != nil {
		return nil, fmt.Errorf("opening outcome log: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("opening outcome log: %w", err)
	}
	return &FileSink{path: path}, nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Send(_ context.Context, o types.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := openLog(s.path)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	// Encode writes the trailing newline.
	if err := json.NewEncoder(f).Encode(o); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	return f.Close()
}
