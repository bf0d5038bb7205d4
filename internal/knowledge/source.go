package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Source yields the current knowledge snapshot.
type Source interface {
	Load(ctx context.Context) (*Knowledge, error)
}

// FileSource reads knowledge from a file that the dashboard may rewrite at
// any time. The parsed snapshot is reused until the file's size or
// modification time changes.
type FileSource struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	cached  *Knowledge
	modTime time.Time
	size    int64
}

// NewFileSource returns a Source backed by the file at path.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "knowledge"),
	}
}

// Load returns the snapshot for the file as it is now.
func (s *FileSource) Load(ctx context.Context) (*Knowledge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat knowledge file %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file %s: %w", s.path, err)
	}
	k, err := Parse(data)
	if err != nil {
		return nil, err
	}

	s.cached = k
	s.modTime = info.ModTime()
	s.size = info.Size()
	s.logger.InfoContext(ctx, "Knowledge reloaded",
		"path", s.path,
		"faqs", len(k.FAQs),
		"fees", len(k.Fees),
		"routes", len(k.Transport))
	return k, nil
}
