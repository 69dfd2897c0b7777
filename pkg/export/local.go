package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/NERVsystems/overpassqb/pkg/convert"
)

// LocalConfig configures a LocalSink.
type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// LocalSink writes exports into a directory. Files are replaced
// atomically so a reader never sees a partial export.
type LocalSink struct {
	dir string
}

// NewLocalSink creates the directory if needed.
func NewLocalSink(cfg LocalConfig) (*LocalSink, error) {
	if cfg.Dir == "" {
		return nil, errors.New("local export directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &LocalSink{dir: cfg.Dir}, nil
}

// Type implements Sink.
func (s *LocalSink) Type() string { return TypeLocal }

// Put implements Sink. The returned location is the file path.
func (s *LocalSink) Put(ctx context.Context, f *convert.File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(f.Name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid export file name %q", f.Name)
	}

	dest := filepath.Join(s.dir, name)
	if err := atomic.WriteFile(dest, bytes.NewReader(f.Content)); err != nil {
		return "", fmt.Errorf("writing %s: %w", dest, err)
	}
	// atomic.WriteFile keeps the temp file mode for new files
	if err := os.Chmod(dest, 0o644); err != nil {
		return "", fmt.Errorf("setting permissions on %s: %w", dest, err)
	}
	return dest, nil
}
