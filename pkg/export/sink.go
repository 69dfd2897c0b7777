// Package export stores converted query results: in a local directory, an
// S3 bucket or an Azure Blob container.
package export

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/NERVsystems/overpassqb/pkg/convert"
)

// Sink types.
const (
	TypeNone  = "none"
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeAzure = "azure"
)

// Sink stores an export file and returns where it was written.
type Sink interface {
	Put(ctx context.Context, f *convert.File) (string, error)
	Type() string
}

// Config selects and configures the sink.
type Config struct {
	Type  string      `mapstructure:"type"`
	Local LocalConfig `mapstructure:"local"`
	S3    S3Config    `mapstructure:"s3"`
	Azure AzureConfig `mapstructure:"azure"`
}

// New creates the configured sink. Type "" or "none" yields a nil sink and
// no error: exports are then only returned to the caller.
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeNone:
		return nil, nil
	case TypeLocal:
		return NewLocalSink(cfg.Local)
	case TypeS3:
		return NewS3Sink(ctx, cfg.S3)
	case TypeAzure:
		return NewAzureSink(cfg.Azure)
	}
	return nil, fmt.Errorf("unknown export sink type %q", cfg.Type)
}

// objectKey joins prefix and name with a single slash.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
