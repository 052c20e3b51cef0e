// Package artifacts persists run artifacts (OpenQASM circuits and result
// documents) to a local directory or an S3-compatible bucket.
package artifacts

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/rs/zerolog"
)

// Content types of stored artifacts
const (
	ContentTypeQASM = "text/plain; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// Store is an artifact backend. Keys are slash-separated relative paths.
type Store interface {
	// Put writes data under key and returns its location (file path or s3:// URI)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// NewStore builds the backend selected by cfg. It returns nil when
// persistence is disabled.
func NewStore(ctx context.Context, cfg *config.ArtifactConfig, log zerolog.Logger) (Store, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		return NewLocalStore(cfg.Dir, log)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported artifact backend %q", cfg.Backend)
	}
}

// RunKey returns the key of a named artifact of one run.
func RunKey(runID, name string) string {
	return path.Join("runs", runID, name)
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty artifact key")
	}
	cleaned := path.Clean(strings.TrimPrefix(key, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return cleaned, nil
}
