package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/rs/zerolog"
)

// LocalStore keeps artifacts below a directory.
type LocalStore struct {
	dir string
	log zerolog.Logger
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string, log zerolog.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, domain.NewPathError("artifact store", domain.KindIO, abs, err)
	}
	return &LocalStore{
		dir: abs,
		log: log.With().Str("component", "artifacts").Str("backend", "local").Logger(),
	}, nil
}

// Name identifies the backend
func (s *LocalStore) Name() string {
	return "local"
}

func (s *LocalStore) resolve(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", domain.NewError("artifact store", domain.KindArgument, err)
	}
	return filepath.Join(s.dir, filepath.FromSlash(cleaned)), nil
}

// Put writes data atomically through a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", domain.NewPathError("artifact put", domain.KindIO, p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".artifact-*")
	if err != nil {
		return "", domain.NewPathError("artifact put", domain.KindIO, p, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", domain.NewPathError("artifact put", domain.KindIO, p, err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.NewPathError("artifact put", domain.KindIO, p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", domain.NewPathError("artifact put", domain.KindIO, p, err)
	}

	s.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Stored artifact")
	return p, nil
}

// Get reads an artifact
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, domain.NewPathError("artifact get", domain.KindIO, p, err)
	}
	return data, nil
}

// List returns the keys below prefix in lexical order
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".artifact-") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewPathError("artifact list", domain.KindIO, s.dir, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes an artifact. Missing keys are not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewPathError("artifact delete", domain.KindIO, p, err)
	}
	return nil
}
