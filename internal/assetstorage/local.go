package assetstorage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStrategy stores asset files on the local filesystem under a root
// directory. Identifiers are root-relative slash paths, sharded by a short
// random prefix to keep directory sizes bounded.
type LocalStrategy struct {
	root      string
	urlPrefix string
}

var _ Strategy = (*LocalStrategy)(nil)

// NewLocalStrategy creates the root directory if needed. urlPrefix is
// prepended by URL, typically "/assets".
func NewLocalStrategy(root, urlPrefix string) (*LocalStrategy, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("asset root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &LocalStrategy{root: root, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// sanitizeFileName keeps the base name and extension, dropping anything that
// could traverse out of the root.
func sanitizeFileName(fileName string) string {
	base := path.Base(filepath.ToSlash(fileName))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "file"
	}
	return base
}

func (s *LocalStrategy) Write(_ context.Context, fileName string, r io.Reader) (string, error) {
	shard := uuid.NewString()[:8]
	identifier := path.Join(shard, sanitizeFileName(fileName))

	full := filepath.Join(s.root, filepath.FromSlash(identifier))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create asset file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write asset file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close asset file: %w", err)
	}
	return identifier, nil
}

func (s *LocalStrategy) resolve(identifier string) (string, error) {
	clean := path.Clean("/" + identifier)
	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("identifier escapes asset root: %s", identifier)
	}
	return full, nil
}

func (s *LocalStrategy) Read(_ context.Context, identifier string) (io.ReadCloser, error) {
	full, err := s.resolve(identifier)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open asset file: %w", err)
	}
	return f, nil
}

func (s *LocalStrategy) Exists(_ context.Context, identifier string) (bool, error) {
	full, err := s.resolve(identifier)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStrategy) Delete(_ context.Context, identifier string) error {
	full, err := s.resolve(identifier)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func (s *LocalStrategy) URL(identifier string) string {
	return s.urlPrefix + "/" + strings.TrimPrefix(identifier, "/")
}
