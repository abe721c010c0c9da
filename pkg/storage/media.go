package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MediaStore persists uploaded images on disk and hands back the public URL
// the stored record should carry. Files are namespaced by a scope (session id
// for proofs, user id for covers and avatars) so cleanup per resource stays
// possible.
type MediaStore struct {
	baseDir    string
	publicPath string
	baseURL    string
}

// NewMediaStore ensures the media directory exists and returns a handle.
func NewMediaStore(baseDir, publicPath, baseURL string) (*MediaStore, error) {
	if baseDir == "" {
		baseDir = "./media"
	}
	if publicPath == "" {
		publicPath = "/media"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &MediaStore{
		baseDir:    baseDir,
		publicPath: strings.TrimRight(publicPath, "/"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save writes the upload under <scope>/<uuid>.<ext> and returns its public URL.
func (s *MediaStore) Save(scope, originalName string, r io.Reader) (string, error) {
	if scope == "" {
		return "", fmt.Errorf("storage scope required")
	}
	name := uuid.NewString() + "." + sanitizeExtension(originalName)
	rel := filepath.Join(scope, name)
	path := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare media directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.PublicURL(rel), nil
}

// DeleteByURL removes the stored file a public URL points at, if present.
// URLs outside this store's namespace are left alone so externally hosted
// images survive a replacement.
func (s *MediaStore) DeleteByURL(url string) error {
	prefix := s.baseURL + s.publicPath + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}
	path := filepath.Join(s.baseDir, filepath.Clean("/"+strings.TrimPrefix(url, prefix)))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

// Dir exposes the base directory for static file serving.
func (s *MediaStore) Dir() string {
	return s.baseDir
}

// PublicPath returns the URL path prefix the media is served under.
func (s *MediaStore) PublicPath() string {
	return s.publicPath
}

// PublicURL builds the externally resolvable URL for a stored relative path.
func (s *MediaStore) PublicURL(rel string) string {
	rel = strings.TrimLeft(filepath.ToSlash(rel), "/")
	return s.baseURL + s.publicPath + "/" + rel
}

func sanitizeExtension(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, ext)
	if cleaned == "" {
		return "jpg"
	}
	return cleaned
}
