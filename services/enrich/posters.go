package enrich

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrPosterDirRequired = errors.New("poster directory not provided")
	ErrInvalidPosterRef  = errors.New("invalid poster ref")

	posterKeyPattern = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
)

// PosterStore keeps downloaded poster images in a flat directory, one jpg per
// catalog entry.
type PosterStore struct {
	dir string
}

// NewPosterStore creates the directory if needed.
func NewPosterStore(dir string) (*PosterStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrPosterDirRequired
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create poster dir: %w", err)
	}
	return &PosterStore{dir: dir}, nil
}

// SanitizeKey reduces an entry key to filesystem-safe characters.
func SanitizeKey(key string) string {
	return posterKeyPattern.ReplaceAllString(key, "_")
}

// Save writes the image atomically and returns the ref to store on the entry.
func (p *PosterStore) Save(key string, data []byte) (string, error) {
	key = SanitizeKey(key)
	if key == "" {
		return "", ErrInvalidPosterRef
	}

	path := filepath.Join(p.dir, "poster_"+key+".jpg")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write poster: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("replace poster: %w", err)
	}
	return "/poster/" + key, nil
}

// Resolve maps a sanitized key back to the poster file path. The containment
// check guards against refs that escape the poster directory.
func (p *PosterStore) Resolve(key string) (string, error) {
	if key != SanitizeKey(key) || key == "" {
		return "", ErrInvalidPosterRef
	}
	path := filepath.Join(p.dir, "poster_"+key+".jpg")
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	dirAbs, err := filepath.Abs(p.dir)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(abs, dirAbs+string(filepath.Separator)) {
		return "", ErrInvalidPosterRef
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}
