package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wormhole/internal/domain"
)

const maxRenames = 1000

// FileSink writes received files into a directory.
type FileSink struct {
	dir       string
	overwrite bool
	mu        sync.Mutex
}

var _ domain.FileSink = (*FileSink)(nil)

// NewFileSink returns a sink for dir. Unless overwrite is set, an existing
// file is never replaced: the new one gets a numbered name instead.
func NewFileSink(dir string, overwrite bool) *FileSink {
	return &FileSink{dir: dir, overwrite: overwrite}
}

// Save stores data under the sanitised form of name and returns the path
// written.
func (s *FileSink) Save(name string, data []byte) (string, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, clean)
	if !s.overwrite {
		if path, err = s.freePath(clean); err != nil {
			return "", err
		}
	}
	if err := writeFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store: save %s: %w", clean, err)
	}
	return path, nil
}

// freePath returns dir/name, or dir/"stem (n).ext" for the first n not taken.
func (s *FileSink) freePath(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxRenames; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(s.dir, candidate)
		taken, err := exists(path)
		if err != nil {
			return "", err
		}
		if !taken {
			return path, nil
		}
	}
	return "", fmt.Errorf("store: no free name for %s", name)
}

// SanitizeName reduces a peer-supplied file name to a single safe path
// element.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' || r == ':' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" {
		return "", fmt.Errorf("%w: unusable file name", domain.ErrInvalidInput)
	}
	return name, nil
}
