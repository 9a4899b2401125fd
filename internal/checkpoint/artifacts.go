package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/matrioska/internal/fsutil"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

// ArtifactStore writes generated artifacts into a directory.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore returns a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir returns the artifacts directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Save persists the artifact content under its file name and records the
// resulting path on the artifact. Saving the same artifact twice overwrites
// the previous file.
func (s *ArtifactStore) Save(a *models.Artifact) error {
	if a == nil {
		return fmt.Errorf("artifact is nil")
	}

	name := SanitizeFileName(a.FileName)
	if name == "" {
		name = SanitizeFileName(a.UnitID + ".txt")
	}
	path := filepath.Join(s.dir, name)

	if err := fsutil.AtomicWriteFile(path, []byte(a.Content), 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}

	a.FileName = name
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	a.Path = path
	return nil
}

// Load reads a previously saved artifact by file name.
func (s *ArtifactStore) Load(fileName string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, SanitizeFileName(fileName)))
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", fileName, err)
	}
	return string(data), nil
}

// List returns the file names in the artifacts directory, sorted.
func (s *ArtifactStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// SanitizeFileName reduces name to a single path element that stays inside
// the artifacts directory. Separators become underscores and leading dots are
// dropped.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	return strings.TrimLeft(name, ".")
}
