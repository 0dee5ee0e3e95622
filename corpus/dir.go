package corpus

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time interface check.
var _ Source = (*DirSource)(nil)

// imageExtensions lists the file extensions treated as images.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// DirSource walks a directory tree and serves every image file in it.
// Identifiers are paths relative to the root. File contents are read
// lazily, one item at a time.
type DirSource struct {
	root  string
	paths []string
	pos   int
}

// NewDirSource creates a Source over all image files under root.
// The directory is walked once at construction; Reset does not rescan.
func NewDirSource(root string) (*DirSource, error) {
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DirSource{root: root, paths: paths}, nil
}

// Len returns the number of discovered image files.
func (s *DirSource) Len() int { return len(s.paths) }

// Next reads and returns the next image file or io.EOF.
func (s *DirSource) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}

	if s.pos >= len(s.paths) {
		return Item{}, io.EOF
	}

	path := s.paths[s.pos]
	s.pos++

	data, err := os.ReadFile(path)
	if err != nil {
		return Item{}, err
	}

	id, err := filepath.Rel(s.root, path)
	if err != nil {
		id = path
	}

	return Item{
		ID:   filepath.ToSlash(id),
		Data: data,
		Metadata: map[string]string{
			"source": path,
		},
	}, nil
}

// Reset restarts the iteration over the discovered files.
func (s *DirSource) Reset() error {
	s.pos = 0
	return nil
}
