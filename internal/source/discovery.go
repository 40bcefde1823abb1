package source

import (
	"io/fs"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// File is one translation unit. Path is the filesystem path, Rel the
// slash-separated path relative to the project base directory; Rel is the key
// used by the fingerprint cache and the object tree.
type File struct {
	Path string
	Rel  string
	Kind Kind
}

// ObjectPath returns where the unit's object file lives under objectRoot:
// the relative source path mirrored with its extension swapped for ObjectExt.
func (f File) ObjectPath(objectRoot string) string {
	return filepath.Join(objectRoot, filepath.FromSlash(trimExt(f.Rel))+ObjectExt)
}

// Discovery enumerates translation units below a set of root directories.
type Discovery struct {
	baseDir string
	roots   []string
}

// NewDiscovery creates a Discovery. Roots are relative to baseDir unless absolute.
func NewDiscovery(baseDir string, roots []string) *Discovery {
	return &Discovery{baseDir: baseDir, roots: roots}
}

// Discover walks every root recursively and returns each file with a
// recognized source extension. Any filesystem error aborts the walk.
// Results are sorted by Rel; callers must not rely on that for correctness.
func (d *Discovery) Discover() ([]File, error) {
	var files []File
	seen := make(map[string]struct{})

	for _, root := range d.roots {
		rootPath := root
		if !filepath.IsAbs(rootPath) {
			rootPath = filepath.Join(d.baseDir, root)
		}

		err := filepath.WalkDir(rootPath, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			kind, ok := KindForPath(path)
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(d.baseDir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			// Overlapping roots would otherwise schedule the same unit twice.
			if _, dup := seen[rel]; dup {
				return nil
			}
			seen[rel] = struct{}{}
			files = append(files, File{Path: path, Rel: rel, Kind: kind})
			return nil
		})
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryDiscovery, "failed to enumerate sources").
				WithContext("root", root).
				Build()
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// AnyCXX reports whether files contains a C++ unit.
func AnyCXX(files []File) bool {
	for _, f := range files {
		if f.Kind.IsCXX() {
			return true
		}
	}
	return false
}
