// Package source discovers translation units and maps them onto the object tree.
package source

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind discriminates translation units by language. It selects the compiler
// driver and the flag set used for preprocessing and compilation.
type Kind string

const (
	KindC   Kind = "c"
	KindCXX Kind = "c++"
)

// ObjectExt is the extension given to every object file.
const ObjectExt = ".o"

// extensions maps a recognized source extension onto its Kind. Adding a
// language is a new entry here plus a toolchain table entry.
var extensions = map[string]Kind{
	".c":   KindC,
	".cpp": KindCXX,
	".cc":  KindCXX,
	".cxx": KindCXX,
}

// KindForPath returns the Kind for path's extension. ok is false for
// files that are not translation units (headers, scripts, ...).
func KindForPath(path string) (Kind, bool) {
	k, ok := extensions[filepath.Ext(path)]
	return k, ok
}

// Extensions returns the recognized source extensions in sorted order.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (k Kind) String() string { return string(k) }

// IsCXX reports whether units of this kind need the C++ driver at link time.
func (k Kind) IsCXX() bool { return k == KindCXX }

func trimExt(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}
