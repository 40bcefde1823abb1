package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

func touch(t *testing.T, base, rel string) {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte("int x;\n"), 0o600))
}

func TestDiscoverRecursesAndFiltersByExtension(t *testing.T) {
	base := t.TempDir()
	touch(t, base, "Violet/Main.cpp")
	touch(t, base, "Violet/Core/Object.cpp")
	touch(t, base, "Violet/Core/Object.hpp")
	touch(t, base, "Violet/.hidden/gen.c")
	touch(t, base, "Lodepng/lodepng.c")
	touch(t, base, "Lodepng/README")
	touch(t, base, "Other/skip.cpp")

	files, err := NewDiscovery(base, []string{"Violet", "Lodepng"}).Discover()
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.Rel)
	}
	assert.Equal(t, []string{
		"Lodepng/lodepng.c",
		"Violet/.hidden/gen.c",
		"Violet/Core/Object.cpp",
		"Violet/Main.cpp",
	}, rels)

	assert.Equal(t, KindC, files[0].Kind)
	assert.Equal(t, KindCXX, files[3].Kind)
	assert.True(t, AnyCXX(files))
}

func TestDiscoverMissingRootFails(t *testing.T) {
	_, err := NewDiscovery(t.TempDir(), []string{"absent"}).Discover()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryDiscovery))
}

func TestDiscoverOverlappingRootsDeduplicates(t *testing.T) {
	base := t.TempDir()
	touch(t, base, "src/a.c")
	touch(t, base, "src/sub/b.c")

	files, err := NewDiscovery(base, []string{"src", "src/sub"}).Discover()
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.False(t, AnyCXX(files))
}

func TestObjectPathMirrorsSourceTree(t *testing.T) {
	f := File{Rel: "Violet/Core/Object.cpp", Kind: KindCXX}
	assert.Equal(t, filepath.Join("obj", "Violet", "Core", "Object.o"), f.ObjectPath("obj"))

	c := File{Rel: "Lodepng/lodepng.c", Kind: KindC}
	assert.Equal(t, filepath.Join("/build/obj", "Lodepng", "lodepng.o"), c.ObjectPath("/build/obj"))
}

func TestKindForPath(t *testing.T) {
	cases := map[string]struct {
		kind Kind
		ok   bool
	}{
		"a.c":   {KindC, true},
		"a.cpp": {KindCXX, true},
		"a.cc":  {KindCXX, true},
		"a.h":   {"", false},
		"a.hpp": {"", false},
		"c":     {"", false},
	}
	for name, want := range cases {
		got, ok := KindForPath(name)
		assert.Equal(t, want.ok, ok, name)
		assert.Equal(t, want.kind, got, name)
	}
	assert.Equal(t, []string{".c", ".cc", ".cpp", ".cxx"}, Extensions())
}
