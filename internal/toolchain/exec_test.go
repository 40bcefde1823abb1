package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fpmake/internal/config"
	"git.home.luguber.info/inful/fpmake/internal/source"
)

func testConfig(t *testing.T, c, cxx string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
project:
  output: violet
sources:
  directories: [Violet]
toolchain:
  compile_flags: [-g, -Wall, -I.]
  standard_flags: [-std=c++11]
link:
  flags: [-rdynamic]
  libs: [-lpthread]
  platform_libs:
    linux: [-lGL]
`))
	require.NoError(t, err)
	cfg.Toolchain.C = c
	cfg.Toolchain.CXX = cxx
	cfg.Project.BaseDirectory = t.TempDir()
	return cfg
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestCommandsFollowKindTable(t *testing.T) {
	e := NewExec(testConfig(t, "clang", "clang++"), "linux")

	cpp := source.File{Rel: "Violet/Main.cpp", Kind: source.KindCXX}
	c := source.File{Rel: "Lodepng/lodepng.c", Kind: source.KindC}

	argv, err := e.PreprocessCommand(cpp)
	require.NoError(t, err)
	assert.Equal(t, []string{"clang++", filepath.FromSlash("Violet/Main.cpp"), "-g", "-Wall", "-I.", "-std=c++11", "-E"}, argv)

	argv, err = e.CompileCommand(c, "obj/Lodepng/lodepng.o")
	require.NoError(t, err)
	assert.Equal(t, []string{"clang", filepath.FromSlash("Lodepng/lodepng.c"), "-g", "-Wall", "-I.", "-c", "-o", "obj/Lodepng/lodepng.o"}, argv)

	assert.Equal(t,
		[]string{"clang++", "-o", "violet", "a.o", "b.o", "-g", "-Wall", "-I.", "-rdynamic", "-lpthread", "-lGL"},
		e.LinkCommand([]string{"a.o", "b.o"}, "violet", true))
	assert.Equal(t, "clang", e.LinkCommand(nil, "violet", false)[0])
}

func TestCommandRejectsUnknownKind(t *testing.T) {
	e := NewExec(testConfig(t, "clang", "clang++"), "linux")
	_, err := e.PreprocessCommand(source.File{Rel: "x.f90", Kind: source.Kind("fortran")})
	require.Error(t, err)
}

func TestExecCompileExitStatus(t *testing.T) {
	requireTool(t, "true")
	requireTool(t, "false")
	e := NewExec(testConfig(t, "true", "false"), "linux")
	ctx := context.Background()

	res, err := e.Compile(ctx, source.File{Rel: "a.c", Kind: source.KindC}, "a.o")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "true a.c -g -Wall -I. -c -o a.o", res.CommandLine())

	res, err = e.Compile(ctx, source.File{Rel: "b.cpp", Kind: source.KindCXX}, "b.o")
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.NotZero(t, res.ExitCode)

	res, err = e.Link(ctx, []string{"a.o"}, "out", true)
	require.NoError(t, err)
	assert.False(t, res.Success())
}

func TestExecPreprocessCapturesStdout(t *testing.T) {
	requireTool(t, "echo")
	e := NewExec(testConfig(t, "echo", "echo"), "linux")

	out, err := e.Preprocess(context.Background(), source.File{Rel: "a.c", Kind: source.KindC})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "a.c -g -Wall"), "got %q", out)
}

func TestExecPreprocessNonZeroIsError(t *testing.T) {
	requireTool(t, "false")
	e := NewExec(testConfig(t, "false", "false"), "linux")

	_, err := e.Preprocess(context.Background(), source.File{Rel: "a.c", Kind: source.KindC})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with status")
}

func TestExecMissingDriverIsStartError(t *testing.T) {
	e := NewExec(testConfig(t, "fpmake-no-such-compiler", "fpmake-no-such-compiler"), "linux")

	_, err := e.Compile(context.Background(), source.File{Rel: "a.c", Kind: source.KindC}, "a.o")
	require.Error(t, err)
}

func TestMockToolchainPreprocessing(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	write("h.h", "int h(void); // header\n")
	a := write("a.c", "/* banner */\n#include \"h.h\"\nint main(void) { return h(); }\n")

	m := NewMockToolchain()
	out, err := m.Preprocess(context.Background(), source.File{Path: a, Rel: "a.c", Kind: source.KindC})
	require.NoError(t, err)
	assert.Equal(t, "int h(void);\nint main(void) { return h(); }\n", string(out))

	write("a.c", "// only a comment changed\n#include \"h.h\"\nint main(void) { return h(); }\n")
	again, err := m.Preprocess(context.Background(), source.File{Path: a, Rel: "a.c", Kind: source.KindC})
	require.NoError(t, err)
	assert.Equal(t, out, again)

	write("bad.c", "#include \"missing.h\"\n")
	_, err = m.Preprocess(context.Background(), source.File{Path: filepath.Join(dir, "bad.c"), Rel: "bad.c", Kind: source.KindC})
	require.Error(t, err)
}
