package scheduler

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fpmake/internal/source"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

func writeUnit(t *testing.T, base, rel, body string) source.File {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	kind, ok := source.KindForPath(rel)
	require.True(t, ok)
	return source.File{Path: p, Rel: rel, Kind: kind}
}

func TestRunCompilesAllAndCreatesObjectDirs(t *testing.T) {
	base := t.TempDir()
	objRoot := filepath.Join(base, "obj")
	files := []source.File{
		writeUnit(t, base, "src/a.cpp", "int a;\n"),
		writeUnit(t, base, "src/deep/nested/b.c", "int b;\n"),
	}

	tc := toolchain.NewMockToolchain()
	jobs := New(tc, objRoot, 4).WithDiagnostics(nil).Run(context.Background(), files)

	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.True(t, j.Succeeded(), j.File.Rel)
		_, err := os.Stat(j.Object)
		assert.NoError(t, err, "object for %s", j.File.Rel)
	}
	assert.Equal(t, filepath.Join(objRoot, "src", "deep", "nested", "b.o"), jobs[1].Object)
}

func TestFailedJobDoesNotAffectSiblings(t *testing.T) {
	base := t.TempDir()
	files := []source.File{
		writeUnit(t, base, "a.c", "#error broken\n"),
		writeUnit(t, base, "b.c", "int b;\n"),
		writeUnit(t, base, "c.c", "int c;\n"),
	}

	tc := toolchain.NewMockToolchain()
	tc.CompileDelay = 10 * time.Millisecond
	var diag bytes.Buffer
	jobs := New(tc, filepath.Join(base, "obj"), 1).WithDiagnostics(&diag).Run(context.Background(), files)

	status, sum := Summarize(jobs)
	assert.Equal(t, map[string]bool{"a.c": false, "b.c": true, "c.c": true}, status)
	assert.Equal(t, []string{"a.c"}, sum.Failed)
	assert.Equal(t, []string{"b.c", "c.c"}, sum.Succeeded)
	assert.Equal(t, 1, jobs[0].ExitCode)
	assert.Contains(t, diag.String(), "#error directive")
	assert.ElementsMatch(t, []string{"a.c", "b.c", "c.c"}, tc.Compiled())
}

func TestStartFailureIsRecordedAsFailedJob(t *testing.T) {
	base := t.TempDir()
	files := []source.File{
		writeUnit(t, base, "a.c", "int a;\n"),
		writeUnit(t, base, "b.c", "int b;\n"),
	}

	tc := toolchain.NewMockToolchain()
	tc.StartErrors["a.c"] = stderrors.New("exec: \"clang\": executable file not found in $PATH")
	jobs := New(tc, filepath.Join(base, "obj"), 2).WithDiagnostics(nil).Run(context.Background(), files)

	assert.False(t, jobs[0].Succeeded())
	assert.Equal(t, StartFailure, jobs[0].ExitCode)
	assert.Error(t, jobs[0].Err)
	assert.True(t, jobs[1].Succeeded())
}

func TestObjectDirectoryFailureIsJobFailure(t *testing.T) {
	base := t.TempDir()
	// A regular file where the object directory should go.
	blocker := filepath.Join(base, "obj")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	files := []source.File{writeUnit(t, base, "src/a.c", "int a;\n")}

	jobs := New(toolchain.NewMockToolchain(), blocker, 1).WithDiagnostics(nil).Run(context.Background(), files)
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Succeeded())
	assert.Equal(t, StartFailure, jobs[0].ExitCode)
}

func TestConcurrencyIsBounded(t *testing.T) {
	base := t.TempDir()
	var files []source.File
	for _, name := range []string{"a.c", "b.c", "c.c", "d.c", "e.c", "f.c", "g.c", "h.c"} {
		files = append(files, writeUnit(t, base, name, "int x;\n"))
	}

	tc := toolchain.NewMockToolchain()
	tc.CompileDelay = 15 * time.Millisecond
	jobs := New(tc, filepath.Join(base, "obj"), 3).WithDiagnostics(nil).Run(context.Background(), files)

	assert.Len(t, jobs, 8)
	assert.LessOrEqual(t, tc.MaxConcurrentCompiles(), 3)
	assert.Len(t, tc.Compiled(), 8)
}

func TestRunWithNoFiles(t *testing.T) {
	jobs := New(toolchain.NewMockToolchain(), t.TempDir(), 2).Run(context.Background(), nil)
	assert.Empty(t, jobs)
}
