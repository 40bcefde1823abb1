// Package toolchain runs the external compiler for the three operations the
// build consumes: preprocess, compile to object, and link.
package toolchain

import (
	"context"
	"strings"

	"git.home.luguber.info/inful/fpmake/internal/source"
)

// Toolchain is the compiler as seen by the build. Exit status 0 is success;
// diagnostics are passed through untouched and never parsed.
type Toolchain interface {
	// Preprocess returns the fully preprocessed output of f. A process that
	// cannot start or exits non-zero is an error.
	Preprocess(ctx context.Context, f source.File) ([]byte, error)

	// Compile produces object from f. A non-nil error means the process could
	// not be run at all; a compiler rejection is reported through Result.
	Compile(ctx context.Context, f source.File, object string) (Result, error)

	// Link combines objects into output. cxx selects the C++ driver.
	Link(ctx context.Context, objects []string, output string, cxx bool) (Result, error)
}

// Result is the outcome of one toolchain process.
type Result struct {
	Command  []string
	ExitCode int
	Output   []byte
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool { return r.ExitCode == 0 }

// CommandLine renders Command the way it would be typed in a shell.
func (r Result) CommandLine() string { return strings.Join(r.Command, " ") }

var (
	_ Toolchain = (*Exec)(nil)
	_ Toolchain = (*MockToolchain)(nil)
)
