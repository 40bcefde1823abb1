package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/source"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

// Linker is the part of the toolchain the link stage needs.
type Linker interface {
	Link(ctx context.Context, objects []string, output string, cxx bool) (toolchain.Result, error)
}

// LinkStage links the objects of every discovered unit, freshly compiled or
// left over from earlier runs, into the output executable.
type LinkStage struct {
	linker     Linker
	objectRoot string
	output     string
	logger     *slog.Logger
}

// NewLinkStage creates a LinkStage.
func NewLinkStage(linker Linker, objectRoot, output string, logger *slog.Logger) *LinkStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkStage{linker: linker, objectRoot: objectRoot, output: output, logger: logger}
}

// Objects returns the object path of every file, in file order.
func (l *LinkStage) Objects(files []source.File) []string {
	objects := make([]string, len(files))
	for i, f := range files {
		objects[i] = f.ObjectPath(l.objectRoot)
	}
	return objects
}

// Run links files. A linker that exits non-zero or cannot be started is a
// link error; the result is returned either way when available.
func (l *LinkStage) Run(ctx context.Context, files []source.File) (*toolchain.Result, error) {
	if dir := filepath.Dir(l.output); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.WrapError(err, errors.CategoryLink, "failed to create output directory").
				WithContext("output", l.output).
				Build()
		}
	}

	res, err := l.linker.Link(ctx, l.Objects(files), l.output, source.AnyCXX(files))
	if err != nil {
		return &res, errors.WrapError(err, errors.CategoryLink, "linker could not be run").
			WithContext("output", l.output).
			Build()
	}
	if !res.Success() {
		l.logger.Error("Link failed", logfields.Path(l.output), logfields.ExitCode(res.ExitCode))
		return &res, errors.LinkError("link failed").
			WithContext("output", l.output).
			WithContext("exit_code", res.ExitCode).
			Build()
	}
	l.logger.Info("Linked executable", logfields.Path(l.output), logfields.Jobs(len(files)))
	return &res, nil
}
