package toolchain

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/fpmake/internal/config"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/source"
)

// Profile is the invocation for one source kind: the driver and the flags
// applied to every preprocess and compile of that kind.
type Profile struct {
	Driver string
	Flags  []string
}

// Exec runs a real compiler driver (clang, gcc, ...) as a child process.
type Exec struct {
	profiles      map[source.Kind]Profile
	linkDriverC   string
	linkDriverCXX string
	compileFlags  []string
	linkFlags     []string
	libs          []string
	dir           string
	logger        *slog.Logger
}

// NewExec creates an Exec from the configuration. Library lists are resolved for goos.
func NewExec(cfg *config.Config, goos string) *Exec {
	tc := cfg.Toolchain
	cxxFlags := make([]string, 0, len(tc.CompileFlags)+len(tc.StandardFlags))
	cxxFlags = append(cxxFlags, tc.CompileFlags...)
	cxxFlags = append(cxxFlags, tc.StandardFlags...)

	return &Exec{
		profiles: map[source.Kind]Profile{
			source.KindC:   {Driver: tc.C, Flags: tc.CompileFlags},
			source.KindCXX: {Driver: tc.CXX, Flags: cxxFlags},
		},
		linkDriverC:   tc.C,
		linkDriverCXX: tc.CXX,
		compileFlags:  tc.CompileFlags,
		linkFlags:     cfg.Link.Flags,
		libs:          cfg.LinkLibs(goos),
		dir:           cfg.Project.BaseDirectory,
		logger:        slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Exec) WithLogger(logger *slog.Logger) *Exec {
	e.logger = logger
	return e
}

// Profile returns the invocation used for kind.
func (e *Exec) Profile(kind source.Kind) (Profile, bool) {
	p, ok := e.profiles[kind]
	return p, ok
}

// PreprocessCommand returns the argv used to fingerprint f.
func (e *Exec) PreprocessCommand(f source.File) ([]string, error) {
	p, err := e.profile(f)
	if err != nil {
		return nil, err
	}
	return e.unitCommand(p, f, "-E"), nil
}

// CompileCommand returns the argv used to compile f into object.
func (e *Exec) CompileCommand(f source.File, object string) ([]string, error) {
	p, err := e.profile(f)
	if err != nil {
		return nil, err
	}
	return e.unitCommand(p, f, "-c", "-o", object), nil
}

// LinkCommand returns the argv used to link objects into output.
func (e *Exec) LinkCommand(objects []string, output string, cxx bool) []string {
	driver := e.linkDriverC
	if cxx {
		driver = e.linkDriverCXX
	}
	argv := make([]string, 0, 3+len(objects)+len(e.compileFlags)+len(e.linkFlags)+len(e.libs))
	argv = append(argv, driver, "-o", output)
	argv = append(argv, objects...)
	argv = append(argv, e.compileFlags...)
	argv = append(argv, e.linkFlags...)
	argv = append(argv, e.libs...)
	return argv
}

// Preprocess implements Toolchain.
func (e *Exec) Preprocess(ctx context.Context, f source.File) ([]byte, error) {
	argv, err := e.PreprocessCommand(f)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Preprocessing", logfields.Source(f.Rel), logfields.Command(strings.Join(argv, " ")))

	var stdout, stderr bytes.Buffer
	res, err := e.run(ctx, argv, &stdout, &stderr)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("%s exited with status %d: %s", argv[0], res.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Compile implements Toolchain.
func (e *Exec) Compile(ctx context.Context, f source.File, object string) (Result, error) {
	argv, err := e.CompileCommand(f, object)
	if err != nil {
		return Result{}, err
	}
	e.logger.Info(strings.Join(argv, " "))

	var out bytes.Buffer
	return e.run(ctx, argv, &out, &out)
}

// Link implements Toolchain.
func (e *Exec) Link(ctx context.Context, objects []string, output string, cxx bool) (Result, error) {
	argv := e.LinkCommand(objects, output, cxx)
	e.logger.Info(strings.Join(argv, " "))

	var out bytes.Buffer
	return e.run(ctx, argv, &out, &out)
}

func (e *Exec) profile(f source.File) (Profile, error) {
	p, ok := e.profiles[f.Kind]
	if !ok || p.Driver == "" {
		return Profile{}, fmt.Errorf("no toolchain profile for %s (kind %q)", f.Rel, f.Kind)
	}
	return p, nil
}

func (e *Exec) unitCommand(p Profile, f source.File, extra ...string) []string {
	argv := make([]string, 0, 2+len(p.Flags)+len(extra))
	argv = append(argv, p.Driver, filepath.FromSlash(f.Rel))
	argv = append(argv, p.Flags...)
	argv = append(argv, extra...)
	return argv
}

// run executes argv in the project directory. Only a failure to start the
// process is returned as an error; a non-zero exit is reported in Result.
func (e *Exec) run(ctx context.Context, argv []string, stdout, stderr *bytes.Buffer) (Result, error) {
	// #nosec G204 - the driver and flags come from the project configuration
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	res := Result{Command: argv}
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return res, fmt.Errorf("failed to run %s: %w", argv[0], err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	if stdout == stderr {
		res.Output = stdout.Bytes()
	} else {
		res.Output = stderr.Bytes()
	}
	return res, nil
}
