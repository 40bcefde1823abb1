package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"git.home.luguber.info/inful/fpmake/internal/config"
)

// ProjectBuilder provides a fluent interface for creating a project on disk:
// sources, headers and an fpmake.yaml.
type ProjectBuilder struct {
	t       *testing.T
	base    string
	output  string
	sources []string
	jobs    int
	extra   []string
}

// NewProject creates a builder rooted at a fresh temporary directory. The
// defaults are one source root "src" and output "bin/app".
func NewProject(t *testing.T) *ProjectBuilder {
	t.Helper()
	return &ProjectBuilder{
		t:       t,
		base:    t.TempDir(),
		output:  "bin/app",
		sources: []string{"src"},
	}
}

// WithOutput sets project.output.
func (pb *ProjectBuilder) WithOutput(output string) *ProjectBuilder {
	pb.output = output
	return pb
}

// WithSourceDirs replaces sources.directories.
func (pb *ProjectBuilder) WithSourceDirs(dirs ...string) *ProjectBuilder {
	pb.sources = dirs
	return pb
}

// WithJobs sets both compile and fingerprint concurrency.
func (pb *ProjectBuilder) WithJobs(n int) *ProjectBuilder {
	pb.jobs = n
	return pb
}

// WithYAML appends raw top-level YAML sections (metrics, history, ...).
func (pb *ProjectBuilder) WithYAML(section string) *ProjectBuilder {
	pb.extra = append(pb.extra, strings.TrimRight(section, "\n"))
	return pb
}

// WithFile writes a file relative to the project root.
func (pb *ProjectBuilder) WithFile(rel, content string) *ProjectBuilder {
	pb.t.Helper()
	WriteFile(pb.t, filepath.Join(pb.base, filepath.FromSlash(rel)), content)
	return pb
}

// Base returns the project root.
func (pb *ProjectBuilder) Base() string { return pb.base }

// Path returns rel resolved against the project root.
func (pb *ProjectBuilder) Path(rel string) string {
	return filepath.Join(pb.base, filepath.FromSlash(rel))
}

// YAML renders the configuration file content.
func (pb *ProjectBuilder) YAML() string {
	var b strings.Builder
	b.WriteString("version: 1\n")
	b.WriteString("project:\n  output: " + pb.output + "\n")
	b.WriteString("sources:\n  directories:\n")
	for _, d := range pb.sources {
		b.WriteString("    - " + d + "\n")
	}
	if pb.jobs > 0 {
		n := strconv.Itoa(pb.jobs)
		b.WriteString("build:\n  jobs: " + n + "\n  fingerprint_jobs: " + n + "\n")
	}
	for _, e := range pb.extra {
		b.WriteString(e + "\n")
	}
	return b.String()
}

// Config parses the configuration in memory with the base directory set to
// the project root.
func (pb *ProjectBuilder) Config() *config.Config {
	pb.t.Helper()
	cfg, err := config.Parse([]byte(pb.YAML()))
	if err != nil {
		pb.t.Fatalf("Failed to parse test config: %v", err)
	}
	cfg.Project.BaseDirectory = pb.base
	return cfg
}

// WriteConfig writes fpmake.yaml into the project root and returns its path.
func (pb *ProjectBuilder) WriteConfig() string {
	pb.t.Helper()
	path := filepath.Join(pb.base, config.DefaultPath)
	WriteFile(pb.t, path, pb.YAML())
	return path
}

// Files returns assertions rooted at the project.
func (pb *ProjectBuilder) Files() *FileAssertions {
	return NewFileAssertions(pb.t, pb.base)
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), testDirPermissions); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), testFilePermissions); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
