package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/source"
)

var (
	includeRe      = regexp.MustCompile(`^\s*#\s*include\s+"([^"]+)"`)
	lineCommentRe  = regexp.MustCompile(`//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// MockToolchain is an in-process Toolchain for tests. Preprocessing inlines
// quoted includes and strips comments, so comment-only edits leave the output
// unchanged while header edits change every includer. A unit whose
// preprocessed text contains "#error" fails to compile.
type MockToolchain struct {
	mu sync.Mutex

	// CompileDelay is slept inside every Compile call.
	CompileDelay time.Duration
	// LinkExitCode is returned by Link (0 by default).
	LinkExitCode int
	// StartErrors makes Compile fail to start for the listed units (by Rel).
	StartErrors map[string]error

	preprocessed []string
	compiled     []string
	links        []LinkCall
	active       int
	maxActive    int
}

// LinkCall records one Link invocation.
type LinkCall struct {
	Objects []string
	Output  string
	CXX     bool
}

// NewMockToolchain creates a MockToolchain.
func NewMockToolchain() *MockToolchain {
	return &MockToolchain{StartErrors: make(map[string]error)}
}

// Preprocess implements Toolchain.
func (m *MockToolchain) Preprocess(_ context.Context, f source.File) ([]byte, error) {
	m.mu.Lock()
	m.preprocessed = append(m.preprocessed, f.Rel)
	m.mu.Unlock()

	var out bytes.Buffer
	if err := expand(&out, f.Path, map[string]bool{}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Compile implements Toolchain.
func (m *MockToolchain) Compile(ctx context.Context, f source.File, object string) (Result, error) {
	res := Result{Command: []string{"mockcc", f.Rel, "-c", "-o", object}}

	m.mu.Lock()
	if err, ok := m.StartErrors[f.Rel]; ok {
		m.mu.Unlock()
		return res, err
	}
	m.compiled = append(m.compiled, f.Rel)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	delay := m.CompileDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	var text bytes.Buffer
	if err := expand(&text, f.Path, map[string]bool{}); err != nil {
		res.ExitCode = 1
		res.Output = []byte(err.Error())
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if bytes.Contains(text.Bytes(), []byte("#error")) {
		res.ExitCode = 1
		res.Output = []byte(fmt.Sprintf("%s: error: #error directive", f.Rel))
		return res, nil
	}
	if err := os.WriteFile(object, append([]byte("OBJ\n"), text.Bytes()...), 0o600); err != nil {
		return res, err
	}
	return res, nil
}

// Link implements Toolchain.
func (m *MockToolchain) Link(_ context.Context, objects []string, output string, cxx bool) (Result, error) {
	m.mu.Lock()
	m.links = append(m.links, LinkCall{Objects: append([]string(nil), objects...), Output: output, CXX: cxx})
	exit := m.LinkExitCode
	m.mu.Unlock()

	res := Result{Command: append([]string{"mockld", "-o", output}, objects...)}
	if exit != 0 {
		res.ExitCode = exit
		res.Output = []byte("ld: error: mock link failure")
		return res, nil
	}
	for _, obj := range objects {
		if _, err := os.Stat(obj); err != nil {
			res.ExitCode = 1
			res.Output = []byte(fmt.Sprintf("ld: cannot find %s", obj))
			return res, nil
		}
	}
	if err := os.WriteFile(output, []byte("EXE\n"), 0o600); err != nil {
		return res, err
	}
	return res, nil
}

// Compiled returns the units compiled so far, in call order.
func (m *MockToolchain) Compiled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.compiled...)
}

// Preprocessed returns the units preprocessed so far, in call order.
func (m *MockToolchain) Preprocessed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.preprocessed...)
}

// Links returns the recorded Link calls.
func (m *MockToolchain) Links() []LinkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LinkCall(nil), m.links...)
}

// MaxConcurrentCompiles returns the highest number of overlapping Compile calls.
func (m *MockToolchain) MaxConcurrentCompiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// Reset clears recorded calls between simulated runs.
func (m *MockToolchain) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preprocessed = nil
	m.compiled = nil
	m.links = nil
	m.maxActive = 0
}

func expand(out *bytes.Buffer, path string, stack map[string]bool) error {
	if stack[path] {
		return fmt.Errorf("%s: include cycle", path)
	}
	// #nosec G304 - test fixture paths
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	stack[path] = true
	defer delete(stack, path)

	text := blockCommentRe.ReplaceAllString(string(data), "")
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimRight(lineCommentRe.ReplaceAllString(scanner.Text(), ""), " \t")
		if line == "" {
			continue
		}
		if m := includeRe.FindStringSubmatch(line); m != nil {
			if err := expand(out, filepath.Join(filepath.Dir(path), m[1]), stack); err != nil {
				return err
			}
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return scanner.Err()
}
