package build

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fpmake/internal/config"
	"git.home.luguber.info/inful/fpmake/internal/detect"
	"git.home.luguber.info/inful/fpmake/internal/eventstore"
	"git.home.luguber.info/inful/fpmake/internal/events"
	"git.home.luguber.info/inful/fpmake/internal/fingerprint"
	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
	"git.home.luguber.info/inful/fpmake/internal/metrics"
	"git.home.luguber.info/inful/fpmake/internal/testutil"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

var _ BuildService = (*DefaultBuildService)(nil)

type project struct {
	t     *testing.T
	fx    *testutil.ProjectBuilder
	base  string
	cfg   *config.Config
	tc    *toolchain.MockToolchain
	store *fingerprint.FileStore
}

func newProject(t *testing.T) *project {
	t.Helper()
	fx := testutil.NewProject(t).WithJobs(2)
	cfg := fx.Config()
	return &project{
		t:     t,
		fx:    fx,
		base:  fx.Base(),
		cfg:   cfg,
		tc:    toolchain.NewMockToolchain(),
		store: fingerprint.NewFileStore(cfg.Resolve(cfg.Build.CacheFile)),
	}
}

func (p *project) write(rel, body string) {
	p.t.Helper()
	p.fx.WithFile(rel, body)
}

func (p *project) service() *DefaultBuildService {
	return NewBuildService(p.cfg, p.tc, p.store).WithDiagnostics(nil)
}

// run performs one build with fresh toolchain records.
func (p *project) run() (*Outcome, error) {
	p.t.Helper()
	p.tc.Reset()
	return p.service().Run(p.t.Context(), Request{})
}

func (p *project) cached() fingerprint.Set {
	p.t.Helper()
	set, err := p.store.Load()
	require.NoError(p.t, err)
	return set
}

func (p *project) scenario() {
	p.write("src/h.h", "#define H 1\n")
	p.write("src/a.cpp", "#include \"h.h\"\nint a() { return H; }\n")
	p.write("src/b.cpp", "int b() { return 2; }\n")
}

func TestScenarioAcrossFourRuns(t *testing.T) {
	p := newProject(t)
	p.scenario()

	// Run 1: empty cache, everything compiles and links.
	out, err := p.run()
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.ElementsMatch(t, []string{"src/a.cpp", "src/b.cpp"}, p.tc.Compiled())
	require.Len(t, p.tc.Links(), 1)
	assert.True(t, p.tc.Links()[0].CXX)
	assert.Len(t, p.cached(), 2)
	p.fx.Files().
		AssertFileExists("bin/app").
		AssertFileContains("obj/src/a.o", "#define H 1").
		AssertFileExists("obj/src/b.o")

	// Run 2: no edits, nothing compiles, link still runs over existing objects.
	out, err = p.run()
	require.NoError(t, err)
	assert.Empty(t, p.tc.Compiled())
	assert.Empty(t, out.Changes)
	require.Len(t, p.tc.Links(), 1)
	assert.ElementsMatch(t, []string{
		filepath.Join(p.base, "obj", "src", "a.o"),
		filepath.Join(p.base, "obj", "src", "b.o"),
	}, p.tc.Links()[0].Objects)

	// Run 3: header edit recompiles only its includer.
	p.write("src/h.h", "#define H 2\n")
	out, err = p.run()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.cpp"}, p.tc.Compiled())
	require.Len(t, out.Changes, 1)
	assert.Equal(t, detect.ReasonChanged, out.Changes[0].Reason)

	// Run 3b: a.cpp breaks, link is skipped, a.cpp loses its cache entry.
	p.write("src/a.cpp", "#include \"h.h\"\n#error broken\n")
	out, err = p.run()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCompile))
	assert.Equal(t, StatusCompileFailed, out.Status)
	assert.Equal(t, []string{"src/a.cpp"}, out.FailedUnits())
	assert.Empty(t, p.tc.Links())
	assert.False(t, out.Linked)
	cached := p.cached()
	assert.NotContains(t, cached, "src/a.cpp")
	assert.Contains(t, cached, "src/b.cpp")

	// Run 4: a.cpp fixed, it recompiles and the executable links.
	p.write("src/a.cpp", "#include \"h.h\"\nint a() { return H + 1; }\n")
	out, err = p.run()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.cpp"}, p.tc.Compiled())
	assert.Equal(t, detect.ReasonNew, out.Changes[0].Reason)
	assert.Len(t, p.tc.Links(), 1)
	assert.Len(t, p.cached(), 2)
}

func TestIdempotentSecondRun(t *testing.T) {
	p := newProject(t)
	p.scenario()

	_, err := p.run()
	require.NoError(t, err)
	out, err := p.run()
	require.NoError(t, err)
	assert.Empty(t, out.Jobs)
	assert.Empty(t, p.tc.Compiled())
	assert.Len(t, p.tc.Preprocessed(), 2)
}

func TestCommentOnlyEditDoesNotRecompile(t *testing.T) {
	p := newProject(t)
	p.scenario()
	_, err := p.run()
	require.NoError(t, err)

	p.write("src/b.cpp", "// returns two\nint b() { return 2; } /* still two */\n\n")
	_, err = p.run()
	require.NoError(t, err)
	assert.Empty(t, p.tc.Compiled())
}

func TestFailureIsNotCached(t *testing.T) {
	p := newProject(t)
	p.scenario()
	p.write("src/a.cpp", "#error broken\n")

	_, err := p.run()
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"src/a.cpp", "src/b.cpp"}, p.tc.Compiled())

	// No edits: the failed unit is retried, the good one is not.
	out, err := p.run()
	require.Error(t, err)
	assert.Equal(t, []string{"src/a.cpp"}, p.tc.Compiled())
	assert.Equal(t, detect.ReasonNew, out.Changes[0].Reason)
	assert.Empty(t, p.tc.Links())
}

func TestLinkFailureDoesNotAffectCache(t *testing.T) {
	p := newProject(t)
	p.scenario()
	p.tc.LinkExitCode = 1

	out, err := p.run()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryLink))
	assert.Equal(t, StatusLinkFailed, out.Status)
	assert.Len(t, p.cached(), 2)
	p.fx.Files().AssertNotExists("bin/app")

	p.tc.LinkExitCode = 0
	_, err = p.run()
	require.NoError(t, err)
	assert.Empty(t, p.tc.Compiled())
	assert.Len(t, p.tc.Links(), 1)
}

func TestNewFileBootstrap(t *testing.T) {
	p := newProject(t)
	p.scenario()
	_, err := p.run()
	require.NoError(t, err)

	p.write("src/util/c.c", "int c;\n")
	out, err := p.run()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/util/c.c"}, p.tc.Compiled())
	assert.Equal(t, detect.ReasonNew, out.Changes[0].Reason)
	assert.FileExists(t, filepath.Join(p.base, "obj", "src", "util", "c.o"))
	assert.Len(t, p.tc.Links()[0].Objects, 3)
}

func TestDiscoveryFailureMutatesNothing(t *testing.T) {
	p := newProject(t)
	store := fingerprint.NewMemoryStore(fingerprint.Set{"src/a.cpp": "x"})

	out, err := NewBuildService(p.cfg, p.tc, store).Run(t.Context(), Request{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryDiscovery))
	assert.Equal(t, StatusFailed, out.Status)
	assert.Zero(t, store.Saves())
	assert.Empty(t, p.tc.Preprocessed())
	assert.NoDirExists(t, filepath.Join(p.base, "obj"))
}

func TestFingerprintFailureStopsBeforeCompiling(t *testing.T) {
	p := newProject(t)
	p.scenario()
	p.write("src/c.cpp", "#include \"missing.h\"\n")
	store := fingerprint.NewMemoryStore(nil)

	out, err := NewBuildService(p.cfg, p.tc, store).WithDiagnostics(nil).Run(t.Context(), Request{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFingerprint))
	assert.True(t, errors.HasSeverity(err, errors.SeverityFatal))
	classified, ok := errors.AsClassified(err)
	require.True(t, ok)
	id, _ := classified.Context().GetString("build_id")
	assert.Equal(t, out.BuildID, id)
	assert.Empty(t, p.tc.Compiled())
	assert.Empty(t, p.tc.Links())
	assert.Zero(t, store.Saves())
}

func TestPlanWritesNothing(t *testing.T) {
	p := newProject(t)
	p.scenario()
	store := fingerprint.NewMemoryStore(nil)

	plan, err := NewBuildService(p.cfg, p.tc, store).Plan(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Units)
	assert.Len(t, plan.Changes, 2)
	assert.Len(t, plan.Fingerprints, 2)
	assert.Zero(t, store.Saves())
	assert.Empty(t, p.tc.Compiled())
	assert.NoDirExists(t, filepath.Join(p.base, "obj"))
}

func TestBuildEventsReachHistory(t *testing.T) {
	p := newProject(t)
	p.scenario()
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	svc := p.service().WithEmitter(events.NewStoreEmitter(store))
	out, err := svc.Run(t.Context(), Request{Trigger: "watch"})
	require.NoError(t, err)

	p.write("src/b.cpp", "#error nope\n")
	_, err = svc.Run(t.Context(), Request{})
	require.Error(t, err)

	history, err := eventstore.History(t.Context(), store, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	byID := map[string]*eventstore.BuildSummary{}
	for _, h := range history {
		byID[h.BuildID] = h
	}
	first := byID[out.BuildID]
	require.NotNil(t, first)
	assert.Equal(t, eventstore.StatusSucceeded, first.Status)
	assert.Equal(t, "watch", first.Trigger)
	assert.Equal(t, 2, first.Compiled)
	for id, h := range byID {
		if id == out.BuildID {
			continue
		}
		assert.Equal(t, eventstore.StatusFailed, h.Status)
		assert.Equal(t, StageCompile, h.ErrorStage)
		assert.Equal(t, []string{"src/b.cpp"}, h.FailedUnits)
	}
}

type outcomeRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	outcomes []metrics.BuildOutcomeLabel
	units    [2]int
	compiles int
}

func (r *outcomeRecorder) IncBuildOutcome(o metrics.BuildOutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) SetUnits(total, changed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = [2]int{total, changed}
}

func (r *outcomeRecorder) ObserveCompileDuration(string, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiles++
}

func TestMetricsRecordOutcome(t *testing.T) {
	p := newProject(t)
	p.scenario()
	rec := &outcomeRecorder{}

	_, err := p.service().WithRecorder(rec).Run(t.Context(), Request{})
	require.NoError(t, err)

	p.tc.LinkExitCode = 2
	_, err = p.service().WithRecorder(rec).Run(t.Context(), Request{})
	require.Error(t, err)

	assert.Equal(t, []metrics.BuildOutcomeLabel{metrics.OutcomeSuccess, metrics.OutcomeLinkFailed}, rec.outcomes)
	assert.Equal(t, [2]int{2, 0}, rec.units)
	assert.Equal(t, 2, rec.compiles)
}
