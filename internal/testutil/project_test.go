package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fpmake/internal/config"
)

func TestProjectBuilderConfig(t *testing.T) {
	pb := NewProject(t).
		WithOutput("out/tool").
		WithSourceDirs("src", "lib").
		WithJobs(3).
		WithYAML("history:\n  database: h.db\n").
		WithFile("src/main.c", "int main(void) { return 0; }\n")

	cfg := pb.Config()
	assert.Equal(t, "out/tool", cfg.Project.Output)
	assert.Equal(t, []string{"src", "lib"}, cfg.Sources.Directories)
	assert.Equal(t, 3, cfg.CompileJobs())
	assert.Equal(t, 3, cfg.FingerprintJobs())
	assert.Equal(t, "h.db", cfg.History.Database)
	assert.Equal(t, pb.Base(), cfg.Project.BaseDirectory)

	pb.Files().
		AssertFileExists("src/main.c").
		AssertFileContains("src/main.c", "return 0").
		AssertNotExists("lib")
}

func TestWriteConfigIsLoadable(t *testing.T) {
	pb := NewProject(t)
	path := pb.WriteConfig()

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, pb.Base(), cfg.Project.BaseDirectory)
	assert.Equal(t, pb.Path("bin/app"), cfg.Resolve(cfg.Project.Output))
}
