package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/fpmake/internal/config"
	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	KeepCache bool `name:"keep-cache" help:"Keep the fingerprint cache"`
}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	removed, err := Clean(cfg, c.KeepCache)
	for _, p := range removed {
		fmt.Printf("removed %s\n", p)
	}
	return err
}

// Clean deletes the object tree, the executable and, unless keepCache is set,
// the fingerprint cache. Paths that do not exist are skipped. It returns the
// paths that were removed. A kept cache stays usable: the next build
// recompiles every unit whose object file is missing.
func Clean(cfg *config.Config, keepCache bool) ([]string, error) {
	base, err := filepath.Abs(cfg.Project.BaseDirectory)
	if err != nil {
		return nil, errors.FileSystemError("failed to resolve base directory").WithCause(err).Build()
	}

	targets := []string{cfg.Resolve(cfg.Build.ObjectDir), cfg.Resolve(cfg.Project.Output)}
	if !keepCache {
		targets = append(targets, cfg.Resolve(cfg.Build.CacheFile))
	}

	var removed []string
	for _, t := range targets {
		abs, err := filepath.Abs(t)
		if err != nil {
			return removed, errors.FileSystemError("failed to resolve path").WithCause(err).
				WithContext("path", t).
				Build()
		}
		if abs == base || abs == filepath.Dir(abs) {
			return removed, errors.ValidationError("refusing to remove project root").
				WithContext("path", abs).
				Build()
		}
		if _, err := os.Lstat(abs); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(abs); err != nil {
			return removed, errors.FileSystemError("failed to remove").WithCause(err).
				WithContext("path", abs).
				Build()
		}
		removed = append(removed, t)
	}
	return removed, nil
}
