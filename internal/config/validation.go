package config

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// Validate checks the configuration for values the build cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Version > CurrentVersion {
		problems = append(problems, fmt.Sprintf("unsupported config version %d (max %d)", c.Version, CurrentVersion))
	}
	if strings.TrimSpace(c.Project.Output) == "" {
		problems = append(problems, "project.output is required")
	}
	if len(c.Sources.Directories) == 0 {
		problems = append(problems, "sources.directories must list at least one directory")
	}
	for i, dir := range c.Sources.Directories {
		if strings.TrimSpace(dir) == "" {
			problems = append(problems, fmt.Sprintf("sources.directories[%d] is empty", i))
		}
	}
	if strings.TrimSpace(c.Toolchain.C) == "" || strings.TrimSpace(c.Toolchain.CXX) == "" {
		problems = append(problems, "toolchain.c and toolchain.cxx must name compiler drivers")
	}
	if c.Build.Jobs < 0 {
		problems = append(problems, "build.jobs cannot be negative")
	}
	if c.Build.FingerprintJobs < 0 {
		problems = append(problems, "build.fingerprint_jobs cannot be negative")
	}
	if _, err := logLevelNormalizer.Parse(c.Logging.Level); err != nil {
		problems = append(problems, "logging.level: "+err.Error())
	}
	if _, err := logFormatNormalizer.Parse(c.Logging.Format); err != nil {
		problems = append(problems, "logging.format: "+err.Error())
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d < 0 {
		problems = append(problems, fmt.Sprintf("watch.debounce: invalid duration %q", c.Watch.Debounce))
	}
	if c.Watch.Interval != "" {
		if d, err := time.ParseDuration(c.Watch.Interval); err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("watch.interval: invalid duration %q", c.Watch.Interval))
		}
	}

	if len(problems) > 0 {
		return errors.ValidationError("invalid configuration").
			WithContext("problems", problems).
			WithCause(fmt.Errorf("%s", strings.Join(problems, "; "))).
			Build()
	}
	return nil
}
