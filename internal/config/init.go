package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// Example returns the configuration written by Init.
func Example() *Config {
	return &Config{
		Version: CurrentVersion,
		Project: ProjectConfig{Output: "app"},
		Sources: SourcesConfig{Directories: []string{"src"}},
		Toolchain: ToolchainConfig{
			C:             "clang",
			CXX:           "clang++",
			CompileFlags:  []string{"-g", "-Wall", "-Werror", "-pedantic", "-I.", "-O2"},
			StandardFlags: []string{"-std=c++11"},
		},
		Link: LinkConfig{
			Libs: []string{"-lpthread"},
			PlatformLibs: map[string][]string{
				"linux":  {"-lGL", "-lX11"},
				"darwin": {"-framework", "OpenGL"},
			},
		},
		Build: BuildConfig{
			ObjectDir: "obj",
			CacheFile: filepath.Join(".fpmake", "fingerprints.json"),
		},
		Logging: LoggingConfig{Level: string(LogLevelInfo), Format: string(LogFormatText)},
		History: HistoryConfig{Database: filepath.Join(".fpmake", "history.db")},
		Events:  EventsConfig{Subject: "fpmake.builds"},
		Watch:   WatchConfig{Debounce: "500ms"},
	}
}

// Init writes an example configuration file. An existing file is only replaced when force is set.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return errors.InternalError("failed to marshal config").WithCause(err).Build()
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.FileSystemError("failed to create config directory").WithCause(err).Build()
		}
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write config file").WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
