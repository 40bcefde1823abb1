// Package logfields holds the canonical slog attribute keys used by fpmake.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID     = "build_id"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeySource      = "source"
	KeyObject      = "object"
	KeyKind        = "kind"
	KeyFingerprint = "fingerprint"
	KeyExitCode    = "exit_code"
	KeyCommand     = "command"
	KeyJobs        = "jobs"
	KeyPath        = "path"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Source(p string) slog.Attr       { return slog.String(KeySource, p) }
func Object(p string) slog.Attr       { return slog.String(KeyObject, p) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Fingerprint(f string) slog.Attr  { return slog.String(KeyFingerprint, f) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Jobs(n int) slog.Attr            { return slog.Int(KeyJobs, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
