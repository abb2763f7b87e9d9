package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyMode        = "mode"
	KeyExtension   = "extension"
	KeyChange      = "change"
	KeyGroup       = "group"
	KeyGroupKey    = "group_key"
	KeyPhase       = "phase"
	KeyStage       = "stage"
	KeyContainerID = "container_id"
	KeyImage       = "image"
	KeyExitCode    = "exit_code"
	KeyScript      = "script"
	KeyRepo        = "repository"
	KeyCommit      = "commit"
	KeyVersion     = "version"
	KeyPath        = "path"
	KeyCount       = "count"
	KeyDurationMS  = "duration_ms"
	KeyURL         = "url"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Extension(id string) slog.Attr   { return slog.String(KeyExtension, id) }
func Change(kind string) slog.Attr    { return slog.String(KeyChange, kind) }
func Group(idx int) slog.Attr         { return slog.Int(KeyGroup, idx) }
func GroupKey(key string) slog.Attr   { return slog.String(KeyGroupKey, key) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func ContainerID(id string) slog.Attr { return slog.String(KeyContainerID, id) }
func Image(ref string) slog.Attr      { return slog.String(KeyImage, ref) }
func ExitCode(code int64) slog.Attr   { return slog.Int64(KeyExitCode, code) }
func Script(name string) slog.Attr    { return slog.String(KeyScript, name) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
