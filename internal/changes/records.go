package changes

import (
	"encoding/json"
	"fmt"
)

// ErrorType tags an ExtensionError.
type ErrorType string

const (
	ErrUnknown       ErrorType = "unknown"
	ErrCloneFailed   ErrorType = "cloneFailed"
	ErrFetchFailed   ErrorType = "fetchFailed"
	ErrInstallFailed ErrorType = "installFailed"
	ErrScriptFailed  ErrorType = "scriptFailed"
	ErrPackageFailed ErrorType = "packageFailed"
)

// ExtensionError is a failure attached to one extension change. Script is set only for
// scriptFailed.
type ExtensionError struct {
	Type   ErrorType `json:"type"`
	Script string    `json:"script,omitempty"`
	Err    string    `json:"err"`
}

func NewError(t ErrorType, err string) ExtensionError {
	return ExtensionError{Type: t, Err: err}
}

func ScriptFailed(script, err string) ExtensionError {
	return ExtensionError{Type: ErrScriptFailed, Script: script, Err: err}
}

// UnknownError wraps an unexpected Go error.
func UnknownError(err error) ExtensionError {
	return ExtensionError{Type: ErrUnknown, Err: fmt.Sprint(err)}
}

// WarningType tags an ExtensionWarning.
type WarningType string

const (
	WarnInvalidAPILevel     WarningType = "invalidApiLevel"
	WarnInvalidID           WarningType = "invalidId"
	WarnIrregularVersion    WarningType = "irregularVersion"
	WarnSameOrLowerVersion  WarningType = "sameOrLowerVersion"
	WarnNoOwnersSpecified   WarningType = "noOwnersSpecified"
	WarnRepositoryChanged   WarningType = "repositoryChanged"
	WarnBuildConfigChanged  WarningType = "buildConfigChanged"
	WarnAuthorNotInOwners   WarningType = "authorNotInOwners"
	WarnOwnersChanged       WarningType = "ownersChanged"
	WarnAuthorAddedToOwners WarningType = "authorAddedToOwners"
)

// ExtensionWarning is a non-blocking finding attached to one extension change.
// Which payload fields are meaningful depends on Type:
//   - invalidApiLevel: APILevel (nil when the manifest has none)
//   - invalidId: Value
//   - irregularVersion: Value (nil when the manifest has no version)
//   - sameOrLowerVersion: OldVersion, NewVersion
type ExtensionWarning struct {
	Type       WarningType
	Value      *string
	APILevel   *float64
	OldVersion string
	NewVersion string
}

func Warning(t WarningType) ExtensionWarning {
	return ExtensionWarning{Type: t}
}

func InvalidAPILevel(level *float64) ExtensionWarning {
	return ExtensionWarning{Type: WarnInvalidAPILevel, APILevel: level}
}

func InvalidID(id string) ExtensionWarning {
	return ExtensionWarning{Type: WarnInvalidID, Value: &id}
}

func IrregularVersion(version *string) ExtensionWarning {
	return ExtensionWarning{Type: WarnIrregularVersion, Value: version}
}

func SameOrLowerVersion(oldVersion, newVersion string) ExtensionWarning {
	return ExtensionWarning{Type: WarnSameOrLowerVersion, OldVersion: oldVersion, NewVersion: newVersion}
}

type warningJSON struct {
	Type       WarningType     `json:"type"`
	Value      json.RawMessage `json:"value,omitempty"`
	OldVersion string          `json:"oldVersion,omitempty"`
	NewVersion string          `json:"newVersion,omitempty"`
}

// MarshalJSON writes the warning with a single "value" field whose type depends on Type.
func (w ExtensionWarning) MarshalJSON() ([]byte, error) {
	out := warningJSON{Type: w.Type, OldVersion: w.OldVersion, NewVersion: w.NewVersion}
	var value any
	switch {
	case w.Type == WarnInvalidAPILevel && w.APILevel != nil:
		value = *w.APILevel
	case w.Value != nil:
		value = *w.Value
	}
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}
	return json.Marshal(out)
}

func (w *ExtensionWarning) UnmarshalJSON(data []byte) error {
	var in warningJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*w = ExtensionWarning{Type: in.Type, OldVersion: in.OldVersion, NewVersion: in.NewVersion}
	if len(in.Value) == 0 || string(in.Value) == "null" {
		return nil
	}
	if in.Type == WarnInvalidAPILevel {
		var level float64
		if err := json.Unmarshal(in.Value, &level); err != nil {
			return fmt.Errorf("invalidApiLevel value: %w", err)
		}
		w.APILevel = &level
		return nil
	}
	var s string
	if err := json.Unmarshal(in.Value, &s); err != nil {
		return fmt.Errorf("%s value: %w", in.Type, err)
	}
	w.Value = &s
	return nil
}

// RunWarningType tags a RunWarning.
type RunWarningType string

const (
	RunWarnUnknown       RunWarningType = "unknown"
	RunWarnMissingAuthor RunWarningType = "missingAuthor"
)

// RunWarning is a non-blocking finding about the run as a whole.
type RunWarning struct {
	Type RunWarningType `json:"type"`
}

// RunErrorType tags a RunError.
type RunErrorType string

const (
	RunErrParseManifestFailed RunErrorType = "parseManifestFailed"
	RunErrDeleteChangeFailed  RunErrorType = "deleteChangeFailed"
)

// RunError is a failure that does not belong to a single change. Ext is set for
// parseManifestFailed.
type RunError struct {
	Type RunErrorType `json:"type"`
	Ext  string       `json:"ext,omitempty"`
	Err  string       `json:"err"`
}
