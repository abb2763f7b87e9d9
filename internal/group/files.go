package group

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/extrunner/internal/manifest"
)

// Names of the files and directories inside a group directory. The same names are used
// for the in-container mount points.
const (
	InstructionsFile = "state.json"
	ResultFile       = "result.json"
	SourceDir        = "source"
	OutputDir        = "output"
	ManifestFile     = "manifest.json"
	ArchiveExt       = ".asar"
)

// MaxResultSize bounds how much of an untrusted result file is read.
const MaxResultSize = 8 << 20

// ErrInvalidResult wraps every failure to accept a group result.
var ErrInvalidResult = errors.New("invalid group result")

// Instructions is the group description handed to the sandbox.
type Instructions struct {
	Repository string            `json:"repository"`
	Commit     string            `json:"commit"`
	Scripts    []string          `json:"scripts"`
	Outputs    map[string]string `json:"outputs"`
}

// ResultErrorType tags a ResultError.
type ResultErrorType string

const (
	ResultCloneFailed   ResultErrorType = "cloneFailed"
	ResultFetchFailed   ResultErrorType = "fetchFailed"
	ResultInstallFailed ResultErrorType = "installFailed"
	ResultScriptFailed  ResultErrorType = "scriptFailed"
	ResultPackageFailed ResultErrorType = "packageFailed"
)

// ResultError is a failure reported by the sandbox. Script is set for scriptFailed and
// Ext for packageFailed.
type ResultError struct {
	Type   ResultErrorType `json:"type"`
	Script string          `json:"script,omitempty"`
	Ext    string          `json:"ext,omitempty"`
	Err    string          `json:"err"`
}

// Result is what the sandbox reports back. It is untrusted until ReadResult accepted it.
type Result struct {
	Errors    []ResultError                         `json:"errors"`
	Manifests map[string]manifest.ExtensionManifest `json:"manifests"`
}

// EmptyResult is the result file a group starts with.
func EmptyResult() *Result {
	return &Result{Errors: []ResultError{}, Manifests: map[string]manifest.ExtensionManifest{}}
}

// Failed reports whether the result carries errors.
func (r *Result) Failed() bool { return len(r.Errors) > 0 }

// AddError appends an error.
func (r *Result) AddError(e ResultError) { r.Errors = append(r.Errors, e) }

// WriteInstructions writes the instructions file into dir.
func WriteInstructions(dir string, in Instructions) error {
	return writeJSON(filepath.Join(dir, InstructionsFile), in)
}

// ReadInstructions reads the instructions file from dir.
func ReadInstructions(dir string) (Instructions, error) {
	var in Instructions
	data, err := os.ReadFile(filepath.Join(dir, InstructionsFile))
	if err != nil {
		return in, fmt.Errorf("reading group instructions: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parsing group instructions: %w", err)
	}
	return in, nil
}

// WriteResult writes r as the result file in dir.
func WriteResult(dir string, r *Result) error {
	return writeJSON(filepath.Join(dir, ResultFile), r)
}

// ReadResult reads and validates the result file in dir. Every failure wraps ErrInvalidResult.
func ReadResult(dir string) (*Result, error) {
	f, err := os.Open(filepath.Join(dir, ResultFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxResultSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	return ParseResult(data)
}

// ParseResult validates raw result JSON against the result schema, then decodes it.
func ParseResult(data []byte) (*Result, error) {
	if len(data) > MaxResultSize {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidResult, MaxResultSize)
	}
	if err := manifest.Validate(manifest.SchemaGroupResult, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	r := EmptyResult()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	if r.Errors == nil {
		r.Errors = []ResultError{}
	}
	if r.Manifests == nil {
		r.Manifests = map[string]manifest.ExtensionManifest{}
	}
	return r, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
