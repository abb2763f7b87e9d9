package group

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := Instructions{Repository: "https://x/r", Commit: "aa", Scripts: []string{"build"}, Outputs: map[string]string{"foo": "dist/foo"}}
	require.NoError(t, WriteInstructions(dir, in))

	got, err := ReadInstructions(dir)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestResultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteResult(dir, EmptyResult()))
	raw, err := os.ReadFile(filepath.Join(dir, ResultFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":[],"manifests":{}}`, string(raw))

	r, err := ReadResult(dir)
	require.NoError(t, err)
	assert.False(t, r.Failed())

	r.AddError(ResultError{Type: ResultScriptFailed, Script: "build", Err: "exit 1"})
	require.NoError(t, WriteResult(dir, r))
	back, err := ReadResult(dir)
	require.NoError(t, err)
	assert.True(t, back.Failed())
	assert.Equal(t, r.Errors, back.Errors)
}

func TestParseResult_RejectsTampering(t *testing.T) {
	for name, body := range map[string]string{
		"not json":           `nope`,
		"unknown top field":  `{"errors":[],"manifests":{},"buildState":{}}`,
		"unknown error type": `{"errors":[{"type":"rootkit","err":"x"}],"manifests":{}}`,
		"error extra field":  `{"errors":[{"type":"fetchFailed","err":"x","ext":"foo"}],"manifests":{}}`,
		"wrong types":        `{"errors":{},"manifests":[]}`,
		"missing errors":     `{"manifests":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResult([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResult)
		})
	}

	big := `{"errors":[],"manifests":{},"x":"` + strings.Repeat("a", MaxResultSize) + `"}`
	_, err := ParseResult([]byte(big))
	require.ErrorIs(t, err, ErrInvalidResult)
}

func TestParseResult_ToleratesExtraManifestFields(t *testing.T) {
	r, err := ParseResult([]byte(`{"errors":[],"manifests":{"foo":{"id":"foo","version":"1.0.0","apiLevel":2,"author":"x"}}}`))
	require.NoError(t, err)
	require.Contains(t, r.Manifests, "foo")
	assert.Equal(t, "1.0.0", *r.Manifests["foo"].Version)
}

func TestReadResult_Missing(t *testing.T) {
	_, err := ReadResult(t.TempDir())
	require.ErrorIs(t, err, ErrInvalidResult)
}
