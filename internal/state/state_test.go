package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/extrunner/internal/manifest"
)

func ptr(s string) *string { return &s }

func sample() BuildState {
	return BuildState{
		"foo": {
			Version: ptr("1.0.0"),
			Manifest: manifest.BuildManifest{
				Repository: "https://github.com/o/foo",
				Commit:     "aaaa",
				Owners:     []string{"alice", "id:42"},
			},
		},
		"bar": {
			Manifest: manifest.BuildManifest{
				Repository: "https://github.com/o/bar",
				Commit:     "bbbb",
				Owners:     []string{},
				Scripts:    []string{"build", "pack"},
				Output:     "out/bar",
			},
		},
	}
}

func TestLoad_Missing(t *testing.T) {
	bs, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Empty(t, bs)
	assert.NotNil(t, bs)
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(filepath.Join(dir, "dist"))
	want := sample()

	require.NoError(t, want.Save(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(first), "\n  \"bar\": {")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Nil(t, got["foo"].Manifest.Scripts, "absent list stays absent")
	assert.NotNil(t, got["bar"].Manifest.Owners, "empty list stays present")

	require.NoError(t, got.Save(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.NoFileExists(t, path+".tmp")
}

func TestClone(t *testing.T) {
	orig := sample()
	c := orig.Clone()
	assert.Equal(t, orig, c)

	*c["foo"].Version = "9.9.9"
	c["foo"].Manifest.Owners[0] = "mallory"
	delete(c, "bar")

	assert.Equal(t, "1.0.0", *orig["foo"].Version)
	assert.Equal(t, "alice", orig["foo"].Manifest.Owners[0])
	assert.Contains(t, orig, "bar")
}

func TestIDs(t *testing.T) {
	assert.Equal(t, []string{"bar", "foo"}, sample().IDs())
}
