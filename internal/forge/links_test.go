package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRepository(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   Repository
		wantOK bool
	}{
		{"github with .git", "https://github.com/moonlight-mod/extensions.git", Repository{ForgeGitHub, "moonlight-mod", "extensions"}, true},
		{"github without .git", "https://github.com/org/repo", Repository{ForgeGitHub, "org", "repo"}, true},
		{"github deeper path", "https://github.com/org/repo/tree/main", Repository{ForgeGitHub, "org", "repo"}, true},
		{"other forge", "https://codeberg.org/org/repo.git", Repository{}, false},
		{"garbage", "::", Repository{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRepository(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinks(t *testing.T) {
	repo := "https://github.com/org/repo.git"
	assert.Equal(t, "https://github.com/org/repo/commit/abc", CommitLink(repo, "abc"))
	assert.Equal(t, "https://github.com/org/repo/tree/abc", TreeLink(repo, "abc"))
	assert.Equal(t, "https://github.com/org/repo/compare/abc...def", CompareLink(repo, "abc", "def"))

	other := "https://gitlab.com/org/repo.git"
	assert.Empty(t, CommitLink(other, "abc"))
	assert.Empty(t, TreeLink(other, "abc"))
	assert.Empty(t, CompareLink(other, "abc", "def"))
}

func TestMaybeWrapLink(t *testing.T) {
	assert.Equal(t, "[abc](https://x)", MaybeWrapLink("abc", "https://x"))
	assert.Equal(t, "abc", MaybeWrapLink("abc", ""))
}
