package changes

import (
	"slices"

	"git.home.luguber.info/inful/extrunner/internal/manifest"
)

// AuthorCanEdit reports whether author may change an extension with manifest m. A
// manifest without owners is open to anyone. Reviewers may edit everything. Owners are
// matched by username or by "id:<account id>".
func AuthorCanEdit(m manifest.BuildManifest, author Author) bool {
	if m.Owners == nil || manifest.IsReviewer(author.ID) {
		return true
	}
	return slices.ContainsFunc(m.Owners, func(owner string) bool {
		return owner == author.Username || owner == "id:"+author.ID
	})
}
