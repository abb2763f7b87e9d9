// Package report renders the run summary as markdown for CI step summaries and as HTML.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/forge"
	"git.home.luguber.info/inful/extrunner/internal/manifest"
)

// File names written next to each other in the work directory.
const (
	MarkdownFile = "summary.md"
	HTMLFile     = "summary.html"
)

const (
	warningMergeMessage = "Review all warnings before merging."
	errorMergeMessage   = "Do not merge."
)

var modeLines = map[config.Mode][2]string{
	config.ModePush: {":shipit:", "push"},
	config.ModePR:   {":hammer:", "PR"},
}

var changeLines = map[changes.Kind][2]string{
	changes.KindAdd:           {":new:", "New extension."},
	changes.KindUpdate:        {":repeat:", "Updating extension."},
	changes.KindUpdateNoBuild: {":repeat_one:", "Updating build manifest."},
	changes.KindRemove:        {":put_litter_in_its_place:", "Deleting extension."},
}

var runWarningLines = map[changes.RunWarningType]string{
	changes.RunWarnUnknown:       "**Unknown warning.** Check the build log for more info.",
	changes.RunWarnMissingAuthor: "**Author context is missing.** Check that the build workflows are correct.",
}

var runErrorLines = map[changes.RunErrorType]string{
	changes.RunErrParseManifestFailed: "**Build manifests failed to parse.** Check that all manifests are valid.",
	changes.RunErrDeleteChangeFailed:  "**Failed to delete extensions.** Check the build log for more info.",
}

const brokenRepository = "The extension repository might be broken, or this might be a bug in the runner."

var errorLines = map[changes.ErrorType]string{
	changes.ErrUnknown:       "**Unknown error.** Check the build log for more info.",
	changes.ErrCloneFailed:   "**Clone failed.** Check that the target Git forge is online.",
	changes.ErrFetchFailed:   "**Fetch failed.** Check that the lockfile is up to date. " + brokenRepository,
	changes.ErrInstallFailed: "**Install failed.** Check that the lockfile is up to date. " + brokenRepository,
	changes.ErrPackageFailed: "**Package failed.** Check that the output path is correct. This might be a bug in the runner.",
}

var fixedWarningLines = map[changes.WarningType]string{
	changes.WarnNoOwnersSpecified:   "**No owners specified.** This should be set to prevent extension hijacking.",
	changes.WarnRepositoryChanged:   "**Repository changed.** Check that the new repository is not malicious.",
	changes.WarnBuildConfigChanged:  "**Build config changed.** Recheck the build script and output artifact.",
	changes.WarnAuthorNotInOwners:   "**Author not in owners.** Check that the author has permission to update this extension.",
	changes.WarnOwnersChanged:       "**Owners changed.** Check that all owners should be able to update this extension.",
	changes.WarnAuthorAddedToOwners: "**Author added themselves to owners.** Check that the author has permission to adopt this extension.",
}

// Summary renders the markdown summary of a run.
func Summary(rs *changes.RunnerState, mode config.Mode) string {
	var b strings.Builder
	b.WriteString("# Extensions state\n\n")

	if line, ok := modeLines[mode]; ok {
		fmt.Fprintf(&b, "- %s Running in %s mode.\n", line[0], line[1])
		if a := rs.Author; a != nil {
			if a.PR != "" {
				fmt.Fprintf(&b, "  - Running on behalf of `%s` for PR %s.\n", a.Username, a.PR)
			} else {
				fmt.Fprintf(&b, "  - Running on behalf of `%s`.\n", a.Username)
			}
		}
	}

	writeCounts(&b, rs.Counts(), mode)

	if n := len(rs.Warnings); n > 0 {
		fmt.Fprintf(&b, "- :warning: Runner completed with **%d warning(s).**\n", n)
		for _, w := range firstOfType(rs.Warnings, func(w changes.RunWarning) changes.RunWarningType { return w.Type }) {
			writeItem(&b, runWarningLines[w.Type])
		}
	}
	if n := len(rs.Errors); n > 0 {
		fmt.Fprintf(&b, "- :x: Runner completed with **%d error(s).**\n", n)
		for _, e := range firstOfType(rs.Errors, func(e changes.RunError) changes.RunErrorType { return e.Type }) {
			writeItem(&b, runErrorLines[e.Type])
		}
	}
	b.WriteString("\n")

	for _, e := range rs.Entries() {
		writeChange(&b, rs, e.ID, e.Change, mode)
	}

	return strings.TrimSpace(b.String()) + "\n"
}

func writeCounts(b *strings.Builder, n changes.Counts, mode config.Mode) {
	if n.Total == 0 {
		b.WriteString("- No extension changes.\n")
		return
	}
	fmt.Fprintf(b, "- Processed %d extension change(s).\n", n.Total)
	if n.Success > 0 {
		fmt.Fprintf(b, "  - :white_check_mark: %d extension(s) built successfully.\n", n.Success)
	}
	if n.Warnings > 0 {
		fmt.Fprintf(b, "  - :warning: %d extension(s) **built with warnings**.%s\n", n.Warnings, mergeHint(mode, warningMergeMessage))
	}
	if n.Failed > 0 {
		fmt.Fprintf(b, "  - :x: %d extension(s) **failed to build**.%s\n", n.Failed, mergeHint(mode, errorMergeMessage))
	}
}

func mergeHint(mode config.Mode, msg string) string {
	if mode == config.ModePR {
		return " " + msg
	}
	return ""
}

func writeItem(b *strings.Builder, text string) {
	if text != "" {
		b.WriteString("  - " + text + "\n")
	}
}

func writeChange(b *strings.Builder, rs *changes.RunnerState, ext string, c *changes.Change, mode config.Mode) {
	fmt.Fprintf(b, "## %s\n\n", ext)
	line := changeLines[c.Type]
	fmt.Fprintf(b, "- %s %s\n", line[0], line[1])

	switch c.Type {
	case changes.KindAdd, changes.KindRemove:
		m := c.NewManifest
		if c.Type == changes.KindRemove {
			m = c.OldManifest
		}
		if m != nil {
			fmt.Fprintf(b, "- Repository: <%s>\n", m.Repository)
			fmt.Fprintf(b, "- Commit: %s\n", formatCommit(m.Repository, m.Commit, ""))
		}
	default:
		if c.OldManifest != nil && c.NewManifest != nil {
			writeUpdate(b, rs, ext, *c.OldManifest, *c.NewManifest)
		}
	}

	switch c.Outcome() {
	case changes.OutcomeSuccess:
		b.WriteString("- :white_check_mark: Built successfully.\n")
	case changes.OutcomeWarnings:
		fmt.Fprintf(b, "- :warning: **Built with warnings.**%s\n", mergeHint(mode, warningMergeMessage))
	default:
		fmt.Fprintf(b, "- :x: **Failed to build.**%s\n", mergeHint(mode, errorMergeMessage))
	}

	for _, w := range firstOfType(c.Warnings, func(w changes.ExtensionWarning) changes.WarningType { return w.Type }) {
		writeItem(b, warningLine(ext, w))
	}
	for _, e := range firstOfType(c.Errors, func(e changes.ExtensionError) changes.ErrorType { return e.Type }) {
		writeItem(b, errorLine(e))
	}
	b.WriteString("\n")
}

func writeUpdate(b *strings.Builder, rs *changes.RunnerState, ext string, oldM, newM manifest.BuildManifest) {
	sameRepo := oldM.Repository == newM.Repository
	if sameRepo {
		fmt.Fprintf(b, "- Repository: <%s>\n", newM.Repository)
	} else {
		fmt.Fprintf(b, "- Old repository: <%s>\n", oldM.Repository)
		fmt.Fprintf(b, "- New repository: <%s>\n", newM.Repository)
	}

	if oldM.Commit != newM.Commit {
		fmt.Fprintf(b, "- Old commit: %s\n", formatCommit(oldM.Repository, oldM.Commit, ""))
		// The diff link only makes sense within one repository.
		diffFrom := ""
		if sameRepo {
			diffFrom = oldM.Commit
		}
		fmt.Fprintf(b, "- New commit: %s\n", formatCommit(newM.Repository, newM.Commit, diffFrom))
	} else {
		fmt.Fprintf(b, "- Commit: %s\n", formatCommit(newM.Repository, newM.Commit, ""))
	}

	cur, ok := rs.BuildState[ext]
	if !ok || cur.Version == nil {
		return
	}
	if prev, ok := rs.OldBuildState[ext]; ok && prev.Version != nil {
		fmt.Fprintf(b, "- Old version: %s\n", *prev.Version)
		fmt.Fprintf(b, "- New version: %s\n", *cur.Version)
	} else {
		fmt.Fprintf(b, "- Version: %s\n", *cur.Version)
	}
}

func formatCommit(repository, commit, oldCommit string) string {
	out := forge.MaybeWrapLink(commit, forge.CommitLink(repository, commit))
	if tree := forge.TreeLink(repository, commit); tree != "" {
		out += " ([Tree](" + tree + "))"
	}
	if oldCommit != "" {
		if diff := forge.CompareLink(repository, oldCommit, commit); diff != "" {
			out += " ([Diff](" + diff + "))"
		}
	}
	return out
}

func warningLine(ext string, w changes.ExtensionWarning) string {
	switch w.Type {
	case changes.WarnInvalidAPILevel:
		got := "none"
		if w.APILevel != nil {
			got = strconv.FormatFloat(*w.APILevel, 'f', -1, 64)
		}
		return fmt.Sprintf("**Invalid API level** (expected %d, got %s). This extension will not load in moonlight.", manifest.CurrentAPILevel, got)
	case changes.WarnInvalidID:
		return fmt.Sprintf("**Mismatched IDs** (expected %s, got %s). Ensure the same ID is used across all manifests.", ext, deref(w.Value))
	case changes.WarnIrregularVersion:
		if w.Value == nil {
			return "**Missing version.** Updates may fail in Moonbase."
		}
		return fmt.Sprintf("**Irregular version** (got %s). This does not currently cause issues, but using a standard version format may be required in the future.", *w.Value)
	case changes.WarnSameOrLowerVersion:
		if w.NewVersion == w.OldVersion {
			return "**Same version.** Updates will fail in Moonbase."
		}
		return "**Downgraded version.** This does not currently cause issues, but always incrementing versions may be required in the future."
	default:
		return fixedWarningLines[w.Type]
	}
}

func errorLine(e changes.ExtensionError) string {
	if e.Type == changes.ErrScriptFailed {
		return fmt.Sprintf("**Running script %s failed.** %s", e.Script, brokenRepository)
	}
	return errorLines[e.Type]
}

func deref(s *string) string {
	if s == nil {
		return "undefined"
	}
	return *s
}

// firstOfType keeps the first record of each type, in order.
func firstOfType[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]bool, len(items))
	var out []T
	for _, it := range items {
		k := key(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

// Write renders the summary into dir as markdown and HTML.
func Write(dir string, rs *changes.RunnerState, mode config.Mode) error {
	md := Summary(rs, mode)
	if err := os.WriteFile(filepath.Join(dir, MarkdownFile), []byte(md), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	html, err := HTML([]byte(md))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, HTMLFile), html, 0o644); err != nil {
		return fmt.Errorf("failed to write html summary: %w", err)
	}
	return nil
}
