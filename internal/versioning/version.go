// Package versioning checks the version an extension build reports against the version
// it had before.
package versioning

import (
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"git.home.luguber.info/inful/extrunner/internal/changes"
)

// Only plain MAJOR.MINOR.PATCH is regular; pre-release and build metadata are not.
var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// Parse returns the version when it is a regular MAJOR.MINOR.PATCH string.
func Parse(raw string) (*semver.Version, bool) {
	m := versionPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	var parts [3]uint64
	for i := range parts {
		n, err := strconv.ParseUint(m[i+1], 10, 64)
		if err != nil {
			return nil, false
		}
		parts[i] = n
	}
	return semver.New(parts[0], parts[1], parts[2], "", ""), true
}

// GreaterThan reports whether newVersion is strictly greater than oldVersion.
func GreaterThan(newVersion, oldVersion *semver.Version) bool {
	return newVersion.GreaterThan(oldVersion)
}

// Analyze returns the version warnings for one built extension. newVersion is what the
// build reported and oldVersion what the build state recorded before; either may be nil.
// Only updates are compared against the old version.
func Analyze(kind changes.Kind, oldVersion, newVersion *string) []changes.ExtensionWarning {
	var warnings []changes.ExtensionWarning

	if oldVersion != nil && newVersion != nil && *oldVersion == *newVersion {
		warnings = append(warnings, changes.SameOrLowerVersion(*oldVersion, *newVersion))
	}

	var parsedNew *semver.Version
	if newVersion != nil {
		parsedNew, _ = Parse(*newVersion)
	}
	if parsedNew == nil {
		return append(warnings, changes.IrregularVersion(newVersion))
	}

	if kind == changes.KindUpdate && oldVersion != nil {
		if parsedOld, ok := Parse(*oldVersion); ok && !GreaterThan(parsedNew, parsedOld) {
			warnings = append(warnings, changes.SameOrLowerVersion(*oldVersion, *newVersion))
		}
	}
	return warnings
}
