package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// Plugin versions are loosely semver ("5.3", "2.4.10", "v1.0"), so they are
// parsed leniently. When either side does not parse, the trimmed strings are
// compared lexicographically.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newVersion = strings.TrimSpace(newVersion)
	oldVersion = strings.TrimSpace(oldVersion)

	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// Differs reports whether two version strings name different releases.
// "5.3" and "5.3.0" are the same release.
func Differs(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	av, errA := semver.NewVersion(a)
	bv, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a != b
	}
	return !av.Equal(bv)
}
