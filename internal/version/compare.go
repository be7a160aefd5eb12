// ABOUTME: Semantic version comparison for session and responder builds
// ABOUTME: Wraps golang.org/x/mod/semver with tolerant input handling
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical returns v with the "v" prefix semver expects
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Valid reports whether v parses as a semantic version
func Valid(v string) bool {
	return semver.IsValid(canonical(v))
}

// IsNewer reports whether latest is newer than current
func IsNewer(latest, current string) bool {
	return semver.Compare(canonical(latest), canonical(current)) > 0
}

// Compatible reports whether two builds share a major version. Unparseable
// versions are treated as compatible so development builds can connect.
func Compatible(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	if !semver.IsValid(ca) || !semver.IsValid(cb) {
		return true
	}
	return semver.Major(ca) == semver.Major(cb)
}
