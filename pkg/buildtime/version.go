// Package buildtime tells the version this tycho is built as.
//
// VERSION and revision are written by the release build.
package buildtime

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

//go:embed revision
var revision string

func Version() string {
	return strings.TrimSpace(version)
}

func Revision() string {
	return strings.TrimSpace(revision)
}

// VersionString is like "v0.1.0 (commit: 0123abc)".
func VersionString() string {
	return Version() + " (commit: " + Revision() + ")"
}
