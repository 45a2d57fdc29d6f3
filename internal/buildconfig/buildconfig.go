// Package buildconfig exposes version information injected at link time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/junctree/internal/buildconfig.version=v0.3.0 \
//	  -X github.com/Harshitk-cp/junctree/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo returns version and commit for health and stats responses.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}

// String formats the build as "version (commit)".
func String() string {
	return fmt.Sprintf("%s (%s)", version, commit)
}
