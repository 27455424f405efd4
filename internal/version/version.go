// Package version carries build metadata set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/trackrunner/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag of the build.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for the named command.
func String(command string) string {
	return fmt.Sprintf("%s %s (%s, built %s)", command, Version, GitSHA, BuildTime)
}
