// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X arm-ai/internal/version.Version=v1.2.0" ./cmd/armai
package version

import "fmt"

var (
	// Version is the semantic version of the binary.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info renders the build metadata one field per line.
func Info() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}
