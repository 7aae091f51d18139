// Package version holds the build-time version of the application.
package version

// Version is the running application version. Persisted cache entries are
// tagged with it, so bumping it invalidates everything written by older builds.
//
// Override at build time with:
//
//	go build -ldflags "-X github.com/phrazzld/studycache/internal/version.Version=1.2.3"
var Version = "1.0.0"
