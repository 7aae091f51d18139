package testdb

import (
	"os"
	"strings"
)

// EnvDatabaseURL names the variable holding a disposable database URL.
const EnvDatabaseURL = "STUDYCACHE_TEST_DATABASE_URL"

// ciVars are set by common CI systems.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// DatabaseURL returns the configured test database URL, or "".
func DatabaseURL() string {
	return strings.TrimSpace(os.Getenv(EnvDatabaseURL))
}

// IsCI reports whether the tests run under a CI system.
func IsCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
