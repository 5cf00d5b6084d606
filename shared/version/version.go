// Package version returns the version string for the currently running
// process, stamped at build time through linker options.
package version

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

var (
	gitCommit = "Local build"
	buildDate = "Moments ago"
	gitTag    = "Unknown"
)

// GetVersion returns the full version string of this build, including the
// time at which it was produced.
func GetVersion() string {
	if buildDate == "{DATE}" {
		buildDate = time.Now().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s. Built at: %s", GetBuildData(), buildDate)
}

// GetBuildData returns the git tag and commit of the current build. Local
// builds fall back to asking git directly.
func GetBuildData() string {
	if gitCommit == "{STABLE_GIT_COMMIT}" {
		commit, err := exec.Command("git", "rev-parse", "HEAD").Output()
		if err != nil {
			log.Println(err)
		} else {
			gitCommit = strings.TrimRight(string(commit), "\r\n")
		}
	}
	return fmt.Sprintf("IndexerAgent/%s/%s", gitTag, gitCommit)
}
