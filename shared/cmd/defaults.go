package cmd

import (
	"path/filepath"
	"runtime"

	"github.com/graphops/indexer-agent/shared/fileutil"
)

// DefaultDataDir is the default data directory to use for the databases and
// other persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := fileutil.HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "IndexerAgent")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Local", "IndexerAgent")
		} else {
			return filepath.Join(home, ".indexer-agent")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}
