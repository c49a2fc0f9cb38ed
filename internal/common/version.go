package common

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X github.com/filippobounous/fbinv/internal/common.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// GetVersion returns the application version.
func GetVersion() string { return Version }

// GetGitCommit returns the git commit the binary was built from.
func GetGitCommit() string { return GitCommit }

// GetBuildTime returns the build timestamp.
func GetBuildTime() string { return BuildTime }
