package app

// Version is the semantic version of obskit, set at build time via -ldflags.
var Version = "dev"

// Build is the git commit hash or build identifier, set at build time via -ldflags.
var Build = ""

// VersionString renders Version and Build for display.
func VersionString() string {
	if Build == "" {
		return Version
	}
	return Version + " (" + Build + ")"
}
