package app

// Build metadata injected at link time via -ldflags
var (
	Version   string
	GitBranch string
	GitTag    string
	GitHash   string
	BuildUser string
	BuildDate string
)
