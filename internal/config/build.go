package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X zozbit-notify/internal/config.version=1.2.3 \
//	    -X zozbit-notify/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X zozbit-notify/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// Release returns the identifier reported to the error tracker.
func (b BuildInfo) Release() string {
	if b.Commit == "" || b.Commit == "none" {
		return "zozbit-notify@" + b.Version
	}
	return "zozbit-notify@" + b.Version + "+" + b.Commit
}
