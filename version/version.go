package version

import "fmt"

// these values are set during build via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var FullVersion = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
