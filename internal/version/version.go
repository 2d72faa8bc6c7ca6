// Package version holds build information for the mast CLI. The variables can
// be set at build time with -ldflags "-X ...".
package version

import (
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is the commit the binary was built from, if known.
	GitCommit = ""

	// BuildDate is an ISO-8601 build timestamp, if known.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Info is the machine-readable build description.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Format    string `json:"format"`
}

// Current returns the build description. format is the artifact format
// version the binary reads and writes.
func Current(format string) Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate, Format: format}
}

// Pretty colours the major, minor and patch components of Version. Anything
// that is not a dotted triple is returned unchanged.
func Pretty() string {
	core, suffix, _ := strings.Cut(Version, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}
