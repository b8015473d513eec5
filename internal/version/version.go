// Package version describes the running build. The variables are set at
// build time with -ldflags "-X".
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

var (
	BuildDate    = "unknown"
	BuildVersion = "0.0.0"
	Commit       = "unknown"
)

// BaseVersion returns the major and minor part of BuildVersion as
// "vMAJOR.MINOR", or "unknown" if it is not a semantic version.
func BaseVersion() string {
	v, err := semver.NewVersion(BuildVersion)
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("v%d.%d", v.Major(), v.Minor())
}

func String() string {
	return fmt.Sprintf("dualdoc %s (%s) on %s", BuildVersion, Commit, BuildDate)
}
