// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for the analyzer binary. The application name, build timestamp, Git commit hash
// and semantic version are embedded at compile time using linker flags, e.g.
//
//	go build -ldflags "-X tempokey/pkg/build.buildName=tempokey -X tempokey/pkg/build.buildVersion=v0.3.0"
package build

import (
	"errors"
	"fmt"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// ErrMissingFlags reports a development build without linker metadata.
var ErrMissingFlags = errors.New("build metadata not provided via -ldflags")

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "tempokey",
		Description: "Real-time tempo and key analyzer for system audio",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies build information from the ldflags variables into the
// returned flags. Missing values keep their development defaults and the
// names of the missing flags are reported through ErrMissingFlags, so callers
// may log and continue.
func Initialize() error {
	var missing []string
	set := func(dst *string, v, name string) {
		if v == "" {
			missing = append(missing, name)
			return
		}
		*dst = v
	}
	set(&buildFlags.Name, buildName, "buildName")
	set(&buildFlags.Time, buildTime, "buildTime")
	set(&buildFlags.Commit, buildCommit, "buildCommit")
	set(&buildFlags.Version, buildVersion, "buildVersion")

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingFlags, missing)
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String renders a one-line version banner.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
