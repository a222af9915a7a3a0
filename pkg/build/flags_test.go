// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantMissing string
	}{
		{"missing name", "", "2026-01-02", "abc123", "v0.3.0", "buildName"},
		{"missing time", "tk", "", "abc123", "v0.3.0", "buildTime"},
		{"missing commit", "tk", "2026-01-02", "", "v0.3.0", "buildCommit"},
		{"missing version", "tk", "2026-01-02", "abc123", "", "buildVersion"},
		{"complete", "tk", "2026-01-02", "abc123", "v0.3.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*buildFlags = origFlags
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantMissing != "" {
				if !errors.Is(err, ErrMissingFlags) {
					t.Fatalf("Initialize() error = %v, want ErrMissingFlags", err)
				}
				if !strings.Contains(err.Error(), tt.wantMissing) {
					t.Errorf("Initialize() error = %v, want mention of %s", err, tt.wantMissing)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			f := GetBuildFlags()
			if f.Name != tt.buildName || f.Time != tt.buildTime || f.Commit != tt.buildCommit || f.Version != tt.buildVer {
				t.Errorf("GetBuildFlags() = %+v", f)
			}
		})
	}
}

func TestMissingFlagsKeepDefaults(t *testing.T) {
	*buildFlags = origFlags
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	_ = Initialize()

	if got := GetBuildFlags().Version; got != "dev" {
		t.Errorf("Version = %q, want dev", got)
	}
	if !strings.HasPrefix(GetBuildFlags().String(), "tempokey dev") {
		t.Errorf("String() = %q", GetBuildFlags().String())
	}
}
