//go:build !unit
// +build !unit

package version

import (
	"strings"
	"testing"
)

// TestFlagEmpty fails if version.Flag is not empty. This enforces an empty
// flag on the master branch.
func TestFlagEmpty(t *testing.T) {
	if len(Flag) > 0 {
		t.Fatalf("Version Flag is not empty: %s", Flag)
	}
}

func TestVersionIsSemver(t *testing.T) {
	parts := strings.SplitN(strings.SplitN(Version, "-", 2)[0], ".", 3)
	if len(parts) != 3 {
		t.Fatalf("Version should be major.minor.patch, got %s", Version)
	}
}
