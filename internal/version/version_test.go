package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestCurrentIsSemverWithoutVPrefix(t *testing.T) {
	semver := regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
	if !semver.MatchString(Current) {
		t.Fatalf("Current=%q must match <major>.<minor>.<patch>", Current)
	}
	if strings.HasPrefix(Current, "v") {
		t.Fatalf("Current=%q must not carry a v prefix", Current)
	}
}
