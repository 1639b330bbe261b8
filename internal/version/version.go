// Package version carries the release version stamped into the binary.
package version

// Current is the semantic version of this build, without a "v" prefix.
const Current = "0.4.0"
