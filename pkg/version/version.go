// Package version exposes the build version string.
package version

// Version is the application version, overridable at build time via
// -ldflags "-X github.com/acurth/audioguia/pkg/version.Version=...".
var Version = "0.3.0-dev"
