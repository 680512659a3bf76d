// Package version provides build and version information for SceneReel.
package version

// Version is the current release version of SceneReel.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/SceneReel/internal/version.Version=x.y.z"
var Version = "0.3.0"
