package version

// Version is the current version of the p2pshare CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/myooken/p2pShareDisplay/internal/version.Version=v1.0.0'"
var Version = "dev"
