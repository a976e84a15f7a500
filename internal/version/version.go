package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Library identifies this build in written MCAP headers. The mcap writer
// records it after its own identifier, as "mcap go vX.Y.Z; atritec/<version>".
func Library() string {
	return "atritec/" + Version
}
