// ABOUTME: Build and product identification
// ABOUTME: Version is overridden at link time with -ldflags "-X"
package version

// Version is the release version, set by the build
var Version = "0.1.0"

const (
	// Product is the name reported in the CLI and to remote responders
	Product = "PureTone"

	// Manufacturer identifies the publisher
	Manufacturer = "Harper Reed"
)

// String returns the product name with its version
func String() string {
	return Product + " " + Version
}
