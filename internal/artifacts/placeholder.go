package artifacts

import (
	"fmt"
	"strings"
	"time"
)

// PlaceholderPackage renders the payload shipped in place of a real package.
// It is deliberately not an installable archive.
func PlaceholderPackage(appName, packageID string, builtAt time.Time) []byte {
	var b strings.Builder
	b.WriteString("apkforge placeholder package\n")
	fmt.Fprintf(&b, "app: %s\n", appName)
	fmt.Fprintf(&b, "package: %s\n", packageID)
	fmt.Fprintf(&b, "built: %s\n", builtAt.UTC().Format(time.RFC3339))
	b.WriteString("\nThis file was produced by a simulated pipeline and cannot be installed.\n")
	return []byte(b.String())
}
