// Package sanitize provides safe filename handling for uploaded files.
package sanitize

import (
	"path/filepath"
	"strings"
)

// SecureFilename normalizes a client-supplied filename so it can be used
// as a path component under the storage home. Directory components and
// characters with special meaning on common filesystems are stripped;
// the result never escapes the directory it is joined to.
func SecureFilename(name string) string {
	// Clients may send Windows-style paths.
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"<", "_", ">", "_", ":", "_", "\"", "_",
		"|", "_", "?", "_", "*", "_", " ", "_",
	)
	base = replacer.Replace(base)
	base = strings.Trim(base, " .")
	return base
}
