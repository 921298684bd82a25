package migrate

import (
	"path/filepath"
	"strings"
)

// BootstrapVersion is the reserved version of a setup migration. Applying it
// is not announced on the output sink.
const BootstrapVersion = "00000000000000"

// ParseVersion extracts the version from a migration name of the form
// <version>_<description>. Hyphens inside the version are dropped, so
// "2024-01-01-120000_add_users" yields "20240101120000". A name without any
// "_" is rejected rather than taken whole as its own version, so a stray
// "0001" directory fails discovery instead of silently becoming a migration.
//
// Versions are compared as strings. That only orders correctly when every
// version has the same fixed-width, zero-padded layout; nothing here checks it.
func ParseVersion(name string) (string, error) {
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return "", &FormatError{Path: name}
	}
	version := strings.ReplaceAll(prefix, "-", "")
	if version == "" {
		return "", &FormatError{Path: name}
	}
	return version, nil
}

// VersionFromPath parses the version from the last element of path. Errors
// carry the full path.
func VersionFromPath(path string) (string, error) {
	version, err := ParseVersion(filepath.Base(path))
	if err != nil {
		return "", &FormatError{Path: path}
	}
	return version, nil
}
