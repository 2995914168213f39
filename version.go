/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package genericstore

import "github.com/suparena/genericstore/registry"

// Version information set by build flags
var (
	// Version is the semantic version of genericstore
	Version = "0.1.0"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build date (set by build flags)
	BuildDate = "unknown"
)

// VersionInfo contains version information
type VersionInfo struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"gitCommit"`
	BuildDate string   `json:"buildDate"`
	Providers []string `json:"providers"`
}

// GetVersionInfo returns the version information and the provider names
// linked into the binary.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		Providers: registry.Names(),
	}
}
