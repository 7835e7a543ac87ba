// Package brand provides centralized branding constants for Linkage.
// Keeping identity strings in one place makes forks and renames cheap.
package brand

import (
	"os"
	"path/filepath"
)

const (
	Name        = "Linkage"
	LowerName   = "linkage"
	Vendor      = "BitJerkers not incorporated"
	Description = "An open-source VPN manager."
	Repository  = "https://github.com/bitjerkers/linkage"

	ConfigEnvPrefix  = "LINKAGE"
	DefaultConfigDir = "/etc/linkage"
	ConfigFileName   = "linkage.hcl"
	BinaryName       = "linkage"
)

// Version is set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// UserAgent returns a User-Agent string for HTTP requests.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetConfigDir returns the configuration directory, checking env vars first.
// Priority: LINKAGE_CONFIG_DIR > LINKAGE_PREFIX/etc > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "etc")
	}
	return DefaultConfigDir
}

// DefaultConfigPath returns the default path of the persisted configuration.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
