// Package internal holds process-wide defaults shared by the config and
// share packages.
package internal

import (
	"log"
	"os"
	"path/filepath"
)

var (
	DefaultAppName    = "shareindex"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir   = filepath.Join(DefaultConfigPath, "cache")

	// DefaultListingDir holds the generated files.xml / files.xml.bz2.
	DefaultListingDir = filepath.Join(DefaultCacheDir, "listing")

	// DefaultStorageDBPath is the bookkeeping database for rescan/listing
	// cache state (see share/storage.go).
	DefaultStorageDBPath = filepath.Join(DefaultConfigPath, "shareindex.db")

	// DefaultStorageDriver names the database/sql driver used to open
	// DefaultStorageDBPath.
	DefaultStorageDriver = "libsql"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}
