// Package config loads Share Index settings via viper, the way the rest
// of the pack layers config file, env vars and defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/dcshare/shareindex"

	"github.com/spf13/viper"
)

// Config stores all configuration recognized by the share index.
type Config struct {
	Share ShareConfig `mapstructure:"share"`
}

// ShareConfig mirrors the options a DC++-style client exposes for how its
// share is hashed, searched and listed.
type ShareConfig struct {
	// CaseSensitiveFilelist makes name comparisons in the virtual tree and
	// in generated file listings case sensitive. Captured once at Index
	// construction; changing this afterwards has no effect on an existing
	// Index.
	CaseSensitiveFilelist bool `mapstructure:"case_sensitive_filelist"`

	// MaxHashSpeedMBs caps the hashing worker pool's throughput, in
	// megabytes per second. Zero means unlimited.
	MaxHashSpeedMBs int `mapstructure:"max_hash_speed"`

	// MinSearchIntervalMS is the configured minimum number of milliseconds
	// between two search requests from the same source. It is loaded and
	// exposed here only; the share package's search does not read it.
	MinSearchIntervalMS int `mapstructure:"min_search_interval"`

	// ListLineLimit is the configured line limit for the XML file listing.
	// It is loaded and exposed here only; the share package's listing
	// generation does not read it.
	ListLineLimit int `mapstructure:"list_line_limit"`

	// HideHidden excludes files and directories whose name starts with a
	// dot from rescans. Entries hidden by other, OS-specific means are not
	// detected.
	HideHidden bool `mapstructure:"hide_hidden"`

	// SkipZeroByte excludes zero-length files from the share and from
	// generated listings.
	SkipZeroByte bool `mapstructure:"skip_zero_byte"`

	// ShareHidden, when true, overrides HideHidden and shares dot-files
	// anyway. Kept distinct from HideHidden so a directory-level override
	// can be layered on top later.
	ShareHidden bool `mapstructure:"share_hidden"`

	// CacheDir is where the bookkeeping database and generated listings
	// are stored.
	CacheDir string `mapstructure:"cache_dir"`
}

// AppConfig is the last config successfully loaded by LoadConfig.
var AppConfig Config

// LoadConfig reads configuration from a file, then environment variables,
// then built-in defaults, in that order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("share.case_sensitive_filelist", false)
	viper.SetDefault("share.max_hash_speed", 0)
	viper.SetDefault("share.min_search_interval", 1000)
	viper.SetDefault("share.list_line_limit", 0)
	viper.SetDefault("share.hide_hidden", true)
	viper.SetDefault("share.skip_zero_byte", false)
	viper.SetDefault("share.share_hidden", false)
	viper.SetDefault("share.cache_dir", internal.DefaultCacheDir)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
