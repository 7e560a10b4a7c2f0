// Package config loads revindex's five recognized options (spec.md §6)
// through a viper singleton, following untoldecay-BeadsLog's
// viper-singleton pattern: environment variables (prefix REVINDEX_)
// take precedence over an optional revindex.toml, which takes
// precedence over built-in defaults. The file is decoded with
// BurntSushi/toml, the same parser the teacher uses for its formula
// files, rather than viper's own (different) TOML support.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

var v *viper.Viper

// fileConfig mirrors revindex.toml's recognized keys. Pointer fields
// distinguish "absent from the file" from "explicitly false/zero" so
// Initialize only merges keys the file actually set.
type fileConfig struct {
	DBPath            string `toml:"db_path"`
	Incremental       *bool  `toml:"incremental"`
	Validate          *bool  `toml:"validate"`
	MaxCacheSizeBytes *int64 `toml:"max_cache_size_bytes"`
	MainlineRangeLen  *int   `toml:"mainline_range_len"`
}

// Initialize resets the configuration singleton, loading configPath (if
// it exists) on top of defaults, beneath REVINDEX_-prefixed env vars. An
// empty configPath checks ./revindex.toml.
func Initialize(configPath string) error {
	v = viper.New()
	v.SetEnvPrefix("REVINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", "")
	v.SetDefault("incremental", true)
	v.SetDefault("validate", false)
	v.SetDefault("max_cache_size_bytes", int64(0))
	v.SetDefault("mainline_range_len", 100)

	path := configPath
	if path == "" {
		path = "revindex.toml"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("revindex: parsing config file %s: %w", path, err)
	}

	merged := map[string]any{}
	if fc.DBPath != "" {
		merged["db_path"] = fc.DBPath
	}
	if fc.Incremental != nil {
		merged["incremental"] = *fc.Incremental
	}
	if fc.Validate != nil {
		merged["validate"] = *fc.Validate
	}
	if fc.MaxCacheSizeBytes != nil {
		merged["max_cache_size_bytes"] = *fc.MaxCacheSizeBytes
	}
	if fc.MainlineRangeLen != nil {
		merged["mainline_range_len"] = *fc.MainlineRangeLen
	}
	if len(merged) == 0 {
		return nil
	}
	if err := v.MergeConfigMap(merged); err != nil {
		return fmt.Errorf("revindex: merging config file %s: %w", path, err)
	}
	return nil
}

// DBPath is the location of the database file; required.
func DBPath() string { return v.GetString("db_path") }

// Incremental reports whether IncrementalMergeSorter should be used when
// a prior tip exists.
func Incremental() bool { return v.GetBool("incremental") }

// Validate reports whether each incremental import should be
// cross-checked against FullMergeSorter.
func Validate() bool { return v.GetBool("validate") }

// MaxCacheSizeBytes is a hint for the database layer's page cache size.
func MaxCacheSizeBytes() int64 { return v.GetInt64("max_cache_size_bytes") }

// MainlineRangeLen is MAX_RANGE for MainlineRangeCache.
func MainlineRangeLen() int { return v.GetInt("mainline_range_len") }

// Resolved is the fully-resolved configuration for one run, handed
// directly to store.Open / importer.Config construction.
type Resolved struct {
	DBPath            string
	Incremental       bool
	Validate          bool
	MaxCacheSizeBytes int64
	MainlineRangeLen  int
}

// Load initializes the singleton from configPath and returns the
// resolved values, rejecting a missing db_path.
func Load(configPath string) (Resolved, error) {
	if err := Initialize(configPath); err != nil {
		return Resolved{}, err
	}
	r := Resolved{
		DBPath:            DBPath(),
		Incremental:       Incremental(),
		Validate:          Validate(),
		MaxCacheSizeBytes: MaxCacheSizeBytes(),
		MainlineRangeLen:  MainlineRangeLen(),
	}
	if r.DBPath == "" {
		return Resolved{}, fmt.Errorf("revindex: db_path is required")
	}
	return r, nil
}
