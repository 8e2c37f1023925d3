// Package router implements the name parser & router (C1): it classifies a
// database name, derives its staging target, division, and expected
// pipeline length.
package router

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ensembl-io/handover/internal/config"
	"github.com/ensembl-io/handover/internal/handoverspec"
)

type (
	// DispatchTarget maps a db_type to the URL prefix dispatch submits to.
	DispatchTarget struct {
		DBType string `yaml:"db_type"`
		URL    string `yaml:"url"`
	}

	// Config holds the routing allow-lists and dispatch configuration
	// (spec.md §6 environment-configurable settings).
	Config struct {
		Release int `yaml:"release"`

		StagingURI          string `yaml:"staging_uri"`
		SecondaryStagingURI string `yaml:"secondary_staging_uri"`

		//nolint:tagliatelle
		AllowedDatabaseTypes []string `yaml:"allowed_database_types"`
		//nolint:tagliatelle
		AllowedDivisions []string `yaml:"allowed_divisions"`

		//nolint:tagliatelle
		DispatchTargets []DispatchTarget `yaml:"dispatch_targets"`
		//nolint:tagliatelle
		DispatchAll bool `yaml:"dispatch_all"`

		// CompareSpecies is the allow-list of genomes whose compara
		// membership triggers a dispatch decision (spec.md §4.5).
		//nolint:tagliatelle
		CompareSpecies []string `yaml:"compara_species"`

		// BLATSpecies triggers a production configuration-update
		// notification on new_assembly metadata events (spec.md §4.5).
		//nolint:tagliatelle
		BLATSpecies []string `yaml:"blat_species"`

		// GRCh37CompParaDivisions lists divisions whose compara database
		// has a GRCh37 member species, routing it to secondary staging
		// (spec.md §4.1 "compara whose member species is GRCh37").
		//nolint:tagliatelle
		GRCh37CompParaDivisions []string `yaml:"grch37_compara_divisions"`
	}
)

// DefaultConfigPath is the default routing-config file location.
const DefaultConfigPath = ".handover.yaml"

// ConfigPathEnvVar names the environment variable carrying a custom path.
const ConfigPathEnvVar = "HANDOVER_ROUTER_CONFIG_PATH"

// LoadConfig loads routing configuration from a YAML file at path, then
// overlays RELEASE/ALLOWED_DATABASE_TYPES/... from the environment.
//
// A missing or invalid file produces an empty-but-valid Config (graceful
// degradation) rather than failing startup, since the file is optional
// when every setting is supplied via environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("router: failed to read config file, continuing with defaults",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Warn("router: failed to parse config file, continuing with defaults",
				slog.String("path", path), slog.String("error", err.Error()))

			cfg = &Config{}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadConfigFromEnv loads the routing config from HANDOVER_ROUTER_CONFIG_PATH,
// falling back to DefaultConfigPath.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}

func (c *Config) applyEnvOverrides() {
	c.Release = config.GetEnvInt("RELEASE", c.Release)
	c.StagingURI = config.GetEnvStr("STAGING_URI", c.StagingURI)
	c.SecondaryStagingURI = config.GetEnvStr("SECONDARY_STAGING_URI", c.SecondaryStagingURI)

	if v := os.Getenv("ALLOWED_DATABASE_TYPES"); v != "" {
		c.AllowedDatabaseTypes = config.ParseCommaSeparatedList(v)
	}

	if v := os.Getenv("ALLOWED_DIVISIONS"); v != "" {
		c.AllowedDivisions = config.ParseCommaSeparatedList(v)
	}

	if v := os.Getenv("BLAT_SPECIES"); v != "" {
		c.BLATSpecies = config.ParseCommaSeparatedList(v)
	}

	c.DispatchAll = config.GetEnvBool("DISPATCH_ALL", c.DispatchAll)
}

// DispatchTargetFor returns the configured dispatch URL for dbType, falling
// back to the "core" target per spec.md §4.5 ("falling back to the core
// target"). Returns ("", false) if neither is configured.
func (c *Config) DispatchTargetFor(dbType handoverspec.DBType) (string, bool) {
	var coreURL string

	for _, t := range c.DispatchTargets {
		if t.DBType == string(dbType) {
			return t.URL, true
		}

		if t.DBType == string(handoverspec.DBTypeCore) {
			coreURL = t.URL
		}
	}

	if coreURL != "" {
		return coreURL, true
	}

	return "", false
}

func (c *Config) allows(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}

	for _, v := range list {
		if v == value {
			return true
		}
	}

	return false
}

// AllowsDatabaseType reports whether dbType is in the configured allow-list
// (an empty list allows everything, matching unconfigured dev environments).
func (c *Config) AllowsDatabaseType(dbType handoverspec.DBType) bool {
	return c.allows(c.AllowedDatabaseTypes, string(dbType))
}

// AllowsDivision reports whether division is in the configured allow-list.
func (c *Config) AllowsDivision(division handoverspec.Division) bool {
	return c.allows(c.AllowedDivisions, string(division))
}

// IsCompareSpecies reports whether genome is in the compara allow-list, or
// DispatchAll is set (spec.md §4.5 dispatch decision, and Open Question
// resolution in SPEC_FULL.md §8.4).
func (c *Config) IsCompareSpecies(genome string) bool {
	if c.DispatchAll {
		return true
	}

	for _, s := range c.CompareSpecies {
		if s == genome {
			return true
		}
	}

	return false
}

// IsBLATSpecies reports whether genome should trigger the production
// configuration-update notification (spec.md §4.5).
func (c *Config) IsBLATSpecies(genome string) bool {
	for _, s := range c.BLATSpecies {
		if s == genome {
			return true
		}
	}

	return false
}

func (c *Config) isGRCh37ComparaDivision(division handoverspec.Division) bool {
	for _, d := range c.GRCh37CompParaDivisions {
		if d == string(division) {
			return true
		}
	}

	return false
}
