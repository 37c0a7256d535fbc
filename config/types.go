package config

import "github.com/mezonai/blockfs/errx"

// StoreConfig selects a repository layout: where it lives, which catalog
// backend keeps the block mapping, and the optional metrics listener.
type StoreConfig struct {
	Store          string `yaml:"store"`
	Directory      string `yaml:"directory"`
	CatalogBackend string `yaml:"catalog_backend"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// ConfigFile is the top-level structure for store.yml.
type ConfigFile struct {
	Config StoreConfig `yaml:"config"`
}

func (c *StoreConfig) applyDefaults() {
	if c.Store == "" {
		c.Store = StoreFile
	}
	if c.CatalogBackend == "" {
		c.CatalogBackend = CatalogBolt
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Store {
	case StoreFile:
		if c.Directory == "" {
			return errx.New(errx.CodeInvalidState, "store config: file store requires a directory")
		}
	case StoreMem:
	default:
		return errx.Newf(errx.CodeInvalidState, "store config: unknown store kind %q", c.Store)
	}
	switch c.CatalogBackend {
	case CatalogBolt, CatalogLevelDB:
	default:
		return errx.Newf(errx.CodeInvalidState, "store config: unknown catalog backend %q", c.CatalogBackend)
	}
	return nil
}

// TuningConfig carries the durability knobs. Both default to on; turning
// them off trades crash safety for speed and is meant for bulk loads and
// test rigs only.
type TuningConfig struct {
	SyncOnClose bool `ini:"sync_on_close"`
	SyncDirs    bool `ini:"sync_dirs"`
}

func DefaultTuning() *TuningConfig {
	return &TuningConfig{SyncOnClose: true, SyncDirs: true}
}
