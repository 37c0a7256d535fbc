package config

import (
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/logx"
)

// LoadStoreConfig reads and parses a store.yml file.
func LoadStoreConfig(path string) (*StoreConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errx.Wrapf(errx.CodeIO, err, "open store config %s", path)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, errx.Wrapf(errx.CodeInvalidState, err, "decode store config %s", path)
	}
	cfg := &cfgFile.Config
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", "loaded store config:", "store=", cfg.Store, "directory=", cfg.Directory, "catalog=", cfg.CatalogBackend)
	return cfg, nil
}

// LoadTuningConfig reads the [storage] section of a tuning .ini file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, errx.Wrapf(errx.CodeIO, err, "load tuning config %s", path)
	}
	tuning := DefaultTuning()
	if err := cfg.Section("storage").MapTo(tuning); err != nil {
		return nil, errx.Wrapf(errx.CodeInvalidState, err, "map tuning config %s", path)
	}
	return tuning, nil
}
