package cmd

import (
	"os"

	"github.com/mezonai/blockfs/blockstore"
	"github.com/mezonai/blockfs/config"
	"github.com/mezonai/blockfs/exception"
	"github.com/mezonai/blockfs/logx"
	"github.com/mezonai/blockfs/monitoring"
)

// Flags shared by every repository command.
var (
	repoDir        string
	repoCatalog    string
	repoConfigPath string
	tuningPath     string

	// From the config file only; empty means no metrics listener.
	metricsAddr string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&repoDir, "data-dir", "./blockfs-data", "Repository directory")
	pf.StringVar(&repoCatalog, "catalog", config.CatalogBolt, "Catalog backend (bolt or leveldb)")
	pf.StringVar(&repoConfigPath, "config", "", "Path to store.yml (overrides repository flags)")
	pf.StringVar(&tuningPath, "tuning", "", "Path to tuning.ini with durability knobs")
}

func fatal(category string, content ...interface{}) {
	logx.Error(category, content...)
	os.Exit(1)
}

// resolveOptions folds the config file, tuning file and flags into store
// options. The config file wins over flags when both are given.
func resolveOptions(category string) *blockstore.Options {
	dir := repoDir
	backend := repoCatalog
	if repoConfigPath != "" {
		cfg, err := config.LoadStoreConfig(repoConfigPath)
		if err != nil {
			fatal(category, "Failed to load store config:", err)
		}
		if cfg.Store == config.StoreMem {
			fatal(category, "Mem stores hold nothing once the process exits; the CLI only manages file repositories")
		}
		dir = cfg.Directory
		backend = cfg.CatalogBackend
		metricsAddr = cfg.MetricsAddr
	}

	opts := blockstore.NewFileStoreOptions(dir)
	opts.Catalog = blockstore.CatalogBackend(backend)

	tuning := config.DefaultTuning()
	if tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(tuningPath)
		if err != nil {
			fatal(category, "Failed to load tuning config:", err)
		}
	}
	opts.SyncOnClose = tuning.SyncOnClose
	opts.SyncDirs = tuning.SyncDirs
	return opts
}

func openRepository(category string) blockstore.Manager {
	opts := resolveOptions(category)
	if metricsAddr != "" {
		// Collectors must exist before the store opens so that recovery
		// work (orphan sweeps, finished reclamations) is counted.
		monitoring.InitMetrics()
	}
	store, err := blockstore.OpenStore(opts)
	if err != nil {
		fatal(category, "Failed to open repository:", err)
	}
	maybeServeMetrics()
	return store
}

// maybeServeMetrics exposes /metrics for the life of the command when the
// config file names a listener.
func maybeServeMetrics() {
	if metricsAddr == "" {
		return
	}
	addr := metricsAddr
	exception.SafeGoWithPanic("metrics-listener", func() {
		if err := monitoring.Serve(addr); err != nil {
			logx.Error("CMD", "Metrics listener failed:", err)
			panic(err)
		}
	})
}

func closeRepository(category string, store blockstore.Manager) {
	if err := store.Close(); err != nil {
		fatal(category, "Failed to close repository:", err)
	}
}
