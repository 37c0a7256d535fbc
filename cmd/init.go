package cmd

import (
	"github.com/mezonai/blockfs/blockstore"
	"github.com/mezonai/blockfs/logx"
	"github.com/mezonai/blockfs/monitoring"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new block repository",
	Long: `Create a new block repository by:
- Laying out the sharded data directory structure
- Initializing the block catalog with the chosen database backend
- Taking the repository instance lock`,
	Run: func(cmd *cobra.Command, args []string) {
		initializeRepository()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initializeRepository() {
	monitoring.InitMetrics()

	opts := resolveOptions("INIT")
	store, err := blockstore.CreateStore(opts)
	if err != nil {
		fatal("INIT", "Failed to create repository:", err)
	}
	closeRepository("INIT", store)
	logx.Info("INIT", "Repository created at ", opts.Directory, " with ", opts.Catalog, " catalog")
}
