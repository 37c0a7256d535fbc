package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/logx"
)

var rmCmd = &cobra.Command{
	Use:   "rm <block-id>...",
	Short: "Delete blocks from the repository",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		removeBlocks(args)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func removeBlocks(rawIDs []string) {
	store := openRepository("RM")
	defer closeRepository("RM", store)

	failed := 0
	for _, raw := range rawIDs {
		id, err := block.ParseID(raw)
		if err != nil {
			logx.Error("RM", "Invalid block id ", raw, ": ", err)
			failed++
			continue
		}
		if err := store.DeleteBlock(id); err != nil {
			logx.Error("RM", "Failed to delete ", id, ": ", err)
			failed++
			continue
		}
		logx.Info("RM", "Deleted block ", id)
	}
	if failed > 0 {
		closeRepository("RM", store)
		os.Exit(1)
	}
}
