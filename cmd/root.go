package cmd

import (
	"os"

	"github.com/mezonai/blockfs/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "blockfs",
	Short: "Block repository CLI",
	Long:  "Command line interface for creating and managing block repositories.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
