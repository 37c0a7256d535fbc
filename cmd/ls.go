package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mezonai/blockfs/blockstore"
	"github.com/mezonai/blockfs/catalog"
	"github.com/mezonai/blockfs/jsonx"
)

var (
	lsAll      bool
	lsRawSizes bool
	lsJSON     bool
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the blocks in the repository",
	Run: func(cmd *cobra.Command, args []string) {
		listBlocks()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVar(&lsAll, "all", false, "Include deleted blocks awaiting reclamation")
	lsCmd.Flags().BoolVar(&lsRawSizes, "bytes", false, "Print exact byte counts instead of humanized sizes")
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "Emit one JSON object per block instead of a table")
}

func listBlocks() {
	store := openRepository("LS")
	defer closeRepository("LS", store)
	cat := store.(*blockstore.BlockStore).Catalog()

	if lsJSON {
		enc := jsonx.NewEncoder(os.Stdout)
		var encErr error
		err := cat.ForEach(func(e catalog.Entry) bool {
			if e.State == catalog.EntryDeleted && !lsAll {
				return true
			}
			encErr = enc.Encode(e)
			return encErr == nil
		})
		if err == nil {
			err = encErr
		}
		if err != nil {
			fatal("LS", "Failed to scan catalog:", err)
		}
		return
	}

	fmt.Printf("%-16s  %-8s  %10s  %s\n", "ID", "STATE", "SIZE", "CREATED")
	err := cat.ForEach(func(e catalog.Entry) bool {
		if e.State == catalog.EntryDeleted && !lsAll {
			return true
		}
		size := humanize.IBytes(e.Size)
		if lsRawSizes {
			size = fmt.Sprintf("%d", e.Size)
		}
		created := time.Unix(0, e.CreatedAt).UTC().Format(time.RFC3339)
		fmt.Printf("%-16s  %-8s  %10s  %s\n", e.ID, e.State, size, created)
		return true
	})
	if err != nil {
		fatal("LS", "Failed to scan catalog:", err)
	}
}
