package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mezonai/blockfs/block"
)

const catChunkSize = 1 << 20

var (
	catOffset uint64
	catLength uint64
)

var catCmd = &cobra.Command{
	Use:   "cat <block-id>",
	Short: "Write a block's bytes to stdout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		catBlock(args[0], cmd.Flags().Changed("length"))
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().Uint64Var(&catOffset, "offset", 0, "Byte offset to start reading from")
	catCmd.Flags().Uint64Var(&catLength, "length", 0, "Number of bytes to read (defaults to the rest of the block)")
}

func catBlock(rawID string, lengthSet bool) {
	id, err := block.ParseID(rawID)
	if err != nil {
		fatal("CAT", "Invalid block id:", err)
	}

	store := openRepository("CAT")
	defer closeRepository("CAT", store)

	r, err := store.OpenBlock(id)
	if err != nil {
		fatal("CAT", "Failed to open block:", err)
	}
	defer r.Close()

	if catOffset > r.Size() {
		fatal("CAT", "Offset ", catOffset, " is past the end of a ", r.Size(), " byte block")
	}
	remaining := r.Size() - catOffset
	if lengthSet {
		if catLength > remaining {
			fatal("CAT", "Requested ", catLength, " bytes but only ", remaining, " remain")
		}
		remaining = catLength
	}

	scratch := make([]byte, catChunkSize)
	off := catOffset
	for remaining > 0 {
		n := uint64(catChunkSize)
		if remaining < n {
			n = remaining
		}
		out, err := r.Read(off, n, scratch)
		if err != nil {
			fatal("CAT", "Failed to read block:", err)
		}
		if _, err := os.Stdout.Write(out); err != nil {
			fatal("CAT", "Failed to write output:", err)
		}
		off += n
		remaining -= n
	}
}
