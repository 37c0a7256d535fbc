package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/logx"
)

const putChunkSize = 1 << 20

var putBlockID string

var putCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Store a file (or stdin) as a new block",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source := ""
		if len(args) == 1 {
			source = args[0]
		}
		putBlock(source)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putBlockID, "id", "", "Store under this block id instead of an assigned one")
}

func putBlock(source string) {
	in := io.Reader(os.Stdin)
	if source != "" && source != "-" {
		f, err := os.Open(source)
		if err != nil {
			fatal("PUT", "Failed to open input:", err)
		}
		defer f.Close()
		in = f
	}

	store := openRepository("PUT")
	defer closeRepository("PUT", store)

	var w block.Writable
	var err error
	if putBlockID != "" {
		id, perr := block.ParseID(putBlockID)
		if perr != nil {
			fatal("PUT", "Invalid block id:", perr)
		}
		w, err = store.CreateNamedBlock(nil, id)
	} else {
		w, err = store.CreateAnonymousBlock(nil)
	}
	if err != nil {
		fatal("PUT", "Failed to create block:", err)
	}

	buf := make([]byte, putChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if aerr := w.Append(buf[:n]); aerr != nil {
				fatal("PUT", "Failed to append:", aerr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			fatal("PUT", "Failed to read input:", rerr)
		}
	}

	if err := w.Close(); err != nil {
		fatal("PUT", "Failed to close block:", err)
	}

	logx.Info("PUT", "Stored ", humanize.IBytes(w.BytesAppended()), " as block ", w.ID())
	fmt.Println(w.ID())
}
