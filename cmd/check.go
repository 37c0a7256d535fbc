package cmd

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mezonai/blockfs/blockstore"
	"github.com/mezonai/blockfs/catalog"
	"github.com/mezonai/blockfs/logx"
)

const checkChunkSize = 1 << 20

var checkJobs int

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every live block is present and readable",
	Run: func(cmd *cobra.Command, args []string) {
		checkRepository()
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().IntVar(&checkJobs, "jobs", 8, "Number of blocks to verify in parallel")
}

func checkRepository() {
	store := openRepository("CHECK")
	defer closeRepository("CHECK", store)

	var entries []catalog.Entry
	err := store.(*blockstore.BlockStore).Catalog().ForEach(func(e catalog.Entry) bool {
		if e.State == catalog.EntryLive {
			entries = append(entries, e)
		}
		return true
	})
	if err != nil {
		fatal("CHECK", "Failed to scan catalog:", err)
	}

	var verifiedBytes, badBlocks atomic.Uint64
	var g errgroup.Group
	g.SetLimit(checkJobs)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := verifyBlock(store, e); err != nil {
				logx.Error("CHECK", "Block ", e.ID, " failed verification: ", err)
				badBlocks.Add(1)
				return nil
			}
			verifiedBytes.Add(e.Size)
			return nil
		})
	}
	g.Wait()

	fmt.Printf("Checked %d blocks, %s\n", len(entries), humanize.IBytes(verifiedBytes.Load()))
	if n := badBlocks.Load(); n > 0 {
		fatal("CHECK", n, " of ", len(entries), " blocks failed verification")
	}
	logx.Info("CHECK", "Repository is consistent")
}

func verifyBlock(store blockstore.Manager, e catalog.Entry) error {
	r, err := store.OpenBlock(e.ID)
	if err != nil {
		return err
	}
	defer r.Close()

	if r.Size() != e.Size {
		return logx.Errorf("catalog says %d bytes, extent has %d", e.Size, r.Size())
	}

	scratch := make([]byte, checkChunkSize)
	for off := uint64(0); off < e.Size; {
		n := uint64(checkChunkSize)
		if e.Size-off < n {
			n = e.Size - off
		}
		if _, err := r.Read(off, n, scratch); err != nil {
			return err
		}
		off += n
	}
	return nil
}
