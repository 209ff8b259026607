package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"verisimdb/core"
)

var (
	walDir       string
	vectorDim    int
	store        *core.HexadStore
	conflictRes  = core.NewConflictResolver(core.DefaultConflictConfig())
	federationRg = core.NewFederationRegistry(nil)
)

func main() {
	root := &cobra.Command{
		Use:   "verisimdb",
		Short: "operate on a local VeriSimDB store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return openStore()
		},
	}
	root.PersistentFlags().StringVar(&walDir, "wal-dir", "./data/wal", "write-ahead log directory")
	root.PersistentFlags().IntVar(&vectorDim, "vector-dim", 768, "vector modality dimension")

	root.AddCommand(HexadCmd)
	root.AddCommand(ConflictCmd)
	root.AddCommand(FederationCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore lazily opens the on-disk store backing every subcommand.
func openStore() error {
	if store != nil {
		return nil
	}
	log := logrus.New()
	wal, err := core.OpenWal(walDir, core.SyncFsync, 0, log)
	if err != nil {
		return err
	}
	store = core.NewHexadStore(core.HexadStoreConfig{
		Wal:       wal,
		VectorCfg: core.DefaultHnswConfig(vectorDim, core.MetricCosine),
		Log:       log,
	})
	return nil
}
