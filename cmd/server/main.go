package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"verisimdb/cmd/server/server"
	"verisimdb/core"
	"verisimdb/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "verisimdb-server"}
	root.AddCommand(serveCmd())
	root.AddCommand(recoverCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string
	var env string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the VeriSimDB node, exposing the health/ready contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, env)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	cmd.Flags().StringVar(&env, "env", "", "environment overlay name (dev, staging, prod)")
	return cmd
}

func recoverCmd() *cobra.Command {
	var walDir string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "replay the write-ahead log and report the recovered sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			reader := core.OpenWalReader(walDir, log)
			entries, err := reader.ReplayAll()
			if err != nil {
				return err
			}
			seq, ok, err := reader.FindLastCheckpoint()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("recovered %d entries, no checkpoint found\n", len(entries))
				return nil
			}
			fmt.Printf("recovered %d entries, last checkpoint at sequence %d\n", len(entries), seq)
			return nil
		},
	}
	cmd.Flags().StringVar(&walDir, "wal-dir", "./data/wal", "write-ahead log directory")
	return cmd
}

func parseMetric(name string) core.Metric {
	switch name {
	case "euclidean":
		return core.MetricEuclidean
	case "dot":
		return core.MetricDot
	default:
		return core.MetricCosine
	}
}

func runServe(addr, env string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	log := logrus.New()
	if cfg.Logging.Level != "" {
		if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
			log.SetLevel(lvl)
		}
	}

	syncMode := core.SyncFsync
	if cfg.Wal.SyncMode == "async" {
		syncMode = core.SyncAsync
	}
	wal, err := core.OpenWal(cfg.Wal.Dir, syncMode, cfg.Wal.MaxSegmentSize, log)
	if err != nil {
		return err
	}
	defer wal.Close()

	hnswCfg := core.DefaultHnswConfig(cfg.Hnsw.Dimension, parseMetric(cfg.Hnsw.Metric))
	hnswCfg.EfConstruction = cfg.Hnsw.EfConstruction
	hnswCfg.EfSearch = cfg.Hnsw.EfSearch
	if cfg.Hnsw.MaxConnections > 0 {
		hnswCfg.M = cfg.Hnsw.MaxConnections
		hnswCfg.M0 = 2 * cfg.Hnsw.MaxConnections
	}

	store := core.NewHexadStore(core.HexadStoreConfig{
		Wal:       wal,
		VectorCfg: hnswCfg,
		Log:       log,
	})

	drift := core.NewDriftDetector(core.DriftThresholds{
		MinScore:          cfg.Normalizer.MinDriftScore,
		DegradedThreshold: cfg.Normalizer.DegradedThreshold,
		CriticalThreshold: cfg.Normalizer.CriticalThreshold,
	})
	normalizer := core.NewNormalizer(drift)
	feed := core.NewNormalizerFeed(normalizer, log)

	health, err := core.NewHealthLogger(store, wal, drift, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer health.Close()

	srv := &server.Server{Store: store, Health: health, Feed: feed}
	srv.SetReady(true)

	router := server.NewRouter(srv)
	httpServer := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go health.RunMetricsCollector(ctx, 15*time.Second)

	go func() {
		log.WithField("addr", addr).Info("verisimdb server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	srv.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
