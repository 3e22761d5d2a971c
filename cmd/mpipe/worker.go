package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/fingerprint"
	"github.com/franz/music-pipeline/internal/importer"
	"github.com/franz/music-pipeline/internal/meta"
	"github.com/franz/music-pipeline/internal/pipeline"
	"github.com/franz/music-pipeline/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run stage workers",
	Long: `Run one consume loop per selected stage against the shared broker
connection. Each loop declares the queue topology, processes up to
--prefetch jobs concurrently and acknowledges a job only once its outcome
is settled: done, failed for good, or parked for a delayed retry.

Stages: import, fingerprint.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringSlice("stage", []string{"import", "fingerprint"}, "stage(s) to run")
	workerCmd.Flags().Int("prefetch", 4, "jobs in flight per stage")
	workerCmd.Flags().String("fpcalc", meta.DefaultFpcalc, "fpcalc binary")

	viper.BindPFlag("prefetch", workerCmd.Flags().Lookup("prefetch"))
	viper.BindPFlag("fpcalc", workerCmd.Flags().Lookup("fpcalc"))
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := cfg.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	names, _ := cmd.Flags().GetStringSlice("stage")
	stages := make([]pipeline.Stage, 0, len(names))
	for _, name := range names {
		s, err := pipeline.ParseStage(name)
		if err != nil {
			return err
		}
		stages = append(stages, s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := cfg.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer st.Close()

	conn, err := cfg.dialBroker(ctx, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	pub, err := broker.OpenPublisher(conn)
	if err != nil {
		return err
	}
	defer pub.Close()

	scanner := cfg.newScanner(log)
	registry := worker.NewRegistry()
	handlers := []worker.Handler{
		importer.New(st, scanner, pub, log),
		fingerprint.New(st, meta.NewFpcalc(cfg.Fpcalc, cfg.ToolTimeout), pub, log),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	selected, err := registry.Select(stages...)
	if err != nil {
		return err
	}

	log.Info("Starting stage workers",
		"stages", names,
		"prefetch", cfg.Prefetch,
		"database", st.Dialect().String(),
		"extensions", scanner.GetSupportedExtensions(),
	)

	rt := worker.New(conn, cfg.runtimeConfig(), log)
	err = rt.RunAll(ctx, selected...)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", err)
	}
	log.Info("Stage workers stopped")
	return nil
}
