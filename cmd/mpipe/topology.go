package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/pipeline"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Declare the broker exchanges and queues, then exit",
	RunE:  runTopology,
}

func init() {
	rootCmd.AddCommand(topologyCmd)
}

func runTopology(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := cfg.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := cfg.dialBroker(context.Background(), log)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := broker.EnsureTopology(ch); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range pipeline.Stages() {
		fmt.Fprintf(out, "%-20s <- %s/%s  (retry: %s)\n", s.QueueName(), pipeline.Exchange, s.RoutingKey(), s.RetryQueueName())
	}
	return nil
}
