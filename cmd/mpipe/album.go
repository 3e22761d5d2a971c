package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/importer"
	"github.com/franz/music-pipeline/internal/store"
)

var albumCmd = &cobra.Command{
	Use:   "album",
	Short: "Manage albums",
}

var albumAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register an album directory and queue its import",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlbumAdd,
}

func init() {
	rootCmd.AddCommand(albumCmd)
	albumCmd.AddCommand(albumAddCmd)

	albumAddCmd.Flags().String("type", string(store.SourceUpload), "source type: upload or library_scan")
}

func runAlbumAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := cfg.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	srcType, _ := cmd.Flags().GetString("type")
	src, err := localSource(store.SourceType(srcType), args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := cfg.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer st.Close()

	exists, err := st.AlbumExistsForPath(ctx, src.Path)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("an album for %s is already registered", src.Path)
	}

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

	album, err := importer.Submit(ctx, st, pub, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), album.ID)
	return nil
}

// localSource builds a filesystem-backed album source.
func localSource(t store.SourceType, path string) (store.Source, error) {
	if t != store.SourceUpload && t != store.SourceLibraryScan {
		return store.Source{}, fmt.Errorf("unsupported source type %q for a local path", t)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return store.Source{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return store.Source{Type: t, Path: abs}, nil
}
