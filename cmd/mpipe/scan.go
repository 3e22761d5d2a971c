package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/importer"
	"github.com/franz/music-pipeline/internal/store"
	"github.com/franz/music-pipeline/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan <media-root>",
	Short: "Find album directories in a media library and queue their import",
	Long: `Walk a media library and register every directory that directly holds
audio files as a library_scan album, then queue an import job for it.
Disc folders (CD1, Disc 2, ...) are folded into their parent album.
Directories that are already registered are skipped, so scanning the same
library again only picks up new albums.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("dry-run", false, "list album directories without registering them")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := cfg.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Check if stdout is a terminal (disable progress bar if piped/redirected)
	var bar *progressbar.ProgressBar
	if util.StdoutIsTerminal() && !cfg.Quiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	progress := func(string) {
		if bar != nil {
			bar.Add(1)
		}
	}

	dirs, err := cfg.newScanner(log).FindAlbumDirs(ctx, root, progress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		for _, dir := range dirs {
			fmt.Fprintln(out, dir)
		}
		log.Info("Scan complete (dry run)", "albums", len(dirs))
		return nil
	}

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

	var added, known int
	for _, dir := range dirs {
		exists, err := st.AlbumExistsForPath(ctx, dir)
		if err != nil {
			return err
		}
		if exists {
			known++
			log.Debug("Album already registered", "path", dir)
			continue
		}

		album, err := importer.Submit(ctx, st, pub, store.Source{Type: store.SourceLibraryScan, Path: dir})
		if err != nil {
			return err
		}
		added++
		fmt.Fprintf(out, "%s  %s\n", album.ID, dir)
	}

	log.Info("Scan complete", "albums", len(dirs), "added", added, "already_known", known)
	return nil
}
