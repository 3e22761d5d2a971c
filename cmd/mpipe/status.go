package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/store"
	"github.com/franz/music-pipeline/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status <album-id>",
	Short: "Show the tracks of an album and how far each file has progressed",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	albumID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid album id %q: %w", args[0], err)
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := cfg.newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	st, err := cfg.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer st.Close()

	album, err := st.GetAlbum(ctx, albumID)
	if err != nil {
		return err
	}
	if album == nil {
		return fmt.Errorf("album %s not found", albumID)
	}
	rows, err := st.ListTrackFiles(ctx, albumID)
	if err != nil {
		return err
	}
	counts, err := st.CountFilesByStatus(ctx, albumID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderAlbumStatus(album, rows, counts, time.Now(), util.StdoutIsTerminal()))
	return nil
}

// renderAlbumStatus formats an album header, one row per track and a status
// summary. color adds ANSI status colours.
func renderAlbumStatus(album *store.Album, rows []*store.TrackFile, counts map[string]int, now time.Time, color bool) string {
	var b strings.Builder

	source := album.Source.Path
	if source == "" {
		source = album.Source.URL
	}
	fmt.Fprintf(&b, "Album   %s\n", album.ID)
	fmt.Fprintf(&b, "Source  %s (%s)\n", source, album.Source.Type)
	fmt.Fprintf(&b, "Added   %s\n\n", humanize.RelTime(album.CreatedAt, now, "ago", "from now"))

	if len(rows) == 0 {
		b.WriteString("No tracks imported yet.\n")
		return b.String()
	}

	b.WriteString(trackTable(rows, now, color))
	b.WriteString("\n")

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	fmt.Fprintf(&b, "%d tracks  %s\n", len(rows), strings.Join(parts, " "))
	return b.String()
}

var statusColors = map[string]text.Colors{
	store.StatusNew:    {text.FgYellow},
	store.StatusFPDone: {text.FgGreen},
	store.StatusError:  {text.FgRed, text.Bold},
}

func trackTable(rows []*store.TrackFile, now time.Time, color bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Disc", "#", "Title", "File", "Codec", "Length", "Status", "Updated"})

	for _, r := range rows {
		length := ""
		if r.File.DurationSec > 0 {
			length = fmt.Sprintf("%d:%02d", r.File.DurationSec/60, r.File.DurationSec%60)
		}
		status := r.File.Status
		if r.File.Error != "" {
			status += ": " + r.File.Error
		}
		if c, ok := statusColors[r.File.Status]; ok && color {
			status = c.Sprint(status)
		}
		tw.AppendRow(table.Row{
			r.Track.Disc,
			r.Track.Index,
			r.Track.Title,
			filepath.Base(r.File.Path),
			r.File.Codec,
			length,
			status,
			humanize.RelTime(r.File.UpdatedAt, now, "ago", "from now"),
		})
	}

	// Disc, track number and length read better right aligned.
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}
