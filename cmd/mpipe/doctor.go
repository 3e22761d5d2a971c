package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/store"
	"github.com/franz/music-pipeline/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure the stage workers can operate.

This command checks:
- fpcalc (required by the fingerprint stage)
- Database connectivity and schema
- Broker connectivity and queue topology
- Media root readability (optional, --media-root)`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("media-root", "", "media directory to check (optional)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	results := []checkResult{
		checkFpcalc(cfg.Fpcalc),
		checkDatabase(cfg.DatabaseURL),
		checkBroker(cfg.AMQPURL),
	}

	mediaRoot, _ := cmd.Flags().GetString("media-root")
	if mediaRoot != "" {
		results = append(results, checkMediaRoot(mediaRoot))
	}

	if printResults(cmd.OutOrStdout(), results) {
		return fmt.Errorf("system diagnostics failed")
	}
	return nil
}

// printResults writes one line per check and reports whether any failed.
func printResults(w io.Writer, results []checkResult) bool {
	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	switch {
	case hasErrors:
		fmt.Fprintln(w, "Some critical checks failed. Please resolve errors before starting workers.")
	case hasWarnings:
		fmt.Fprintln(w, "Some checks produced warnings. Review them before proceeding.")
	default:
		fmt.Fprintln(w, "All checks passed.")
	}
	return hasErrors
}

// checkFpcalc verifies fpcalc is available and gets version
func checkFpcalc(binary string) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "-version")
	output, err := cmd.CombinedOutput()

	if err != nil {
		return checkResult{
			name:    "fpcalc",
			error:   true,
			message: fmt.Sprintf("%s not found or not executable (required by the fingerprint stage)", binary),
		}
	}

	// "fpcalc version 1.5.1 (FFmpeg ...)"
	version := "unknown"
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		parts := strings.Fields(lines[0])
		if len(parts) >= 3 {
			version = parts[2]
		}
	}

	return checkResult{
		name:    "fpcalc",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkDatabase opens the store, which also applies the schema.
func checkDatabase(dsn string) checkResult {
	if dsn == "" {
		return checkResult{
			name:    "Database",
			error:   true,
			message: "no database url specified (use --database-url, DATABASE_URL or config)",
		}
	}

	created := false
	if path, isFile := strings.CutPrefix(dsn, "sqlite://"); isFile || !strings.Contains(dsn, "://") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			created = true
		}
	}

	db, err := store.Open(dsn)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open: %v", err),
		}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	version, err := db.Version(ctx)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot query server version: %v", err),
		}
	}

	msg := fmt.Sprintf("%s %s", db.Dialect(), version)
	if created {
		msg += fmt.Sprintf(" (%s created)", dsn)
	}
	return checkResult{
		name:    "Database",
		message: msg,
	}
}

// checkBroker connects and declares the topology.
func checkBroker(url string) checkResult {
	if url == "" {
		return checkResult{
			name:    "Broker",
			error:   true,
			message: "no amqp url specified (use --amqp-url, AMQP_URL or config)",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := broker.Dial(ctx, url, logger.Nop())
	if err != nil {
		return checkResult{
			name:    "Broker",
			error:   true,
			message: fmt.Sprintf("cannot connect: %v", err),
		}
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return checkResult{name: "Broker", error: true, message: err.Error()}
	}
	defer ch.Close()

	if err := broker.EnsureTopology(ch); err != nil {
		return checkResult{
			name:    "Broker",
			error:   true,
			message: fmt.Sprintf("topology declaration failed: %v", err),
		}
	}

	return checkResult{
		name:    "Broker",
		message: "connected, topology declared",
	}
}

// checkMediaRoot verifies a media directory is readable
func checkMediaRoot(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Media root",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Media root",
			error:   true,
			message: fmt.Sprintf("%s: %v", path, util.ErrNotDirectory),
		}
	}

	// Check read permission by trying to list directory
	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Media root",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	if len(entries) == 0 {
		return checkResult{
			name:    "Media root",
			warning: true,
			message: fmt.Sprintf("%s is empty", path),
		}
	}

	return checkResult{
		name:    "Media root",
		message: fmt.Sprintf("%s (%d entries)", path, len(entries)),
	}
}
