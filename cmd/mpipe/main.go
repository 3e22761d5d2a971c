package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mpipe",
		Short: "Music pipeline - import, fingerprint and catalogue albums",
		Long: `mpipe runs the stage workers of the album pipeline and the small tools
around them. Albums enter through "album add" or "scan", are imported into
tracks and files, and move stage by stage through a RabbitMQ work queue.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/mpipe.yaml)")
	rootCmd.PersistentFlags().String("database-url", "", "postgres:// URL or SQLite file path")
	rootCmd.PersistentFlags().String("amqp-url", "", "amqp:// URL of the broker")
	rootCmd.PersistentFlags().String("log-mode", "dev", "log format: dev (console) or prod (JSON)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("amqp_url", rootCmd.PersistentFlags().Lookup("amqp-url"))
	viper.BindPFlag("log_mode", rootCmd.PersistentFlags().Lookup("log-mode"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	// .env files are optional; real environment variables win.
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mpipe")
		viper.SetConfigType("yaml")
	}

	setDefaults(viper.GetViper())

	// Read in environment variables that match
	viper.SetEnvPrefix("MPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	// The deployment conventions predate the prefix.
	viper.BindEnv("database_url", "MPIPE_DATABASE_URL", "DATABASE_URL")
	viper.BindEnv("amqp_url", "MPIPE_AMQP_URL", "AMQP_URL")

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
