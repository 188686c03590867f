// Package commands implements the voiceorb command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configFile  string
	backendURL  string
	locale      string
	autoplay    bool
	noStream    bool
	logFile     string
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "voiceorb",
	Short: "Terminal voice chat with William AI",
	Long: `voiceorb asks William AI questions and plays the spoken answers
while they stream in, with a small audio-reactive orb.

Without a command it starts the chat.

Configuration is read from the YAML file given with --config and reloaded
when the file changes. Flags override the file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	f.StringVar(&backendURL, "backend", "", "backend base URL")
	f.StringVar(&locale, "locale", "", "language for status text (en, fr)")
	f.BoolVar(&autoplay, "autoplay", true, "start answers without a key press")
	f.BoolVar(&noStream, "no-stream", false, "download whole answers before playing")
	f.StringVar(&logFile, "log-file", "", "write logs to this file")
	f.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(chatCmd, askCmd, playCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
