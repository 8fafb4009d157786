package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/VlasiukRV/realtime-transcription/internal/api"
	"github.com/VlasiukRV/realtime-transcription/internal/config"
)

// version is reported to Sentry as the release.
var version = "dev"

var (
	// Global flags
	cfgFile   string
	serverURL string
	language  string
	mute      bool
	playerCmd string

	// Global configuration
	globalConfig *config.Config
)

// rootCmd runs the live captions TUI.
var rootCmd = &cobra.Command{
	Use:   "captions",
	Short: "Live captions and spoken translation in the terminal",
	Long: `captions connects to a realtime transcription server, shows translated
captions as they arrive and plays the synthesized speech in order.

Examples:
  # Follow Russian captions from a local server
  captions --server http://localhost:8000 --lang ru

  # Captions only, no audio
  captions --mute

  # Play clips with mpv instead of ffplay
  captions --player "mpv --no-video --really-quiet {file}"
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return initConfig()
	},
	RunE: runTUI,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (http, https, ws or wss)")
	rootCmd.Flags().StringVar(&language, "lang", "", "caption language to select and remember")
	rootCmd.Flags().BoolVar(&mute, "mute", false, "show captions without playing audio")
	rootCmd.Flags().StringVar(&playerCmd, "player", "", `audio player command, "{file}" is replaced by the clip path`)

	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if language != "" {
		cfg.Language = language
	}
	if mute {
		cfg.Playback.Mute = true
	}
	if playerCmd != "" {
		cfg.Playback.Command = strings.Fields(playerCmd)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	globalConfig = cfg
	return nil
}

// getConfig returns the global configuration
func getConfig() *config.Config {
	return globalConfig
}

func newClient() (*api.Client, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return api.New(cfg.ServerURL, cfg.RequestTimeout.Std())
}
