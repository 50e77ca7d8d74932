package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"devactivate/internal/config"
)

var (
	// Global flags
	debug          bool
	udid           string
	serviceURL     string
	deviceInfoPath string
	configPath     string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "devactivate",
	Short: "Activate or deactivate a mobile device against its activation service",
	Long: `devactivate drives the device activation protocol: it assembles an
activation request from the device's identity fields, submits it to the
vendor's activation web service, interprets the reply (plist, BuddyML or
HTML dialect), prompts for any additional fields the server demands, and
applies the resulting activation record to the device.

Device identity is read from a property-list file (--device-info); the
on-device transport is outside the scope of this tool.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		if debug {
			cfg = zap.NewDevelopmentConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable communication debugging")
	rootCmd.PersistentFlags().StringVarP(&udid, "udid", "u", "", "target specific device by its 40-digit device UDID")
	rootCmd.PersistentFlags().StringVarP(&serviceURL, "service", "s", "", "use activation webservice at URL instead of default")
	rootCmd.PersistentFlags().StringVarP(&deviceInfoPath, "device-info", "i", "", "path to the device property-list file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the devactivate config file")

	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
	rootCmd.AddCommand(stateCmd)

	rootCmd.Version = "1.0.0"
}

// loadConfig merges the config file with command-line overrides. Flags win.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serviceURL != "" {
		cfg.ServiceURL = serviceURL
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
