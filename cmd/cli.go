// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tempokey/internal/config"
	"tempokey/pkg/build"
)

// One-off commands reported through Config.Command.
const (
	CommandList    = "list"
	CommandListTUI = "list-tui"
	CommandVersion = "version"
	CommandHelp    = "help"
)

type flags struct {
	configPath string
	device     string
	headless   bool
	verbose    bool
	wsAddr     string
	udpTarget  string
	noWS       bool
}

// ParseArgs parses args, loads the configuration file and applies explicitly
// set flags on top of it.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	var (
		f       flags
		options *config.Config
	)

	load := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(f.configPath)
		if err != nil {
			return err
		}
		fs := cmd.Flags()
		if fs.Changed("device") {
			cfg.Capture.Device = f.device
		}
		if fs.Changed("headless") {
			cfg.Headless = f.headless
		}
		if f.verbose {
			cfg.Debug = true
			cfg.LogLevel = "debug"
		}
		if fs.Changed("ws-addr") {
			cfg.Transport.WSEnabled = true
			cfg.Transport.WSAddr = f.wsAddr
		}
		if f.noWS {
			cfg.Transport.WSEnabled = false
		}
		if fs.Changed("udp") {
			cfg.Transport.UDPEnabled = f.udpTarget != ""
			cfg.Transport.UDPTargetAddress = f.udpTarget
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		options = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:               buildInfo.Name,
		Short:             buildInfo.Description,
		Version:           buildInfo.Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: load,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Run command, the same as no command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Analyze system audio and show tempo and key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	})

	// List command
	var listTUI bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List capture devices of every backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			if listTUI {
				options.Command = CommandListTUI
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listTUI, "tui", false, "Browse devices interactively")
	rootCmd.AddCommand(listCmd)

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandVersion
			fmt.Fprintln(cmd.OutOrStdout(), buildInfo.String())
			return nil
		},
	})

	// Configuration
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "",
		"Path to a YAML configuration file (default: ./config.yaml if present)")

	// Capture
	pf.StringVarP(&f.device, "device", "d", config.DefaultDevice,
		"Capture device name substring or index. Use 'list' command to see available devices.")

	// Output
	pf.BoolVar(&f.headless, "headless", false,
		"Log tempo and key changes instead of running the terminal monitor")
	pf.StringVar(&f.wsAddr, "ws-addr", config.DefaultWSAddr,
		"Serve events over WebSocket on this address")
	pf.BoolVar(&f.noWS, "no-ws", false,
		"Disable the WebSocket event server")
	pf.StringVar(&f.udpTarget, "udp", "",
		"Send the visualization feed to this host:port over UDP")

	// Debug Configuration
	pf.BoolVarP(&f.verbose, "verbose", "v", config.DefaultVerbosity,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options == nil {
		// --help and --version exit before the configuration is loaded.
		return &config.Config{Command: CommandHelp}, nil
	}
	return options, nil
}
