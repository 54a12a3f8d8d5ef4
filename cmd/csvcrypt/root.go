package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvcrypt/internal/config"
	"github.com/JonMunkholm/csvcrypt/internal/core"
	"github.com/JonMunkholm/csvcrypt/internal/logging"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "csvcrypt",
		Short:         "Encrypt or decrypt the phone column of CSV files",
		Long:          "csvcrypt runs the console's batch transform against local files.\nSettings come from the same environment variables as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "environment file to load if present")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text, json (default from LOG_FORMAT)")

	cmd.AddCommand(
		newTransformCmd(opts, core.ModeEncrypt),
		newTransformCmd(opts, core.ModeDecrypt),
		newPreviewCmd(opts),
	)
	return cmd
}

// load reads the env file and configuration and sets up logging on stderr
// so stdout carries only command output.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		if _, err := os.Stat(o.envFile); err == nil {
			if err := godotenv.Overload(o.envFile); err != nil {
				return fmt.Errorf("load %s: %w", o.envFile, err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}

	logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	o.cfg = cfg
	return nil
}
