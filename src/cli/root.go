// Package cli wires configuration, storage and the front ends into the
// placesbot command.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"places_bot/src/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string

	cfg    *config.Config
	log    *slog.Logger
	getenv func(string) string
}

// NewRootCommand creates the root command for the placesbot CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Getenv)
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	opts := &RootOptions{getenv: getenv}

	cmd := &cobra.Command{
		Use:   "placesbot",
		Short: "Places lookup service",
		Long: `Keeps a table of places imported from Geoapify and serves it over a
Telegram bot and a JSON HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "placesbot.toml", "path to a TOML or YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg := config.New()
	if err := cfg.LoadFile(o.ConfigPath); err != nil {
		return err
	}
	cfg.ApplyEnv(o.getenv)
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	o.cfg = cfg
	o.log = cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(o.log)
	return nil
}
