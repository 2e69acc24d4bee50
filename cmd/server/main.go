// Package main is the entry point for the postboard server.
//
// The main package is kept minimal: it reads configuration, builds the
// logger and hands off to internal/server. All actual logic lives in the
// internal packages.
//
// COMMANDS:
//
//	postboard serve                        run the HTTP API
//	postboard migrate                      apply pending schema migrations
//	postboard user create --username ...   seed an account and print a token
//	postboard version                      print the build version
//
// Every command reads the same settings; see internal/config for flags and
// POSTBOARD_* environment variables.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/postboard/internal/config"
)

// version is set at build time: -ldflags "-X main.version=v1.2.3"
var version = "dev"

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "postboard",
		Short: "Post feed with a vote ledger and score aggregation",
		Long: `postboard serves a newest-first post feed where every signed-in user
can up- or down-vote each post once. Configuration can be set via flags or
environment variables named POSTBOARD_<FLAG> (e.g. POSTBOARD_DB_PATH).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			config.LoadEnvFiles()
			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			}))
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newUserCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
