package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lysyi3m/season-rank/app/cfg"
	"github.com/lysyi3m/season-rank/app/refresh"
)

type commandContext struct {
	envFile    string
	dataDir    string
	jsonOutput bool
	debug      bool
}

// components loads configuration the same way the server does and builds
// the refresh pipeline. Logs go to stderr so stdout stays parseable.
func (c *commandContext) components() (*refresh.Components, error) {
	var args []string
	if c.envFile != "" {
		args = append(args, "--env-file", c.envFile)
	}
	if c.dataDir != "" {
		args = append(args, "--data-dir", c.dataDir)
	}

	conf, err := cfg.Load(args)
	if err != nil {
		return nil, err
	}
	if conf == nil {
		return nil, errors.New("configuration not loaded")
	}

	level := slog.LevelWarn
	if c.debug || conf.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return refresh.Build(conf)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "seasonctl",
		Short:         "Refresh and inspect seasonal ranking documents",
		Version:       cfg.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", "", "dotenv file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&ctx.dataDir, "data-dir", "", "Directory holding the season documents")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&ctx.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newUpdateCommand(ctx))
	rootCmd.AddCommand(newSeasonCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))

	return rootCmd
}
