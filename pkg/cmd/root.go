package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/plexar-dev/plexar/config"
	"github.com/plexar-dev/plexar/pkg/log"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "plexar",
	Short: "Plexar issues and inspects requests through configurable fetch channels.",
	Long: `The Plexar CLI drives the fetch pipeline from the command line: build
requests, follow or inspect redirects, and exercise the verb helpers against
any HTTP destination.
`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := []log.Option{log.WithAlsoLogToStderr()}
		if config.Verbose {
			opts = append(opts, log.WithLevel(log.DebugLevel))
		}
		return log.Init(opts...)
	},
}

// ExecuteContext executes root command with context.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.ConfigFile, "config", "", "Config file (default is $HOME/.plexar/config.yaml).")
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Enable verbose output.")
}
