package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sydlexius/linernotes/internal/version"
)

// cli carries the parsed global flags and the app built from them.
type cli struct {
	opts appOptions
	app  *app
}

// close releases the app. Cobra skips post-run hooks when a command
// fails, so main calls this after Execute.
func (c *cli) close() {
	if c.app != nil {
		c.app.close()
		c.app = nil
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "linernotes",
		Short:         "Reconcile music credits across MusicBrainz, Wikipedia and Spotify",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s)", version.Version, version.Commit),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.opts.configPath == "" {
				c.opts.configPath = os.Getenv("LN_CONFIG_PATH")
			}
			a, err := newApp(cmd.Context(), c.opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&c.opts.configPath, "config", "c", "", "config file (default $LN_CONFIG_PATH)")
	f.StringSliceVar(&c.opts.envFiles, "env-file", []string{".env"}, "KEY=value files loaded before the config")
	f.StringVar(&c.opts.logLevel, "log-level", "", "override the configured log level")
	f.StringVar(&c.opts.logFile, "log-file", "", "also write logs to this rotating file")
	f.BoolVarP(&c.opts.quiet, "quiet", "q", false, "with --log-file, keep logs off the console")
	f.BoolVar(&c.opts.jsonOut, "json", false, "print results as JSON")
	f.BoolVar(&c.opts.watch, "watch-config", true, "apply logging changes from the config file while running")

	root.AddCommand(
		c.creditsCmd(),
		c.discographyCmd(),
		c.playlistCmd(),
		c.maintenanceCmd(),
		c.backupCmd(),
		c.providersCmd(),
	)
	return root
}
