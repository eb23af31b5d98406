package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnotifier/cmd/authorize"
	"github.com/tphakala/birdnotifier/cmd/config"
	"github.com/tphakala/birdnotifier/cmd/run"
	"github.com/tphakala/birdnotifier/cmd/taxonomy"
	"github.com/tphakala/birdnotifier/internal/app"
	"github.com/tphakala/birdnotifier/internal/conf"
	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/notifier"
	"github.com/tphakala/birdnotifier/internal/privacy"
)

// cli holds state shared by the root command and its sub-commands
type cli struct {
	settings   *conf.Settings
	configFile string
	debug      bool
	central    *logger.CentralLogger
}

// RootCommand creates and returns the root command. settings is filled in before any
// sub-command runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	return newCLI(settings).command()
}

func newCLI(settings *conf.Settings) *cli {
	return &cli{settings: settings}
}

func (c *cli) command() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "birdnotifier",
		Short:         "E-mail new notable eBird observations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/birdnotifier, /etc/birdnotifier)")
	rootCmd.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		run.Command(c.settings),
		authorize.Command(c.settings),
		taxonomy.Command(c.settings),
		config.Command(c.settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.initialize(cmd.ErrOrStderr())
	}

	return rootCmd
}

// initialize is called before any sub-command runs. It reads the configuration and
// sets up the central logger; validation is left to the commands needing it.
func (c *cli) initialize(console io.Writer) error {
	loaded, err := conf.Read(c.configFile)
	if err != nil {
		return err
	}
	if c.debug {
		loaded.Debug = true
	}
	*c.settings = *loaded

	central, err := logger.NewCentralLogger(app.LoggingConfig(c.settings, &logger.ConsoleOutput{
		Enabled: true,
		Writer:  console,
	}))
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	c.central = central
	logger.SetGlobal(central)

	logger.Global().Module("main").Debug("Configuration loaded",
		logger.String("config_file", c.settings.ConfigFile),
		logger.Bool("debug", c.settings.Debug))
	return nil
}

// close flushes and closes the log outputs
func (c *cli) close() {
	if c.central == nil {
		return
	}
	_ = c.central.Close()
	logger.SetGlobal(nil)
}

// Execute runs the command line and returns the process exit code. Failures are
// reported as one log line.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := newCLI(&conf.Settings{})
	rootCmd := c.command()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		reportError(stderr, err, c.central != nil)
	}
	c.close()

	if err != nil {
		return 1
	}
	return 0
}

// reportError logs err once, naming the failed stage of a run
func reportError(stderr io.Writer, err error, logging bool) {
	if !logging {
		// Configuration or flag errors happen before the logger exists
		fmt.Fprintf(stderr, "Error: %s\n", privacy.ScrubMessage(errors.Describe(err)))
		return
	}

	fields := []logger.Field{
		logger.Error(err),
		logger.String("category", string(errors.CategoryOf(err))),
	}
	var stageErr *notifier.StageError
	if errors.As(err, &stageErr) {
		fields = append(fields, logger.String("stage", string(stageErr.Stage)))
	}
	logger.Global().Module("main").Error("Command failed", fields...)
}
