package run

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tphakala/birdnotifier/internal/app"
	"github.com/tphakala/birdnotifier/internal/conf"
	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
)

// Command returns the cobra command that performs one notification run
func Command(settings *conf.Settings) *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch notable observations and e-mail the new ones",
		Long: `Fetch recent notable observations for the configured region, drop excluded
species and observations notified by an earlier run, e-mail the rest and record them
in the ledger file. Meant to be started by cron or a systemd timer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("ledger") {
				settings.Ledger.Path = ledgerPath
			}
			return execute(cmd, settings)
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", conf.DefaultLedgerPath, "Ledger file path, empty disables persistence")

	return cmd
}

func execute(cmd *cobra.Command, settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return errors.New(fmt.Errorf("error validating settings: %w", err)).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	log := logger.Global()

	if settings.Ledger.Path != "" {
		unlock, err := lockLedger(settings.Ledger.Path)
		if err != nil {
			return err
		}
		defer unlock()
	}

	r, err := app.NewRun(afero.NewOsFs(), settings, log, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, runErr := r.Pipeline.Run(ctx)

	// Metrics describe failed runs too
	if r.Export.Enabled() {
		if err := r.Metrics.Export(ctx, r.Export, log); err != nil {
			log.Module("metrics").Warn("Failed to export run metrics", logger.Error(err))
		}
	}

	return runErr
}

// lockLedger keeps overlapping runs from notifying the same observations twice
func lockLedger(ledgerPath string) (func(), error) {
	lockPath := ledgerPath + ".lock"
	lock := flock.New(lockPath)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to lock ledger: %w", err)).
			Component("run").
			Category(errors.CategoryFileIO).
			Context("lock_path", lockPath).
			Build()
	}
	if !ok {
		return nil, errors.Newf("another run holds the ledger lock %s", lockPath).
			Component("run").
			Category(errors.CategoryFileIO).
			Build()
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Global().Module("run").Warn("Failed to release ledger lock",
				logger.String("lock_path", lockPath), logger.Error(err))
		}
	}, nil
}
