// Command reconctl is the operator CLI for the reconciliation engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wastebroker/ops-platform/internal/config"
	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/reconcile"
)

type app struct {
	cfg *config.Config
	out io.Writer
}

func main() {
	if err := newRootCommand(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "reconctl",
		Short:         "Operate the vendor invoice reconciliation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.cfg = config.Load()
			logger.Init(a.cfg.LogLevel, a.cfg.Environment)
		},
	}
	root.SetOut(out)

	root.AddCommand(
		a.migrateCommand(),
		a.autoMatchCommand(),
		a.matchesCommand(),
		a.settingsCommand(),
		a.similarityCommand(),
		a.tokenCommand(),
	)
	return root
}

// withEngine connects to the database and hands fn a ready engine
func (a *app) withEngine(ctx context.Context, fn func(*reconcile.Service) error) error {
	db, err := database.Connect(a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := reconcile.NewService(reconcile.NewPostgresTransactor(db), reconcile.Config{
		DateWindowDays:      a.cfg.Reconciliation.DateWindowDays,
		MaxDescriptionRunes: a.cfg.Reconciliation.MaxDescriptionRunes,
		Defaults: reconcile.SettingsDefaults{
			FuzzyMatchThreshold:      a.cfg.Reconciliation.DefaultFuzzyThreshold,
			PriceTolerancePercentage: a.cfg.Reconciliation.DefaultPriceTolerance,
			AutoApproveExactMatches:  a.cfg.Reconciliation.DefaultAutoApproveExact,
		},
	})
	return fn(engine)
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUUIDFlag(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", name, err)
	}
	return id, nil
}
