package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/middleware"
	"github.com/wastebroker/ops-platform/internal/models"
	"github.com/wastebroker/ops-platform/internal/reconcile"
)

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Connect(a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RunMigrations(cmd.Context(), db)
		},
	}
}

func (a *app) autoMatchCommand() *cobra.Command {
	var orgFlag, invoiceFlag, poFlag string

	cmd := &cobra.Command{
		Use:   "auto-match",
		Short: "Reconcile one vendor invoice and print the decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseUUIDFlag("org", orgFlag)
			if err != nil {
				return err
			}
			invoiceID, err := parseUUIDFlag("invoice", invoiceFlag)
			if err != nil {
				return err
			}
			req := reconcile.AutoMatchRequest{VendorInvoiceID: invoiceID}
			if poFlag != "" {
				poID, err := parseUUIDFlag("po", poFlag)
				if err != nil {
					return err
				}
				req.POID = &poID
			}

			return a.withEngine(cmd.Context(), func(engine *reconcile.Service) error {
				results, err := engine.AutoMatchInvoice(cmd.Context(), orgID, req)
				if err != nil {
					return err
				}
				return a.printJSON(results)
			})
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "organization ID")
	cmd.Flags().StringVar(&invoiceFlag, "invoice", "", "vendor invoice ID")
	cmd.Flags().StringVar(&poFlag, "po", "", "purchase order ID to match against instead of resolving one")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("invoice")
	return cmd
}

func (a *app) matchesCommand() *cobra.Command {
	var orgFlag, invoiceFlag string
	var discrepancies bool

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List active match records (or discrepancies) of a vendor invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseUUIDFlag("org", orgFlag)
			if err != nil {
				return err
			}
			invoiceID, err := parseUUIDFlag("invoice", invoiceFlag)
			if err != nil {
				return err
			}

			return a.withEngine(cmd.Context(), func(engine *reconcile.Service) error {
				if discrepancies {
					list, err := engine.ListDiscrepancies(cmd.Context(), orgID, invoiceID)
					if err != nil {
						return err
					}
					return a.printJSON(list)
				}
				list, err := engine.ListMatches(cmd.Context(), orgID, invoiceID)
				if err != nil {
					return err
				}
				return a.printJSON(list)
			})
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "organization ID")
	cmd.Flags().StringVar(&invoiceFlag, "invoice", "", "vendor invoice ID")
	cmd.Flags().BoolVar(&discrepancies, "discrepancies", false, "list discrepancies instead of match records")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("invoice")
	return cmd
}

func (a *app) settingsCommand() *cobra.Command {
	var orgFlag string

	settings := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change a tenant's reconciliation settings",
	}
	settings.PersistentFlags().StringVar(&orgFlag, "org", "", "organization ID")
	_ = settings.MarkPersistentFlagRequired("org")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print settings, creating defaults on first access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseUUIDFlag("org", orgFlag)
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), func(engine *reconcile.Service) error {
				s, err := engine.GetSettings(cmd.Context(), orgID)
				if err != nil {
					return err
				}
				return a.printJSON(s)
			})
		},
	}

	var fuzzy, tolerance float64
	var autoApprove bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Change thresholds; only the flags given are updated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseUUIDFlag("org", orgFlag)
			if err != nil {
				return err
			}

			req := &models.UpdateReconciliationSettingsRequest{}
			if cmd.Flags().Changed("fuzzy-threshold") {
				req.FuzzyMatchThreshold = &fuzzy
			}
			if cmd.Flags().Changed("price-tolerance") {
				req.PriceTolerancePercentage = &tolerance
			}
			if cmd.Flags().Changed("auto-approve-exact") {
				req.AutoApproveExactMatches = &autoApprove
			}
			if req.FuzzyMatchThreshold == nil && req.PriceTolerancePercentage == nil && req.AutoApproveExactMatches == nil {
				return fmt.Errorf("nothing to update")
			}

			return a.withEngine(cmd.Context(), func(engine *reconcile.Service) error {
				s, err := engine.UpdateSettings(cmd.Context(), orgID, req)
				if err != nil {
					return err
				}
				return a.printJSON(s)
			})
		},
	}
	set.Flags().Float64Var(&fuzzy, "fuzzy-threshold", 0, "minimum similarity (0-100) for a fuzzy match")
	set.Flags().Float64Var(&tolerance, "price-tolerance", 0, "allowed price deviation in percent (0-100)")
	set.Flags().BoolVar(&autoApprove, "auto-approve-exact", false, "auto-approve exact matches within tolerance")

	settings.AddCommand(get, set)
	return settings
}

func (a *app) similarityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <description> <description>",
		Short: "Print the similarity score (0-100) of two line item descriptions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score := reconcile.SimilarityWithLimit(args[0], args[1], a.cfg.Reconciliation.MaxDescriptionRunes)
			_, err := fmt.Fprintf(a.out, "%.2f\n", score)
			return err
		},
	}
}

func (a *app) tokenCommand() *cobra.Command {
	var orgFlag, userFlag, role, email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseUUIDFlag("org", orgFlag)
			if err != nil {
				return err
			}
			userID := uuid.New()
			if userFlag != "" {
				if userID, err = parseUUIDFlag("user", userFlag); err != nil {
					return err
				}
			}

			switch models.Role(role) {
			case models.RoleViewer, models.RoleReviewer, models.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := middleware.IssueToken(a.cfg.JWTSecret, models.Principal{
				UserID:         userID,
				OrganizationID: orgID,
				Email:          email,
				Role:           models.Role(role),
			}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, token)
			return err
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "organization ID")
	cmd.Flags().StringVar(&userFlag, "user", "", "user ID (random if omitted)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleReviewer), "viewer, reviewer or admin")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
