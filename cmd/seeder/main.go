package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wastebroker/ops-platform/internal/config"
	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/middleware"
	"github.com/wastebroker/ops-platform/internal/models"
)

type seeded struct {
	OrgID         uuid.UUID
	VendorID      uuid.UUID
	ClientID      uuid.UUID
	SiteID        uuid.UUID
	POID          uuid.UUID
	RecurringPOID uuid.UUID
	InvoiceID     uuid.UUID
}

func main() {
	var orgName string
	var tokenTTL time.Duration

	cmd := &cobra.Command{
		Use:   "seeder",
		Short: "Seed a demo tenant with purchase orders and a vendor invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.LogLevel, cfg.Environment)
			log := logger.WithComponent("seeder")

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if err := database.RunMigrations(ctx, db); err != nil {
				return err
			}

			var out seeded
			if err := db.InTx(ctx, func(q *database.Queries) error {
				var err error
				out, err = seed(ctx, q, orgName)
				return err
			}); err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}

			log.Info().
				Str("organization_id", out.OrgID.String()).
				Str("vendor_invoice_id", out.InvoiceID.String()).
				Msg("demo tenant seeded")

			token, err := middleware.IssueToken(cfg.JWTSecret, models.Principal{
				UserID:         uuid.New(),
				OrganizationID: out.OrgID,
				Email:          "admin@demo.local",
				Role:           models.RoleAdmin,
			}, tokenTTL)
			if err != nil {
				return err
			}

			fmt.Printf("organization_id:   %s\n", out.OrgID)
			fmt.Printf("purchase_order_id: %s\n", out.POID)
			fmt.Printf("recurring_po_id:   %s\n", out.RecurringPOID)
			fmt.Printf("vendor_invoice_id: %s\n", out.InvoiceID)
			fmt.Printf("admin token:       %s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgName, "org-name", "Demo Brokerage", "Name of the seeded organization")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of the printed admin token")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, q *database.Queries, orgName string) (seeded, error) {
	var out seeded
	var err error

	if out.OrgID, err = q.CreateOrganization(ctx, orgName); err != nil {
		return out, err
	}
	if out.VendorID, err = q.CreateVendor(ctx, out.OrgID, "Metro Hauling"); err != nil {
		return out, err
	}
	if out.ClientID, err = q.CreateClient(ctx, out.OrgID, "Acme Foods"); err != nil {
		return out, err
	}
	if out.SiteID, err = q.CreateSite(ctx, out.OrgID, out.ClientID, "Acme Plant 3"); err != nil {
		return out, err
	}

	poDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	delivery := poDate.AddDate(0, 0, 10)

	oneOff := &models.PurchaseOrderWithItems{
		PurchaseOrder: models.PurchaseOrder{
			OrganizationID:       out.OrgID,
			PONumber:             "PO-2024-00031",
			VendorID:             out.VendorID,
			ClientID:             &out.ClientID,
			SiteID:               &out.SiteID,
			PODate:               poDate,
			ExpectedDeliveryDate: &delivery,
			Total:                decimal.RequireFromString("805.00"),
			Status:               models.POStatusApproved,
			ServiceScope:         models.ServiceScopeNonRecurring,
		},
		Items: []models.POLineItem{
			poLine(1, "40 yd roll-off haul", "450.00"),
			poLine(2, "Disposal fee per ton", "320.00"),
			poLine(3, "Fuel surcharge", "35.00"),
		},
	}
	if err := q.CreatePurchaseOrder(ctx, oneOff); err != nil {
		return out, fmt.Errorf("failed to create purchase order: %w", err)
	}
	out.POID = oneOff.ID

	// Standing contract; never a reconciliation candidate
	recurring := &models.PurchaseOrderWithItems{
		PurchaseOrder: models.PurchaseOrder{
			OrganizationID: out.OrgID,
			PONumber:       "PO-2024-00007",
			VendorID:       out.VendorID,
			ClientID:       &out.ClientID,
			SiteID:         &out.SiteID,
			PODate:         poDate.AddDate(0, -2, 0),
			Total:          decimal.RequireFromString("520.00"),
			Status:         models.POStatusApproved,
			ServiceScope:   models.ServiceScopeRecurring,
		},
		Items: []models.POLineItem{
			poLine(1, "Weekly 8 yd front-load service", "520.00"),
		},
	}
	if err := q.CreatePurchaseOrder(ctx, recurring); err != nil {
		return out, fmt.Errorf("failed to create recurring purchase order: %w", err)
	}
	out.RecurringPOID = recurring.ID

	invoiceNumber := "MH-88412"
	rawText := "METRO HAULING\nInvoice MH-88412\nPurchase Order #: PO-2024-00031\nService: Acme Plant 3"
	invoice, err := q.CreateVendorInvoice(ctx, &models.CreateVendorInvoiceRequest{
		OrganizationID: out.OrgID,
		VendorID:       out.VendorID,
		ClientID:       &out.ClientID,
		SiteID:         &out.SiteID,
		InvoiceNumber:  &invoiceNumber,
		InvoiceDate:    poDate.AddDate(0, 0, 14),
		Total:          decimal.RequireFromString("861.00"),
		RawText:        &rawText,
		Items: []models.CreateVendorLineItemRequest{
			invoiceLine("40yd roll off haul", "450.00"),
			invoiceLine("Disposal fee - per ton", "336.00"),
			invoiceLine("Container delivery", "75.00"),
		},
	})
	if err != nil {
		return out, fmt.Errorf("failed to create vendor invoice: %w", err)
	}
	out.InvoiceID = invoice.ID

	return out, nil
}

func poLine(n int, description, amount string) models.POLineItem {
	return models.POLineItem{
		LineNumber:  n,
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		Amount:      decimal.RequireFromString(amount),
	}
}

func invoiceLine(description, amount string) models.CreateVendorLineItemRequest {
	return models.CreateVendorLineItemRequest{
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		Amount:      decimal.RequireFromString(amount),
	}
}
