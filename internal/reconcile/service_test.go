package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastebroker/ops-platform/internal/models"
)

func TestAutoMatchInvoice_ExactAutoApprove(t *testing.T) {
	f := newFixture(t)
	f.setSettings("80", "5", true)
	po := f.addPO("PO-2024-00001", day("2024-03-01"), "500.00", models.ServiceScopeNonRecurring, line{"Weekly pickup", "500.00"})
	inv := f.addInvoice(day("2024-03-15"), "500.00", line{"Weekly pickup", "500.00"})

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, models.OutcomeExact, r.MatchType)
	assert.Equal(t, models.ActionAutoApprove, r.RecommendedAction)
	assert.Equal(t, 100.0, r.SimilarityScore)
	assert.True(t, r.PriceDifference.IsZero())
	require.NotNil(t, r.POLineItemID)
	assert.Equal(t, f.store.poItems[po.ID][0].ID, *r.POLineItemID)
	assert.Equal(t, po.ID, *r.PurchaseOrderID)
	assert.Equal(t, "date_window", r.ResolutionStrategy)
	assert.Nil(t, r.DiscrepancyID)

	require.Len(t, f.store.records, 1)
	record := f.store.records[0]
	assert.Equal(t, r.MatchRecordID, record.ID)
	assert.Equal(t, models.DecisionApproved, record.Decision)
	assert.NotNil(t, record.MatchedAt)
	assert.Nil(t, record.MatchedBy, "system approval has no user")
	assert.Empty(t, f.store.discrepancies)

	item := f.store.lineItem(r.VendorLineItemID)
	assert.Equal(t, models.OutcomeExact, item.ComparisonOutcome)
	assert.Equal(t, r.POLineItemID, item.POLineItemID)
}

func TestAutoMatchInvoice_ReviewRaisesMediumDiscrepancy(t *testing.T) {
	f := newFixture(t)
	f.setSettings("80", "5", false)
	f.addPO("PO-2024-00001", day("2024-03-01"), "600.00", models.ServiceScopeNonRecurring,
		line{"Weekly pickup", "500.00"},
		line{"Container swaps", "100.00"},
	)
	inv := f.addInvoice(day("2024-03-15"), "604.00",
		line{"Weekly pickup", "500.00"},
		line{"Container swap", "104.00"},
	)

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.OutcomeExact, results[0].MatchType)
	assert.Equal(t, models.ActionReview, results[0].RecommendedAction)
	assert.Equal(t, models.OutcomeFuzzy, results[1].MatchType)
	assert.Equal(t, models.ActionReview, results[1].RecommendedAction)

	for _, rec := range f.store.records {
		assert.Equal(t, models.DecisionPending, rec.Decision)
		assert.Nil(t, rec.MatchedAt)
	}

	require.Len(t, f.store.discrepancies, 2)
	assert.Equal(t, models.DiscrepancyNoMatch, f.store.discrepancies[0].Type)
	assert.Equal(t, models.SeverityMedium, f.store.discrepancies[0].Severity)
	assert.Equal(t, models.DiscrepancyPriceMismatch, f.store.discrepancies[1].Type)
	assert.Equal(t, models.SeverityMedium, f.store.discrepancies[1].Severity)
	assert.True(t, f.store.discrepancies[1].AmountDifference.Equal(money("4")))
	assert.Equal(t, "100.00", *f.store.discrepancies[1].ExpectedValue)
	assert.Equal(t, "104.00", *f.store.discrepancies[1].ActualValue)
}

func TestAutoMatchInvoice_NoPOYieldsUnmatchedEverywhere(t *testing.T) {
	f := newFixture(t)
	// recurring PO that otherwise fits vendor, site, date and amount
	f.addPO("PO-2024-00009", day("2024-03-10"), "700.00", models.ServiceScopeRecurring,
		line{"Weekly pickup", "500.00"},
		line{"Fuel surcharge", "200.00"},
	)
	inv := f.addInvoice(day("2024-03-15"), "700.00",
		line{"Weekly pickup", "500.00"},
		line{"Fuel surcharge", "200.00"},
	)

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, models.OutcomeUnmatched, r.MatchType)
		assert.Equal(t, models.ActionFlagDiscrepancy, r.RecommendedAction)
		assert.Nil(t, r.POLineItemID)
		assert.Nil(t, r.PurchaseOrderID)
		assert.NotNil(t, r.DiscrepancyID)
	}

	noPO := f.store.discrepanciesOfType(models.DiscrepancyNoPO)
	assert.Len(t, noPO, 2)
	for _, d := range noPO {
		assert.Equal(t, models.SeverityHigh, d.Severity)
		assert.Equal(t, models.DiscrepancyOpen, d.Status)
	}
	for _, li := range f.store.lineItems {
		assert.Equal(t, models.OutcomeUnmatched, li.ComparisonOutcome)
	}
}

func TestAutoMatchInvoice_PriceOutsideTolerance(t *testing.T) {
	f := newFixture(t)
	f.addPO("PO-2024-00001", day("2024-03-01"), "100.00", models.ServiceScopeNonRecurring, line{"Container swap", "100.00"})
	inv := f.addInvoice(day("2024-03-15"), "105.01", line{"Container swap", "105.01"})

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeUnmatched, results[0].MatchType)
	assert.Nil(t, results[0].POLineItemID, "an out-of-tolerance candidate is not linked")
	assert.True(t, results[0].PriceDifference.Equal(money("5.01")))

	require.Len(t, f.store.discrepancies, 1)
	assert.Equal(t, models.DiscrepancyPriceMismatch, f.store.discrepancies[0].Type)
	assert.Equal(t, models.SeverityHigh, f.store.discrepancies[0].Severity)
}

func TestAutoMatchInvoice_ExplicitOverrideBeatsLinkedPO(t *testing.T) {
	f := newFixture(t)
	linked := f.addPO("PO-2024-00001", day("2024-03-01"), "500.00", models.ServiceScopeNonRecurring, line{"Weekly pickup", "500.00"})
	override := f.addPO("PO-2024-00002", day("2024-03-02"), "500.00", models.ServiceScopeNonRecurring, line{"Weekly pickup", "500.00"})
	inv := f.addInvoice(day("2024-03-15"), "500.00", line{"Weekly pickup", "500.00"})
	stored := f.store.invoices[inv.ID]
	stored.POID = &linked.ID
	f.store.invoices[inv.ID] = stored

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID, POID: &override.ID})

	require.NoError(t, err)
	assert.Equal(t, override.ID, *results[0].PurchaseOrderID)
	assert.Equal(t, f.store.poItems[override.ID][0].ID, *results[0].POLineItemID)
}

func TestAutoMatchInvoice_PONumberFromRawText(t *testing.T) {
	f := newFixture(t)
	po := f.addPO("PO-2024-00031", day("2023-11-01"), "500.00", models.ServiceScopeNonRecurring, line{"Weekly pickup", "500.00"})
	inv := f.addInvoice(day("2024-03-15"), "500.00", line{"Weekly pickup", "500.00"})
	stored := f.store.invoices[inv.ID]
	text := "ACME Hauling\nPurchase Order #: po-2024-00031\nTotal 500.00"
	stored.RawText = &text
	f.store.invoices[inv.ID] = stored

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.NoError(t, err)
	assert.Equal(t, po.ID, *results[0].PurchaseOrderID)
	assert.Equal(t, "ocr_po_number", results[0].ResolutionStrategy)
}

func TestAutoMatchInvoice_AlphanumericPONumberFromRawText(t *testing.T) {
	f := newFixture(t)
	po := f.addPO("PO-CT-001", day("2023-11-01"), "500.00", models.ServiceScopeNonRecurring, line{"Weekly pickup", "500.00"})
	inv := f.addInvoice(day("2024-03-15"), "500.00", line{"Weekly pickup", "500.00"})
	stored := f.store.invoices[inv.ID]
	text := "ACME Hauling\nPO #: PO-CT-001\nTotal 500.00"
	stored.RawText = &text
	f.store.invoices[inv.ID] = stored

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.NoError(t, err)
	require.NotNil(t, results[0].PurchaseOrderID)
	assert.Equal(t, po.ID, *results[0].PurchaseOrderID)
	assert.Equal(t, "ocr_po_number", results[0].ResolutionStrategy)
}

func TestAutoMatchInvoice_Errors(t *testing.T) {
	t.Run("invoice not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: uuid.New()})
		assert.Equal(t, CodeInvoiceNotFound, CodeOf(err))
	})

	t.Run("invoice of another tenant", func(t *testing.T) {
		f := newFixture(t)
		inv := f.addInvoice(day("2024-03-15"), "500.00", line{"Weekly pickup", "500.00"})
		_, err := f.service().AutoMatchInvoice(context.Background(), uuid.New(), AutoMatchRequest{VendorInvoiceID: inv.ID})
		assert.Equal(t, CodeInvoiceNotFound, CodeOf(err))
	})

	t.Run("no line items", func(t *testing.T) {
		f := newFixture(t)
		inv := f.addInvoice(day("2024-03-15"), "0.00")
		_, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})
		assert.Equal(t, CodeNoLineItems, CodeOf(err))
		assert.Empty(t, f.store.records)
	})
}

func TestAutoMatchInvoice_FailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	f.addPO("PO-2024-00001", day("2024-03-01"), "700.00", models.ServiceScopeNonRecurring,
		line{"Weekly pickup", "500.00"},
		line{"Fuel surcharge", "200.00"},
	)
	inv := f.addInvoice(day("2024-03-15"), "700.00",
		line{"Weekly pickup", "500.00"},
		line{"Fuel surcharge", "200.00"},
	)
	f.store.failAt["CreateDiscrepancy"] = 2

	results, err := f.service().AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.store.records)
	assert.Empty(t, f.store.discrepancies)
	for _, li := range f.store.lineItems {
		assert.Equal(t, models.OutcomePending, li.ComparisonOutcome)
		assert.Nil(t, li.POLineItemID)
	}
}

func TestAutoMatchInvoice_RerunSupersedes(t *testing.T) {
	f := newFixture(t)
	f.addPO("PO-2024-00001", day("2024-03-01"), "600.00", models.ServiceScopeNonRecurring,
		line{"Weekly pickup", "500.00"},
		line{"Container swap", "100.00"},
	)
	inv := f.addInvoice(day("2024-03-15"), "600.00",
		line{"Weekly pickup", "500.00"},
		line{"Container swap", "100.00"},
	)
	svc := f.service()

	_, err := svc.AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})
	require.NoError(t, err)
	second, err := svc.AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})
	require.NoError(t, err)

	assert.Len(t, f.store.records, 4)
	active, err := svc.ListMatches(context.Background(), f.orgID, inv.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, second[0].MatchRecordID, active[0].ID)
	assert.Equal(t, second[1].MatchRecordID, active[1].ID)

	discrepancies, err := svc.ListDiscrepancies(context.Background(), f.orgID, inv.ID)
	require.NoError(t, err)
	require.Len(t, discrepancies, 4)
	assert.Equal(t, models.DiscrepancySuperseded, discrepancies[0].Status)
	assert.Equal(t, models.DiscrepancySuperseded, discrepancies[1].Status)
	assert.Equal(t, models.DiscrepancyOpen, discrepancies[2].Status)
	assert.Equal(t, models.DiscrepancyOpen, discrepancies[3].Status)
}

func TestAutoMatchInvoice_ApprovedMatchLocksRerun(t *testing.T) {
	f := newFixture(t)
	f.addPO("PO-2024-00001", day("2024-03-01"), "500.00", models.ServiceScopeNonRecurring, line{"Weekly pickup", "500.00"})
	inv := f.addInvoice(day("2024-03-15"), "500.00", line{"Weekly pickup", "500.00"})
	svc := f.service()

	results, err := svc.AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})
	require.NoError(t, err)
	_, err = svc.ApproveMatch(context.Background(), f.orgID, f.userID, results[0].MatchRecordID, ReviewRequest{})
	require.NoError(t, err)

	_, err = svc.AutoMatchInvoice(context.Background(), f.orgID, AutoMatchRequest{VendorInvoiceID: inv.ID})

	assert.Equal(t, CodeMatchLocked, CodeOf(err))
	assert.Len(t, f.store.records, 1)
}

func TestSettings_DefaultsCreatedOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	first, err := svc.GetSettings(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.True(t, first.FuzzyMatchThreshold.Equal(money("80")))
	assert.True(t, first.PriceTolerancePercentage.Equal(money("5")))
	assert.False(t, first.AutoApproveExactMatches)

	_, err = svc.GetSettings(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Len(t, f.store.settings, 1)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	threshold := 90.0
	approve := true

	updated, err := svc.UpdateSettings(context.Background(), f.orgID, &models.UpdateReconciliationSettingsRequest{
		FuzzyMatchThreshold:     &threshold,
		AutoApproveExactMatches: &approve,
	})

	require.NoError(t, err)
	assert.True(t, updated.FuzzyMatchThreshold.Equal(money("90")))
	assert.True(t, updated.PriceTolerancePercentage.Equal(money("5")), "unset fields keep their value")
	assert.True(t, f.store.settings[f.orgID].AutoApproveExactMatches)

	tooHigh := 100.5
	_, err = svc.UpdateSettings(context.Background(), f.orgID, &models.UpdateReconciliationSettingsRequest{
		PriceTolerancePercentage: &tooHigh,
	})
	assert.Equal(t, CodeInvalidSettings, CodeOf(err))
	assert.True(t, f.store.settings[f.orgID].PriceTolerancePercentage.Equal(money("5")))
}

func TestListing_UnknownInvoice(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	_, err := svc.ListMatches(context.Background(), f.orgID, uuid.New())
	assert.Equal(t, CodeInvoiceNotFound, CodeOf(err))

	_, err = svc.ListDiscrepancies(context.Background(), f.orgID, uuid.New())
	assert.Equal(t, CodeInvoiceNotFound, CodeOf(err))
}
