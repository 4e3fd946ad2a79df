package reconcile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/models"
)

var errBoom = errors.New("boom")

// fakeStore is an in-memory Store. InTx snapshots state and restores it when
// the callback fails, which is what the Postgres transaction does.
type fakeStore struct {
	poOrder       []uuid.UUID
	pos           map[uuid.UUID]models.PurchaseOrder
	poItems       map[uuid.UUID][]models.POLineItem
	invoices      map[uuid.UUID]models.VendorInvoice
	lineItems     []models.VendorLineItem
	records       []models.MatchRecord
	discrepancies []models.Discrepancy
	settings      map[uuid.UUID]models.ReconciliationSettings

	// failAt makes the named method fail on its nth call (1-based)
	failAt map[string]int
	calls  map[string]int
}

type fakeState struct {
	poOrder       []uuid.UUID
	pos           map[uuid.UUID]models.PurchaseOrder
	poItems       map[uuid.UUID][]models.POLineItem
	invoices      map[uuid.UUID]models.VendorInvoice
	lineItems     []models.VendorLineItem
	records       []models.MatchRecord
	discrepancies []models.Discrepancy
	settings      map[uuid.UUID]models.ReconciliationSettings
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pos:      make(map[uuid.UUID]models.PurchaseOrder),
		poItems:  make(map[uuid.UUID][]models.POLineItem),
		invoices: make(map[uuid.UUID]models.VendorInvoice),
		settings: make(map[uuid.UUID]models.ReconciliationSettings),
		failAt:   make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (s *fakeStore) InTx(ctx context.Context, fn func(Store) error) error {
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeStore) snapshot() fakeState {
	st := fakeState{
		poOrder:       append([]uuid.UUID(nil), s.poOrder...),
		pos:           make(map[uuid.UUID]models.PurchaseOrder, len(s.pos)),
		poItems:       make(map[uuid.UUID][]models.POLineItem, len(s.poItems)),
		invoices:      make(map[uuid.UUID]models.VendorInvoice, len(s.invoices)),
		lineItems:     append([]models.VendorLineItem(nil), s.lineItems...),
		records:       append([]models.MatchRecord(nil), s.records...),
		discrepancies: append([]models.Discrepancy(nil), s.discrepancies...),
		settings:      make(map[uuid.UUID]models.ReconciliationSettings, len(s.settings)),
	}
	for k, v := range s.pos {
		st.pos[k] = v
	}
	for k, v := range s.poItems {
		st.poItems[k] = append([]models.POLineItem(nil), v...)
	}
	for k, v := range s.invoices {
		st.invoices[k] = v
	}
	for k, v := range s.settings {
		st.settings[k] = v
	}
	return st
}

func (s *fakeStore) restore(st fakeState) {
	s.poOrder = st.poOrder
	s.pos = st.pos
	s.poItems = st.poItems
	s.invoices = st.invoices
	s.lineItems = st.lineItems
	s.records = st.records
	s.discrepancies = st.discrepancies
	s.settings = st.settings
}

func (s *fakeStore) fail(method string) error {
	s.calls[method]++
	if n, ok := s.failAt[method]; ok && s.calls[method] == n {
		return errBoom
	}
	return nil
}

// fixtures

type fixture struct {
	store  *fakeStore
	orgID  uuid.UUID
	vendor uuid.UUID
	client uuid.UUID
	site   uuid.UUID
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		store:  newFakeStore(),
		orgID:  uuid.New(),
		vendor: uuid.New(),
		client: uuid.New(),
		site:   uuid.New(),
		userID: uuid.New(),
	}
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type line struct {
	desc   string
	amount string
}

func (f *fixture) addPO(number string, poDate time.Time, total string, scope models.ServiceScope, lines ...line) models.PurchaseOrder {
	po := models.PurchaseOrder{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		PONumber:       number,
		VendorID:       f.vendor,
		ClientID:       &f.client,
		SiteID:         &f.site,
		PODate:         poDate,
		Total:          money(total),
		Status:         models.POStatusApproved,
		ServiceScope:   scope,
	}
	f.store.pos[po.ID] = po
	f.store.poOrder = append(f.store.poOrder, po.ID)

	items := make([]models.POLineItem, 0, len(lines))
	for i, l := range lines {
		items = append(items, models.POLineItem{
			ID:              uuid.New(),
			PurchaseOrderID: po.ID,
			LineNumber:      i + 1,
			Description:     l.desc,
			Quantity:        decimal.NewFromInt(1),
			Amount:          money(l.amount),
		})
	}
	f.store.poItems[po.ID] = items
	return po
}

func (f *fixture) addInvoice(invoiceDate time.Time, total string, lines ...line) models.VendorInvoice {
	inv := models.VendorInvoice{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		VendorID:       f.vendor,
		ClientID:       &f.client,
		SiteID:         &f.site,
		InvoiceDate:    invoiceDate,
		Total:          money(total),
	}
	f.store.invoices[inv.ID] = inv

	for i, l := range lines {
		f.store.lineItems = append(f.store.lineItems, models.VendorLineItem{
			ID:                uuid.New(),
			VendorInvoiceID:   inv.ID,
			LineNumber:        i + 1,
			Description:       l.desc,
			Quantity:          decimal.NewFromInt(1),
			Amount:            money(l.amount),
			ComparisonOutcome: models.OutcomePending,
		})
	}
	return inv
}

func (f *fixture) setSettings(threshold, tolerance string, autoApprove bool) {
	f.store.settings[f.orgID] = models.ReconciliationSettings{
		OrganizationID:           f.orgID,
		FuzzyMatchThreshold:      money(threshold),
		PriceTolerancePercentage: money(tolerance),
		AutoApproveExactMatches:  autoApprove,
	}
}

func (f *fixture) service() *Service {
	return NewService(f.store, Config{Defaults: DefaultSettings()})
}

func (s *fakeStore) lineItem(id uuid.UUID) models.VendorLineItem {
	for _, li := range s.lineItems {
		if li.ID == id {
			return li
		}
	}
	panic("line item not found")
}

func (s *fakeStore) discrepanciesOfType(typ models.DiscrepancyType) []models.Discrepancy {
	var out []models.Discrepancy
	for _, d := range s.discrepancies {
		if d.Type == typ {
			out = append(out, d)
		}
	}
	return out
}

// POReader

func (s *fakeStore) GetPurchaseOrder(ctx context.Context, orgID, poID uuid.UUID) (*models.PurchaseOrder, error) {
	if err := s.fail("GetPurchaseOrder"); err != nil {
		return nil, err
	}
	po, ok := s.pos[poID]
	if !ok || po.OrganizationID != orgID || po.DeletedAt != nil {
		return nil, database.ErrPurchaseOrderNotFound
	}
	return &po, nil
}

func (s *fakeStore) GetPurchaseOrderByNumber(ctx context.Context, orgID uuid.UUID, poNumber string) (*models.PurchaseOrder, error) {
	for _, id := range s.poOrder {
		po := s.pos[id]
		if po.OrganizationID == orgID && po.DeletedAt == nil && strings.EqualFold(po.PONumber, poNumber) {
			return &po, nil
		}
	}
	return nil, database.ErrPurchaseOrderNotFound
}

func (s *fakeStore) SearchPurchaseOrders(ctx context.Context, search models.PurchaseOrderSearch) ([]models.PurchaseOrder, error) {
	if err := s.fail("SearchPurchaseOrders"); err != nil {
		return nil, err
	}
	var out []models.PurchaseOrder
	for _, id := range s.poOrder {
		po := s.pos[id]
		if po.OrganizationID != search.OrganizationID || po.VendorID != search.VendorID {
			continue
		}
		if po.SiteID == nil || *po.SiteID != search.SiteID {
			continue
		}
		// Deliberately loose: scope, status and window are left to the
		// resolver so its own filtering is exercised.
		out = append(out, po)
	}
	return out, nil
}

func (s *fakeStore) ListPOLineItems(ctx context.Context, poID uuid.UUID) ([]models.POLineItem, error) {
	return append([]models.POLineItem{}, s.poItems[poID]...), nil
}

// Store

func (s *fakeStore) EnsureReconciliationSettings(ctx context.Context, defaults models.ReconciliationSettings) (*models.ReconciliationSettings, error) {
	if err := s.fail("EnsureReconciliationSettings"); err != nil {
		return nil, err
	}
	if existing, ok := s.settings[defaults.OrganizationID]; ok {
		return &existing, nil
	}
	s.settings[defaults.OrganizationID] = defaults
	return &defaults, nil
}

func (s *fakeStore) SaveReconciliationSettings(ctx context.Context, settings *models.ReconciliationSettings) error {
	if err := s.fail("SaveReconciliationSettings"); err != nil {
		return err
	}
	s.settings[settings.OrganizationID] = *settings
	return nil
}

func (s *fakeStore) GetVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error) {
	inv, ok := s.invoices[invoiceID]
	if !ok || inv.OrganizationID != orgID {
		return nil, database.ErrVendorInvoiceNotFound
	}
	return &inv, nil
}

func (s *fakeStore) LockVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error) {
	return s.GetVendorInvoice(ctx, orgID, invoiceID)
}

func (s *fakeStore) ListVendorLineItems(ctx context.Context, invoiceID uuid.UUID) ([]models.VendorLineItem, error) {
	items := []models.VendorLineItem{}
	for _, li := range s.lineItems {
		if li.VendorInvoiceID == invoiceID {
			items = append(items, li)
		}
	}
	return items, nil
}

func (s *fakeStore) GetVendorLineItem(ctx context.Context, orgID, lineItemID uuid.UUID) (*models.VendorLineItem, error) {
	for _, li := range s.lineItems {
		if li.ID != lineItemID {
			continue
		}
		if inv, ok := s.invoices[li.VendorInvoiceID]; ok && inv.OrganizationID == orgID {
			return &li, nil
		}
	}
	return nil, database.ErrLineItemNotFound
}

func (s *fakeStore) SetLineItemOutcome(ctx context.Context, lineItemID uuid.UUID, outcome models.ComparisonOutcome, poLineItemID *uuid.UUID) error {
	if err := s.fail("SetLineItemOutcome"); err != nil {
		return err
	}
	for i := range s.lineItems {
		if s.lineItems[i].ID == lineItemID {
			s.lineItems[i].ComparisonOutcome = outcome
			s.lineItems[i].POLineItemID = poLineItemID
			return nil
		}
	}
	return database.ErrLineItemNotFound
}

func (s *fakeStore) GetPOLineItem(ctx context.Context, orgID, poLineItemID uuid.UUID) (*models.POLineItem, error) {
	for poID, items := range s.poItems {
		po := s.pos[poID]
		if po.OrganizationID != orgID || po.DeletedAt != nil {
			continue
		}
		for _, item := range items {
			if item.ID == poLineItemID {
				return &item, nil
			}
		}
	}
	return nil, database.ErrPOLineItemNotFound
}

func (s *fakeStore) ListActiveMatchRecords(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.MatchRecord, error) {
	records := []models.MatchRecord{}
	for _, r := range s.records {
		if r.OrganizationID == orgID && r.VendorInvoiceID == invoiceID && r.IsActive() {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *fakeStore) GetMatchRecordForUpdate(ctx context.Context, orgID, matchID uuid.UUID) (*models.MatchRecord, error) {
	for _, r := range s.records {
		if r.ID == matchID && r.OrganizationID == orgID {
			return &r, nil
		}
	}
	return nil, database.ErrMatchRecordNotFound
}

func (s *fakeStore) CreateMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	if err := s.fail("CreateMatchRecord"); err != nil {
		return err
	}
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	s.records = append(s.records, *record)
	return nil
}

func (s *fakeStore) UpdateMatchDecision(ctx context.Context, record *models.MatchRecord) error {
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = *record
			return nil
		}
	}
	return database.ErrMatchRecordNotFound
}

func (s *fakeStore) SupersedeMatchRecords(ctx context.Context, matchIDs []uuid.UUID, at time.Time) error {
	for _, id := range matchIDs {
		for i := range s.records {
			if s.records[i].ID == id && s.records[i].SupersededAt == nil {
				t := at
				s.records[i].SupersededAt = &t
			}
		}
	}
	return nil
}

func (s *fakeStore) CreateDiscrepancy(ctx context.Context, d *models.Discrepancy) error {
	if err := s.fail("CreateDiscrepancy"); err != nil {
		return err
	}
	d.CreatedAt = time.Now()
	s.discrepancies = append(s.discrepancies, *d)
	return nil
}

func (s *fakeStore) SetDiscrepancyStatusForMatches(ctx context.Context, matchIDs []uuid.UUID, from, to models.DiscrepancyStatus, types []models.DiscrepancyType) error {
	for _, id := range matchIDs {
		for i := range s.discrepancies {
			d := &s.discrepancies[i]
			if len(types) > 0 && !slices.Contains(types, d.Type) {
				continue
			}
			if d.MatchRecordID != nil && *d.MatchRecordID == id && d.Status == from {
				d.Status = to
			}
		}
	}
	return nil
}

func (s *fakeStore) SetDiscrepancyStatusForLineItem(ctx context.Context, lineItemID uuid.UUID, from, to models.DiscrepancyStatus) error {
	for i := range s.discrepancies {
		d := &s.discrepancies[i]
		if d.VendorLineItemID != nil && *d.VendorLineItemID == lineItemID && d.Status == from {
			d.Status = to
		}
	}
	return nil
}

func (s *fakeStore) ListDiscrepancies(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.Discrepancy, error) {
	out := []models.Discrepancy{}
	for _, d := range s.discrepancies {
		if d.OrganizationID == orgID && d.VendorInvoiceID == invoiceID {
			out = append(out, d)
		}
	}
	return out, nil
}

var (
	_ Store      = (*fakeStore)(nil)
	_ Transactor = (*fakeStore)(nil)
)
