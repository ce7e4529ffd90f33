package checkout

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/gateway"
	"github.com/f2re/sale-photosession-bot/internal/gateway/gatewaytest"
	"github.com/f2re/sale-photosession-bot/internal/infra/pgtestutil"
	"github.com/f2re/sale-photosession-bot/internal/repos/orders"
	pgpackages "github.com/f2re/sale-photosession-bot/internal/repos/packages/postgres"
	"github.com/f2re/sale-photosession-bot/internal/services/credits"
	ordersvc "github.com/f2re/sale-photosession-bot/internal/services/orders"
	"github.com/f2re/sale-photosession-bot/internal/services/reconcile"
	"github.com/f2re/sale-photosession-bot/internal/services/referral"
)

const buyerID uint64 = 2

var contact = gateway.Contact{Email: "buyer@example.com"}

type fakePoller struct {
	mu      sync.Mutex
	started []string
}

func (p *fakePoller) Start(invoiceID string, _ uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = append(p.started, invoiceID)

	return true
}

type fixture struct {
	svc    *Service
	db     *sql.DB
	gw     *gatewaytest.Fake
	poller *fakePoller
	pkgID  int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	pgtestutil.SeedUser(t, db, buyerID, 0)
	pkgID := pgtestutil.SeedPackage(t, db, "Starter", 10, "299.00")

	guard := credits.New(db)
	cascade := referral.New(db, guard, config.ReferralConfig{StartReward: 1, PurchasePercent: 10})
	engine := reconcile.New(db, guard, cascade)

	gw := gatewaytest.New()
	poller := &fakePoller{}

	return fixture{
		svc:    New(pgpackages.New(db), ordersvc.New(db, guard), gw, poller, engine),
		db:     db,
		gw:     gw,
		poller: poller,
		pkgID:  pkgID,
	}
}

func orderStatus(t *testing.T, db *sql.DB, orderID int64) orders.Status {
	t.Helper()

	var st string
	require.NoError(t, db.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&st))

	return orders.Status(st)
}

func TestPurchase_CreatesIntentAndStartsPoll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	p, err := f.svc.Purchase(t.Context(), buyerID, f.pkgID, contact)
	require.NoError(t, err)

	assert.Equal(t, "fake-pay-1", p.InvoiceID)
	assert.Equal(t, "https://pay.example/fake-pay-1", p.RedirectURL)
	assert.Equal(t, "299.00", p.Amount.StringFixed(2))
	assert.Equal(t, int64(10), p.Credits)
	assert.Equal(t, []string{"fake-pay-1"}, f.poller.started)
	assert.Equal(t, orders.StatusPending, orderStatus(t, f.db, p.OrderID))

	created := f.gw.Created()
	require.Len(t, created, 1)
	assert.Equal(t, contact, created[0].Contact)
	assert.Contains(t, created[0].Description, "Starter")
}

func TestPurchase_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Purchase(t.Context(), buyerID, f.pkgID, gateway.Contact{})
	require.ErrorIs(t, err, gateway.ErrContactRequired)

	_, err = f.db.Exec(`UPDATE packages SET is_active = FALSE WHERE id = $1`, f.pkgID)
	require.NoError(t, err)

	_, err = f.svc.Purchase(t.Context(), buyerID, f.pkgID, contact)
	require.ErrorIs(t, err, ErrPackageInactive)

	assert.Empty(t, f.gw.Created())
	assert.Empty(t, f.poller.started)
}

func TestPurchase_GatewayDownMarksOrderFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.CreateErr = gateway.ErrUnavailable

	_, err := f.svc.Purchase(t.Context(), buyerID, f.pkgID, contact)
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	var id int64
	var invoice string
	require.NoError(t, f.db.QueryRow(`SELECT id, invoice_id FROM orders WHERE user_id = $1`, buyerID).Scan(&id, &invoice))
	assert.True(t, strings.HasPrefix(invoice, provisionalPrefix))
	assert.Equal(t, orders.StatusFailed, orderStatus(t, f.db, id))
	assert.Empty(t, f.poller.started)
}

func TestCheckPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	p, err := f.svc.Purchase(t.Context(), buyerID, f.pkgID, contact)
	require.NoError(t, err)

	f.gw.Script(p.InvoiceID, gatewaytest.Pending(), gatewaytest.Succeeded())

	res, err := f.svc.CheckPayment(t.Context(), buyerID, p.InvoiceID)
	require.NoError(t, err)
	assert.False(t, res.Credited)
	assert.Equal(t, gateway.StatusPending, res.GatewayStatus)
	assert.Equal(t, orders.StatusPending, res.OrderStatus)
	assert.Equal(t, int64(0), pgtestutil.Credits(t, f.db, buyerID))

	res, err = f.svc.CheckPayment(t.Context(), buyerID, p.InvoiceID)
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Equal(t, orders.StatusPaid, res.OrderStatus)
	assert.Equal(t, int64(10), pgtestutil.Credits(t, f.db, buyerID))

	// Already paid: answered from the database without a gateway call.
	calls := f.gw.Calls(p.InvoiceID)
	res, err = f.svc.CheckPayment(t.Context(), buyerID, p.InvoiceID)
	require.NoError(t, err)
	assert.False(t, res.Credited)
	assert.Equal(t, orders.StatusPaid, res.OrderStatus)
	assert.Equal(t, calls, f.gw.Calls(p.InvoiceID))
	assert.Equal(t, int64(10), pgtestutil.Credits(t, f.db, buyerID))
}

func TestCheckPayment_ConcurrentClicksCreditOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	p, err := f.svc.Purchase(t.Context(), buyerID, f.pkgID, contact)
	require.NoError(t, err)

	f.gw.Script(p.InvoiceID, gatewaytest.Succeeded())

	const clicks = 6

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)

	for range clicks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res, err := f.svc.CheckPayment(t.Context(), buyerID, p.InvoiceID)
			assert.NoError(t, err)

			if res.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	// Coalesced callers share the winning result; the credit itself lands once.
	assert.GreaterOrEqual(t, credited, 1)
	assert.Equal(t, int64(10), pgtestutil.Credits(t, f.db, buyerID))
}

func TestCheckPayment_ForeignInvoice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	pgtestutil.SeedUser(t, f.db, 3, 0)

	p, err := f.svc.Purchase(t.Context(), buyerID, f.pkgID, contact)
	require.NoError(t, err)

	_, err = f.svc.CheckPayment(t.Context(), 3, p.InvoiceID)
	require.ErrorIs(t, err, orders.ErrOrderNotFound)

	_, err = f.svc.CheckPayment(t.Context(), buyerID, "no-such-invoice")
	require.True(t, errors.Is(err, orders.ErrOrderNotFound))
}
