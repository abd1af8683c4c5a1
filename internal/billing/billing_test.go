package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketcrm/backend/internal/cart"
	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/store"
	"marketcrm/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 5, 14, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T, requireCustomer bool) (*memory.Store, *Workflow) {
	t.Helper()
	repo := memory.New()
	_, err := repo.CreateProduct(context.Background(), domain.Product{
		Name:  "Milk",
		Price: decimal.RequireFromString("2.50"),
		Stock: 10,
	})
	require.NoError(t, err)
	_, err = repo.CreateProduct(context.Background(), domain.Product{
		Name:  "Bread",
		Price: decimal.RequireFromString("1.20"),
		Stock: 80,
	})
	require.NoError(t, err)

	wf := NewWorkflow(repo, Options{
		RequireCustomer: requireCustomer,
		Now:             func() time.Time { return fixedNow },
	}, zap.NewNop())
	return repo, wf
}

func mustProduct(t *testing.T, repo *memory.Store, id int64) domain.Product {
	t.Helper()
	product, err := repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return *product
}

func TestCompleteSaleScenario(t *testing.T) {
	repo, wf := newFixture(t, false)
	ctx := context.Background()
	session := NewSession("till-1")

	view, err := session.Add(mustProduct(t, repo, 1), 3)
	require.NoError(t, err)
	assert.Equal(t, "7.50", view.Totals.Subtotal.StringFixed(2))

	view = session.SetDiscount(decimal.RequireFromString("1.00"))
	assert.Equal(t, "6.50", view.Totals.Total.StringFixed(2))

	_, err = session.Add(mustProduct(t, repo, 1), 8)
	assert.ErrorIs(t, err, cart.ErrInsufficientStock)
	assert.Equal(t, 3, session.View().Lines[0].Quantity)

	order, err := wf.Complete(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, GuestCustomer, order.Customer)
	assert.Equal(t, domain.OrderCompleted, order.Status)
	assert.Equal(t, fixedNow, order.Date)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, "7.50", order.Subtotal.StringFixed(2))
	assert.Equal(t, "1.00", order.Discount.StringFixed(2))
	assert.Equal(t, "6.50", order.Total.StringFixed(2))

	assert.Equal(t, 7, mustProduct(t, repo, 1).Stock)
	after := session.View()
	assert.Empty(t, after.Lines)
	assert.True(t, after.Totals.Discount.IsZero())
	assert.Nil(t, after.Customer)

	_, err = wf.Complete(ctx, session)
	assert.ErrorIs(t, err, ErrEmptyCart)
	orders, _ := repo.ListOrders(ctx)
	assert.Len(t, orders, 1)
	assert.Equal(t, 7, mustProduct(t, repo, 1).Stock)
}

func TestCompleteRequiresCustomerWhenConfigured(t *testing.T) {
	repo, wf := newFixture(t, true)
	ctx := context.Background()
	session := NewSession("till-1")
	_, err := session.Add(mustProduct(t, repo, 2), 2)
	require.NoError(t, err)

	_, err = wf.Complete(ctx, session)
	assert.ErrorIs(t, err, ErrCustomerRequired)
	assert.Equal(t, 80, mustProduct(t, repo, 2).Stock)
	assert.Len(t, session.View().Lines, 1)

	session.SelectCustomer(&domain.Customer{ID: 7, Name: "Jane Smith"})
	order, err := wf.Complete(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", order.Customer)
}

// Stock is checked against the catalog at commit time, not when the line was added.
func TestCompleteRevalidatesAgainstCurrentCatalog(t *testing.T) {
	repo, wf := newFixture(t, false)
	ctx := context.Background()
	session := NewSession("till-1")

	_, err := session.Add(mustProduct(t, repo, 1), 4)
	require.NoError(t, err)
	_, err = session.Add(mustProduct(t, repo, 2), 5)
	require.NoError(t, err)

	milk := mustProduct(t, repo, 1)
	milk.Stock = 2
	_, err = repo.UpdateProduct(ctx, milk)
	require.NoError(t, err)

	_, err = wf.Complete(ctx, session)
	var stockErr *cart.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Remaining)

	assert.Equal(t, 2, mustProduct(t, repo, 1).Stock)
	assert.Equal(t, 80, mustProduct(t, repo, 2).Stock, "no partial decrement")
	orders, _ := repo.ListOrders(ctx)
	assert.Empty(t, orders)
	assert.Len(t, session.View().Lines, 2, "cart kept for correction")
}

func TestCompleteFailsWhenProductDeleted(t *testing.T) {
	repo, wf := newFixture(t, false)
	ctx := context.Background()
	session := NewSession("till-1")
	_, err := session.Add(mustProduct(t, repo, 2), 1)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteProduct(ctx, 2))

	_, err = wf.Complete(ctx, session)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOrderIDsIncrease(t *testing.T) {
	repo, wf := newFixture(t, false)
	ctx := context.Background()
	session := NewSession("till-1")

	var last int64
	for i := 0; i < 5; i++ {
		_, err := session.Add(mustProduct(t, repo, 2), 1)
		require.NoError(t, err)
		order, err := wf.Complete(ctx, session)
		require.NoError(t, err)
		assert.Greater(t, order.ID, last)
		last = order.ID
	}
	assert.Equal(t, 75, mustProduct(t, repo, 2).Stock)
}

func TestCompleteRejectsConcurrentSubmission(t *testing.T) {
	_, wf := newFixture(t, false)
	session := NewSession("till-1")
	session.inFlight.Store(true)

	_, err := wf.Complete(context.Background(), session)
	assert.ErrorIs(t, err, ErrSaleInProgress)
}

func TestParallelCompletesCreateOneOrder(t *testing.T) {
	repo, wf := newFixture(t, false)
	ctx := context.Background()
	session := NewSession("till-1")
	_, err := session.Add(mustProduct(t, repo, 1), 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wf.Complete(ctx, session)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrSaleInProgress) || errors.Is(err, ErrEmptyCart), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	orders, _ := repo.ListOrders(ctx)
	assert.Len(t, orders, 1)
	assert.Equal(t, 8, mustProduct(t, repo, 1).Stock)
}

func TestPlanSaleIsPure(t *testing.T) {
	snapshot := store.SaleSnapshot{
		Products: map[int64]domain.Product{
			1: {ID: 1, Name: "Milk", Price: decimal.RequireFromString("2.50"), Stock: 10},
		},
		MaxOrderID: 41,
	}
	draft := Draft{
		Lines:    []domain.CartLine{{ProductID: 1, Name: "Milk", Price: decimal.RequireFromString("2.50"), Quantity: 4}},
		Discount: decimal.RequireFromString("20"),
	}

	commit, err := PlanSale(snapshot, draft, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(42), commit.Order.ID)
	assert.Equal(t, 6, commit.Products[0].Stock)
	assert.Equal(t, 10, snapshot.Products[1].Stock, "snapshot untouched")
	assert.True(t, commit.Order.Total.IsZero(), "oversized discount clamps the total")

	_, err = PlanSale(snapshot, Draft{}, fixedNow)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPreviewDoesNotCommit(t *testing.T) {
	repo, wf := newFixture(t, false)
	session := NewSession("till-1")

	_, err := wf.Preview(session)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = session.Add(mustProduct(t, repo, 1), 2)
	require.NoError(t, err)
	preview, err := wf.Preview(session)
	require.NoError(t, err)
	assert.Zero(t, preview.ID)
	assert.Equal(t, "5.00", preview.Total.StringFixed(2))
	assert.Equal(t, 10, mustProduct(t, repo, 1).Stock)
	assert.Len(t, session.View().Lines, 1)
}

func TestRegistryKeepsSessionsApart(t *testing.T) {
	registry := NewRegistry()
	a := registry.Session("till-1")
	b := registry.Session("till-2")

	assert.Same(t, a, registry.Session(" till-1 "))
	assert.NotSame(t, a, b)
	assert.Equal(t, DefaultTerminal, registry.Session("").TerminalID())
}
