package billing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketcrm/backend/internal/cart"
	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/store"
)

const GuestCustomer = "Guest"

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrCustomerRequired = errors.New("select a customer before completing the sale")
	ErrSaleInProgress   = errors.New("sale already in progress")
)

// Draft is the part of a session a sale is built from.
type Draft struct {
	Lines    []domain.CartLine
	Discount decimal.Decimal
	Customer string
}

type SaleCommitter interface {
	CommitSale(ctx context.Context, productIDs []int64, plan store.SalePlanner) (*domain.Order, error)
}

type Options struct {
	RequireCustomer bool
	Now             func() time.Time
}

type Workflow struct {
	repo            SaleCommitter
	requireCustomer bool
	now             func() time.Time
	log             *zap.Logger
}

func NewWorkflow(repo SaleCommitter, opts Options, logger *zap.Logger) *Workflow {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		repo:            repo,
		requireCustomer: opts.RequireCustomer,
		now:             opts.Now,
		log:             logger,
	}
}

// Complete turns the session's cart into an order. Stock is re-checked
// against the store's current catalog inside the commit; on any error the
// store and the session are left as they were. On success the session is
// reset.
func (w *Workflow) Complete(ctx context.Context, s *Session) (domain.Order, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return domain.Order{}, ErrSaleInProgress
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cart.IsEmpty() {
		return domain.Order{}, ErrEmptyCart
	}
	if w.requireCustomer && s.customer == nil {
		return domain.Order{}, ErrCustomerRequired
	}

	draft := s.draftLocked()
	at := w.now()
	order, err := w.repo.CommitSale(ctx, productIDs(draft.Lines), func(snapshot store.SaleSnapshot) (store.SaleCommit, error) {
		return PlanSale(snapshot, draft, at)
	})
	if err != nil {
		w.log.Info("sale rejected",
			zap.String("terminal_id", s.terminalID),
			zap.Int("lines", len(draft.Lines)),
			zap.Error(err))
		return domain.Order{}, err
	}

	s.resetLocked()
	w.log.Info("sale completed",
		zap.String("terminal_id", s.terminalID),
		zap.Int64("order_id", order.ID),
		zap.String("customer", order.Customer),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", order.ItemCount()))
	return *order, nil
}

// Preview builds the order the session would produce right now without
// committing anything. The order id is zero.
func (w *Workflow) Preview(s *Session) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cart.IsEmpty() {
		return domain.Order{}, ErrEmptyCart
	}
	draft := s.draftLocked()
	totals := cart.ComputeTotals(draft.Lines, draft.Discount)
	return domain.Order{
		Customer: customerName(draft.Customer),
		Items:    draft.Lines,
		Subtotal: totals.Subtotal,
		Discount: totals.Discount,
		Total:    totals.Total,
		Date:     w.now(),
		Status:   domain.OrderPending,
	}, nil
}

// PlanSale computes the stock decrements and the new order for draft against
// snapshot. It is pure: nothing is written.
func PlanSale(snapshot store.SaleSnapshot, draft Draft, at time.Time) (store.SaleCommit, error) {
	if len(draft.Lines) == 0 {
		return store.SaleCommit{}, ErrEmptyCart
	}

	updated := make(map[int64]domain.Product, len(draft.Lines))
	order := make([]int64, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return store.SaleCommit{}, fmt.Errorf("%w: quantity for %s", store.ErrInvalidInput, line.Name)
		}
		product, seen := updated[line.ProductID]
		if !seen {
			current, ok := snapshot.Products[line.ProductID]
			if !ok {
				return store.SaleCommit{}, fmt.Errorf("%w: product %d (%s) is no longer in the catalog", store.ErrNotFound, line.ProductID, line.Name)
			}
			product = current
			order = append(order, line.ProductID)
		}
		if line.Quantity > product.Stock {
			return store.SaleCommit{}, &cart.StockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: line.Quantity,
				Remaining: product.Stock,
			}
		}
		product.Stock -= line.Quantity
		updated[line.ProductID] = product
	}

	products := make([]domain.Product, 0, len(order))
	for _, id := range order {
		products = append(products, updated[id])
	}

	totals := cart.ComputeTotals(draft.Lines, draft.Discount)
	return store.SaleCommit{
		Products: products,
		Order: domain.Order{
			ID:       snapshot.MaxOrderID + 1,
			Customer: customerName(draft.Customer),
			Items:    slices.Clone(draft.Lines),
			Subtotal: totals.Subtotal,
			Discount: totals.Discount,
			Total:    totals.Total,
			Date:     at.UTC(),
			Status:   domain.OrderCompleted,
		},
	}, nil
}

func customerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return GuestCustomer
	}
	return name
}

func productIDs(lines []domain.CartLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !slices.Contains(ids, line.ProductID) {
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}
