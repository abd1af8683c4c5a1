package store

import (
	"context"
	"errors"
	"time"

	"marketcrm/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SaleSnapshot is the catalog state a sale is planned against: the current
// rows of the products in the cart and the highest order id assigned so far.
type SaleSnapshot struct {
	Products   map[int64]domain.Product
	MaxOrderID int64
}

// SaleCommit is everything a sale writes. Products carry their new stock.
type SaleCommit struct {
	Products []domain.Product
	Order    domain.Order
}

// SalePlanner computes a SaleCommit from a fresh snapshot. Returning an error
// aborts the sale with nothing written.
type SalePlanner func(snapshot SaleSnapshot) (SaleCommit, error)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error

	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	// CommitSale reads the snapshot for productIDs, runs plan and applies the
	// stock writes and the order append together, or not at all.
	CommitSale(ctx context.Context, productIDs []int64, plan SalePlanner) (*domain.Order, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ValidateCommit checks a planned sale against the snapshot it was planned on.
func ValidateCommit(snapshot SaleSnapshot, commit SaleCommit) error {
	if commit.Order.ID <= snapshot.MaxOrderID {
		return ErrInvalidInput
	}
	if len(commit.Order.Items) == 0 {
		return ErrInvalidInput
	}
	for _, product := range commit.Products {
		if _, ok := snapshot.Products[product.ID]; !ok {
			return ErrNotFound
		}
		if product.Stock < 0 {
			return ErrInvalidInput
		}
	}
	return nil
}
