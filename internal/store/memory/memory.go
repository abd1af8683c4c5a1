package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/store"
	"marketcrm/backend/internal/xid"
)

// Store keeps every collection in process memory. Collections are replaced
// wholesale through setProducts and setOrders so readers never observe a
// half-applied sale.
type Store struct {
	mu              sync.RWMutex
	products        []domain.Product
	customers       []domain.Customer
	orders          []domain.Order
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	// ids are handed out once and never reused, even after a delete.
	nextProductID  int64
	nextCustomerID int64
}

func New() *Store {
	return &Store{
		products:        make([]domain.Product, 0, 16),
		customers:       make([]domain.Customer, 0, 16),
		orders:          make([]domain.Order, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		nextProductID:   1,
		nextCustomerID:  1,
	}
}

// NewSeeded returns a store with demo catalog, customers and the admin and
// cashier accounts.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	restock := time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour)

	s := New()
	s.products = []domain.Product{
		{ID: 1, Name: "Milk", Price: dec("2.50"), OriginalRate: dec("2.10"), Stock: 50},
		{ID: 2, Name: "Bread", Price: dec("1.20"), OriginalRate: dec("0.95"), Stock: 80},
		{ID: 3, Name: "Eggs (12)", Price: dec("3.40"), OriginalRate: dec("2.80"), Stock: 40},
		{ID: 4, Name: "Basmati Rice 5kg", Price: dec("12.99"), OriginalRate: dec("10.50"), Stock: 25},
		{ID: 5, Name: "Apples 1kg", Price: dec("4.20"), OriginalRate: dec("3.30"), Stock: 4},
		{ID: 6, Name: "Orange Juice 1L", Price: dec("3.75"), OriginalRate: dec("2.90"), Stock: 0, RestockDate: &restock},
	}
	s.customers = []domain.Customer{
		{ID: 1, Name: "John Doe", Email: "john@example.com", Phone: "123-456-7890"},
		{ID: 2, Name: "Jane Smith", Email: "jane@example.com", Phone: "987-654-3210"},
	}
	s.nextProductID = int64(len(s.products)) + 1
	s.nextCustomerID = int64(len(s.customers)) + 1
	s.usersByUsername = seedUsers(logger)
	return s
}

// seedUsers reads SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back
// to dev defaults with a warning.
func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *Store) setProducts(next []domain.Product) {
	s.products = next
}

func (s *Store) setOrders(next []domain.Order) {
	s.orders = next
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products), nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	product := cloneProduct(s.products[idx])
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	product.ID = s.nextProductID
	s.nextProductID++

	next := cloneProducts(s.products)
	next = append(next, cloneProduct(product))
	s.setProducts(next)

	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	idx := s.productIndex(product.ID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	next := cloneProducts(s.products)
	next[idx] = cloneProduct(product)
	s.setProducts(next)

	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return store.ErrNotFound
	}
	next := cloneProducts(s.products)
	next = slices.Delete(next, idx, idx+1)
	s.setProducts(next)
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.customers), nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.customerIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	customer := s.customers[idx]
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	customer.ID = s.nextCustomerID
	s.nextCustomerID++
	s.customers = append(slices.Clone(s.customers), customer)
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	idx := s.customerIndex(customer.ID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	next := slices.Clone(s.customers)
	next[idx] = customer
	s.customers = next
	return &customer, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.customerIndex(id)
	if idx < 0 {
		return store.ErrNotFound
	}
	s.customers = slices.Delete(slices.Clone(s.customers), idx, idx+1)
	return nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, len(s.orders))
	for i, order := range s.orders {
		out[i] = cloneOrder(order)
	}
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.ID == id {
			dup := cloneOrder(order)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CommitSale(_ context.Context, productIDs []int64, plan store.SalePlanner) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := store.SaleSnapshot{
		Products: make(map[int64]domain.Product, len(productIDs)),
	}
	for _, id := range productIDs {
		if idx := s.productIndex(id); idx >= 0 {
			snapshot.Products[id] = cloneProduct(s.products[idx])
		}
	}
	for _, order := range s.orders {
		snapshot.MaxOrderID = max(snapshot.MaxOrderID, order.ID)
	}

	commit, err := plan(snapshot)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateCommit(snapshot, commit); err != nil {
		return nil, err
	}

	// Both collections are fully built before either is swapped in.
	nextProducts := cloneProducts(s.products)
	for _, updated := range commit.Products {
		idx := s.productIndex(updated.ID)
		if idx < 0 {
			return nil, store.ErrNotFound
		}
		nextProducts[idx].Stock = updated.Stock
	}
	nextOrders := make([]domain.Order, len(s.orders), len(s.orders)+1)
	copy(nextOrders, s.orders)
	nextOrders = append(nextOrders, cloneOrder(commit.Order))

	s.setProducts(nextProducts)
	s.setOrders(nextOrders)

	created := cloneOrder(commit.Order)
	return &created, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) productIndex(id int64) int {
	return slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == id })
}

func (s *Store) customerIndex(id int64) int {
	return slices.IndexFunc(s.customers, func(c domain.Customer) bool { return c.ID == id })
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.RestockDate != nil {
		at := *src.RestockDate
		dup.RestockDate = &at
	}
	return dup
}

func cloneProducts(src []domain.Product) []domain.Product {
	out := make([]domain.Product, len(src))
	for i, p := range src {
		out[i] = cloneProduct(p)
	}
	return out
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}
