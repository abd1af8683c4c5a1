package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"marketcrm/backend/internal/billing"
	"marketcrm/backend/internal/cache"
	"marketcrm/backend/internal/cart"
	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/receipt"
	"marketcrm/backend/internal/report"
	"marketcrm/backend/internal/store"
	"marketcrm/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	RequireCustomer bool
	CurrencySymbol  string
	ReportCacheTTL  time.Duration
	Now             func() time.Time
}

type Service struct {
	repo     store.Repository
	overview cache.OverviewCache
	sessions *billing.Registry
	workflow *billing.Workflow
	symbol   string
	cacheTTL time.Duration
	now      func() time.Time
	log      *zap.Logger

	// overviewGen counts invalidations so an overview computed before a sale
	// is not left in the cache after it.
	overviewGen atomic.Uint64
}

func New(repo store.Repository, overviewCache cache.OverviewCache, logger *zap.Logger, opts Options) *Service {
	if overviewCache == nil {
		overviewCache = cache.NoopOverviewCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = "$"
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:     repo,
		overview: overviewCache,
		sessions: billing.NewRegistry(),
		workflow: billing.NewWorkflow(repo, billing.Options{
			RequireCustomer: opts.RequireCustomer,
			Now:             opts.Now,
		}, logger.Named("billing")),
		symbol:   opts.CurrencySymbol,
		cacheTTL: opts.ReportCacheTTL,
		now:      opts.Now,
		log:      logger,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:         strings.TrimSpace(req.Name),
		Price:        req.Price,
		OriginalRate: req.OriginalRate,
		Stock:        req.Stock,
		RestockDate:  req.RestockDate,
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price.StringFixed(2), created.Stock))
	s.invalidateOverview(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.OriginalRate != nil {
		updated.OriginalRate = *req.OriginalRate
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.RestockDate != nil {
		updated.RestockDate = req.RestockDate
	}
	if req.ClearRestockDate {
		updated.RestockDate = nil
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", strconv.FormatInt(saved.ID, 10),
		fmt.Sprintf("price=%s,stock=%d", saved.Price.StringFixed(2), saved.Stock))
	s.invalidateOverview(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", strconv.FormatInt(id, 10), "")
	s.invalidateOverview(ctx)
	return nil
}

func validateProduct(product domain.Product) error {
	switch {
	case product.Name == "":
		return invalid("product name is required")
	case !product.Price.IsPositive():
		return invalid("price must be greater than zero")
	case product.OriginalRate.IsNegative():
		return invalid("original rate must not be negative")
	case product.Stock < 0:
		return invalid("stock must not be negative")
	}
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	customer := domain.Customer{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	}
	if err := validateCustomer(customer); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", strconv.FormatInt(created.ID, 10), "name="+created.Name)
	s.invalidateOverview(ctx)
	return *created, nil
}

// UpdateCustomer overwrites the fields given in req; blank fields keep their
// current value.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if name := strings.TrimSpace(req.Name); name != "" {
		updated.Name = name
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		updated.Email = email
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		updated.Phone = phone
	}
	if err := validateCustomer(updated); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", strconv.FormatInt(saved.ID, 10), "name="+saved.Name)
	return *saved, nil
}

// DeleteCustomer removes the customer record. Orders keep the customer name
// they were sold under.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", strconv.FormatInt(id, 10), "")
	s.invalidateOverview(ctx)
	return nil
}

func validateCustomer(customer domain.Customer) error {
	if customer.Name == "" {
		return invalid("customer name is required")
	}
	if customer.Email != "" && !strings.Contains(customer.Email, "@") {
		return invalid("email must contain @")
	}
	return nil
}

func (s *Service) Inventory(ctx context.Context) ([]domain.InventoryItem, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return report.Inventory(products), nil
}

func (s *Service) CartView(terminalID string) domain.CartView {
	return s.sessions.Session(terminalID).View()
}

// AddToCart validates against the product as currently stored. A zero
// quantity adds one unit.
func (s *Service) AddToCart(ctx context.Context, terminalID string, req domain.AddToCartRequest) (domain.CartView, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.CartView{}, err
	}
	return s.sessions.Session(terminalID).Add(*product, req.Quantity)
}

func (s *Service) UpdateCartQuantity(ctx context.Context, terminalID string, productID int64, delta int) (domain.CartView, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartView{}, err
	}
	return s.sessions.Session(terminalID).UpdateQuantity(*product, delta)
}

func (s *Service) RemoveFromCart(terminalID string, productID int64) domain.CartView {
	return s.sessions.Session(terminalID).Remove(productID)
}

func (s *Service) SetDiscount(terminalID string, raw string) domain.CartView {
	return s.sessions.Session(terminalID).SetDiscount(cart.ParseDiscount(raw, s.symbol))
}

// SelectCustomer attaches a stored customer to the terminal's sale. An id of
// zero clears the selection.
func (s *Service) SelectCustomer(ctx context.Context, terminalID string, customerID int64) (domain.CartView, error) {
	session := s.sessions.Session(terminalID)
	if customerID == 0 {
		return session.SelectCustomer(nil), nil
	}
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CartView{}, err
	}
	return session.SelectCustomer(customer), nil
}

func (s *Service) SearchProducts(ctx context.Context, terminalID string, term string) ([]domain.ProductAvailability, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return s.sessions.Session(terminalID).Search(products, term), nil
}

func (s *Service) ClearCart(terminalID string) domain.CartView {
	return s.sessions.Session(terminalID).Clear()
}

func (s *Service) PreviewBill(terminalID string) (domain.Receipt, error) {
	order, err := s.workflow.Preview(s.sessions.Session(terminalID))
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt.Build(order, s.symbol), nil
}

func (s *Service) PreviewBillHTML(terminalID string) (string, error) {
	order, err := s.workflow.Preview(s.sessions.Session(terminalID))
	if err != nil {
		return "", err
	}
	return receipt.RenderHTML(order, s.symbol)
}

// CompleteSale commits the terminal's cart as a new order and returns it with
// its receipt.
func (s *Service) CompleteSale(ctx context.Context, terminalID string) (domain.SaleResponse, error) {
	order, err := s.workflow.Complete(ctx, s.sessions.Session(terminalID))
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_complete", "order", strconv.FormatInt(order.ID, 10),
		fmt.Sprintf("terminal=%s,customer=%s,items=%d,total=%s", terminalID, order.Customer, order.ItemCount(), order.Total.StringFixed(2)))
	s.invalidateOverview(ctx)

	return domain.SaleResponse{
		Order:   order,
		Receipt: receipt.Build(order, s.symbol),
	}, nil
}

func (s *Service) ListOrders(ctx context.Context, filter report.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("unknown order status %q", filter.Status)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, invalid("from must be before to")
	}
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	return report.FilterOrders(orders, filter), nil
}

func (s *Service) OrderRows(ctx context.Context, filter report.OrderFilter) ([]domain.OrderRow, error) {
	orders, err := s.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return report.OrderRows(orders, s.symbol), nil
}

func (s *Service) ExportOrdersCSV(ctx context.Context, w io.Writer, filter report.OrderFilter) error {
	rows, err := s.OrderRows(ctx, filter)
	if err != nil {
		return err
	}
	return report.WriteOrdersCSV(w, rows)
}

func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) OrderReceipt(ctx context.Context, id int64) (domain.Receipt, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt.Build(order, s.symbol), nil
}

func (s *Service) OrderReceiptHTML(ctx context.Context, id int64) (string, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return receipt.RenderHTML(order, s.symbol)
}

// Overview returns the sales summary, dashboard counts and the last seven
// days of sales, served from cache while fresh.
func (s *Service) Overview(ctx context.Context) (domain.ReportOverview, error) {
	gen := s.overviewGen.Load()
	cached, ok, err := s.overview.Get(ctx, cache.OverviewKey)
	if err != nil {
		s.log.Warn("overview cache read failed", zap.Error(err))
	}
	if ok && cached != nil {
		return *cached, nil
	}

	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return domain.ReportOverview{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.ReportOverview{}, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.ReportOverview{}, err
	}

	now := s.now()
	overview := domain.ReportOverview{
		GeneratedAt: now,
		Summary:     report.Summarize(orders, now),
		Dashboard:   report.Dashboard(len(customers), products, len(orders)),
		Daily:       report.DailySales(orders, now, 7),
	}
	if s.overviewGen.Load() != gen {
		return overview, nil
	}
	if err := s.overview.Set(ctx, cache.OverviewKey, &overview, s.cacheTTL); err != nil {
		s.log.Warn("overview cache write failed", zap.Error(err))
	}
	if s.overviewGen.Load() != gen {
		s.dropOverview(ctx)
	}
	return overview, nil
}

// ListAuditLogs returns entries for the given UTC day (YYYY-MM-DD), or the
// last 24 hours when date is empty.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, invalid("date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) Logout(ctx context.Context) {
	actor, _ := ActorFromContext(ctx)
	s.logAudit(ctx, "logout", "user", actor.Username, "")
}

func (s *Service) invalidateOverview(ctx context.Context) {
	s.overviewGen.Add(1)
	s.dropOverview(ctx)
}

func (s *Service) dropOverview(ctx context.Context) {
	if err := s.overview.Delete(ctx, cache.OverviewKey); err != nil {
		s.log.Warn("overview cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}
