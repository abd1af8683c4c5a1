package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/store"
	"marketcrm/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, price, original_rate, stock, restock_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var restock sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.OriginalRate, &p.Stock, &restock); err != nil {
		return domain.Product{}, err
	}
	if restock.Valid {
		at := restock.Time.UTC()
		p.RestockDate = &at
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price, original_rate, stock, restock_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id
	`, product.Name, product.Price, product.OriginalRate, product.Stock, nullDate(product.RestockDate)).Scan(&product.ID)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || !product.Price.IsPositive() || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, original_rate = $4, stock = $5, restock_date = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.OriginalRate, product.Stock, nullDate(product.RestockDate))
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, phone FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, phone FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id
	`, customer.Name, customer.Email, customer.Phone).Scan(&customer.ID)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET name = $2, email = $3, phone = $4, updated_at = now()
		WHERE id = $1
	`, customer.ID, customer.Name, customer.Email, customer.Phone)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer, subtotal, discount, total, status, created_at
		FROM orders
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 128)
	index := make(map[int64]int, 128)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, price, quantity
		FROM order_items
		ORDER BY order_id, line_no
	`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var orderID int64
		var line domain.CartLine
		if err := itemRows.Scan(&orderID, &line.ProductID, &line.Name, &line.Price, &line.Quantity); err != nil {
			return nil, err
		}
		if idx, ok := index[orderID]; ok {
			orders[idx].Items = append(orders[idx].Items, line)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, customer, subtotal, discount, total, status, created_at
		FROM orders
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Price, &line.Quantity); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var status string
	if err := row.Scan(&o.ID, &o.Customer, &o.Subtotal, &o.Discount, &o.Total, &status, &o.Date); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.Date = o.Date.UTC()
	o.Items = make([]domain.CartLine, 0, 4)
	return o, nil
}

// CommitSale runs plan inside one serializable transaction. The cart's
// product rows are locked and the orders table is locked against concurrent
// id assignment until commit.
func (s *Store) CommitSale(ctx context.Context, productIDs []int64, plan store.SalePlanner) (*domain.Order, error) {
	if len(productIDs) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `LOCK TABLE orders IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, err
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	snapshot := store.SaleSnapshot{Products: make(map[int64]domain.Product, len(productIDs))}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		snapshot.Products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := pgTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM orders`).Scan(&snapshot.MaxOrderID); err != nil {
		return nil, err
	}

	commit, err := plan(snapshot)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateCommit(snapshot, commit); err != nil {
		return nil, err
	}

	for _, product := range commit.Products {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = $2, updated_at = now()
			WHERE id = $1
		`, product.ID, product.Stock)
		if err != nil {
			return nil, err
		}
		if err := expectAffected(res); err != nil {
			return nil, err
		}
	}

	order := commit.Order
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO orders (id, customer, subtotal, discount, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.Customer, order.Subtotal, order.Discount, order.Total, string(order.Status), order.Date); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	for i, item := range order.Items {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, i+1, item.ProductID, item.Name, item.Price, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
