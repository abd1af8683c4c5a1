package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketcrm/backend/internal/cart"
	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/money"
)

// CSVHeader is the column order of exported orders.
var CSVHeader = []string{"id", "customer", "total", "status", "date"}

// OrderFilter narrows the order list. Zero fields match everything; the date
// range is half-open [From, To).
type OrderFilter struct {
	Status   domain.OrderStatus
	Customer string
	From     time.Time
	To       time.Time
}

func FilterOrders(orders []domain.Order, filter OrderFilter) []domain.Order {
	needle := strings.ToLower(strings.TrimSpace(filter.Customer))
	result := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(order.Customer), needle) {
			continue
		}
		if !filter.From.IsZero() && order.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !order.Date.Before(filter.To) {
			continue
		}
		result = append(result, order)
	}
	return result
}

// OrderRows projects orders for display with a formatted total.
func OrderRows(orders []domain.Order, symbol string) []domain.OrderRow {
	rows := make([]domain.OrderRow, 0, len(orders))
	for _, order := range orders {
		status := order.Status
		if status == "" {
			status = domain.OrderCompleted
		}
		rows = append(rows, domain.OrderRow{
			ID:       order.ID,
			Customer: order.Customer,
			Total:    money.Format(order.Total, symbol),
			Amount:   money.Round(order.Total),
			Status:   status,
			Date:     order.Date.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// WriteOrdersCSV writes rows with the total as a plain two-decimal number.
func WriteOrdersCSV(w io.Writer, rows []domain.OrderRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Customer,
			row.Amount.StringFixed(2),
			string(row.Status),
			row.Date,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Summarize totals non-cancelled orders and compares the calendar month of
// now with the month before it.
func Summarize(orders []domain.Order, now time.Time) domain.SalesSummary {
	now = now.UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	nextMonth := thisMonth.AddDate(0, 1, 0)

	summary := domain.SalesSummary{
		TotalSales: decimal.Zero,
		ThisMonth:  decimal.Zero,
		LastMonth:  decimal.Zero,
	}
	for _, order := range orders {
		if order.Status == domain.OrderCancelled {
			continue
		}
		summary.Orders++
		summary.TotalSales = summary.TotalSales.Add(order.Total)

		at := order.Date.UTC()
		switch {
		case !at.Before(thisMonth) && at.Before(nextMonth):
			summary.ThisMonth = summary.ThisMonth.Add(order.Total)
		case !at.Before(lastMonth) && at.Before(thisMonth):
			summary.LastMonth = summary.LastMonth.Add(order.Total)
		}
	}
	summary.GrowthPercent = Growth(summary.ThisMonth, summary.LastMonth)
	return summary
}

// Growth is the percentage change from previous to current, rounded to two
// places. It is zero when there is nothing to compare against.
func Growth(current decimal.Decimal, previous decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
}

func Dashboard(customers int, products []domain.Product, orders int) domain.DashboardStats {
	stats := domain.DashboardStats{
		Customers: customers,
		Products:  len(products),
		Orders:    orders,
	}
	for _, product := range products {
		stats.InventoryStock += product.Stock
		if cart.StockState(product.Stock) != domain.StockInStock {
			stats.LowStockProducts++
		}
	}
	return stats
}

// DailySales buckets non-cancelled orders by UTC day for the days days
// ending on now, oldest first. Days without orders are included.
func DailySales(orders []domain.Order, now time.Time, days int) []domain.DailySales {
	if days < 1 {
		days = 1
	}
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)

	series := make([]domain.DailySales, days)
	for i := range series {
		series[i] = domain.DailySales{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Total: decimal.Zero,
		}
	}
	for _, order := range orders {
		if order.Status == domain.OrderCancelled {
			continue
		}
		at := order.Date.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		idx := int(at.Sub(start) / (24 * time.Hour))
		series[idx].Orders++
		series[idx].Total = series[idx].Total.Add(order.Total)
	}
	return series
}

// Inventory projects the catalog to stock levels.
func Inventory(products []domain.Product) []domain.InventoryItem {
	items := make([]domain.InventoryItem, 0, len(products))
	for _, product := range products {
		items = append(items, domain.InventoryItem{
			ID:       product.ID,
			Product:  product.Name,
			Stock:    product.Stock,
			LowStock: product.Stock < cart.LowStockThreshold,
		})
	}
	return items
}
