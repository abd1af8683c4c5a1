package receipt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/money"
)

const (
	Title  = "Market CRM Receipt"
	Footer = "Thank you for your purchase!"
	Brand  = "Market CRM - Supermarket Management"
)

// Build renders order as receipt text plus the ESC/POS byte stream for a
// thermal printer. An order with id 0 is rendered as a bill preview.
func Build(order domain.Order, symbol string) domain.Receipt {
	lines := textLines(order, symbol)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	fileName := fmt.Sprintf("receipt-%d.bin", order.ID)
	if order.ID == 0 {
		fileName = "bill-preview.bin"
	}
	return domain.Receipt{
		OrderID:      order.ID,
		Preview:      order.ID == 0,
		Lines:        lines,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fileName,
	}
}

func textLines(order domain.Order, symbol string) []string {
	lines := []string{
		Title,
		"================================",
		orderLabel(order),
		"Customer: " + order.Customer,
		"Date: " + order.Date.Format("2006-01-02 15:04:05"),
		"--------------------------------",
	}
	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("%s x%d @ %s", item.Name, item.Quantity, money.Format(item.Price, symbol)))
		lines = append(lines, "  "+money.Format(item.Amount(), symbol))
	}
	lines = append(lines,
		"--------------------------------",
		"Subtotal : "+money.Format(order.Subtotal, symbol),
		"Discount : -"+money.Format(order.Discount, symbol),
		"Total    : "+money.Format(order.Total, symbol),
		"================================",
		Footer,
		Brand,
		"",
	)
	return lines
}

func orderLabel(order domain.Order) string {
	if order.ID == 0 {
		return "Bill Preview"
	}
	return fmt.Sprintf("Order #%d", order.ID)
}

type htmlItem struct {
	Name     string
	Quantity int
	Price    string
	Amount   string
}

type htmlView struct {
	Title    string
	Label    string
	Customer string
	Date     string
	Items    []htmlItem
	Subtotal string
	Discount string
	Total    string
	Footer   string
	Brand    string
}

// receiptHTMLTmpl auto-escapes customer and product names.
var receiptHTMLTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} - {{.Label}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; max-width: 480px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border-bottom: 1px solid #ddd; padding: 6px; font-size: 13px; }
    .num { text-align: right; }
    .total { font-weight: bold; }
  </style>
</head>
<body>
  <h2>{{.Title}}</h2>
  <p>{{.Label}}<br />Customer: {{.Customer}}<br />Date: {{.Date}}</p>
  <table>
    <thead><tr><th>Item</th><th class="num">Qty</th><th class="num">Price</th><th class="num">Amount</th></tr></thead>
    <tbody>{{range .Items}}<tr><td>{{.Name}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.Price}}</td><td class="num">{{.Amount}}</td></tr>{{end}}</tbody>
  </table>
  <p class="num">Subtotal: {{.Subtotal}}<br />Discount: -{{.Discount}}<br /><span class="total">Total: {{.Total}}</span></p>
  <p>{{.Footer}}<br />{{.Brand}}</p>
</body>
</html>
`))

// RenderHTML renders a printable receipt page.
func RenderHTML(order domain.Order, symbol string) (string, error) {
	view := htmlView{
		Title:    Title,
		Label:    orderLabel(order),
		Customer: order.Customer,
		Date:     order.Date.Format("2006-01-02 15:04:05"),
		Subtotal: money.Format(order.Subtotal, symbol),
		Discount: money.Format(order.Discount, symbol),
		Total:    money.Format(order.Total, symbol),
		Footer:   Footer,
		Brand:    Brand,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, htmlItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    money.Format(item.Price, symbol),
			Amount:   money.Format(item.Amount(), symbol),
		})
	}

	var buf bytes.Buffer
	if err := receiptHTMLTmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
