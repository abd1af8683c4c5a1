package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/service"
	"marketcrm/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(zap.NewNop())
	svc := service.New(repo, nil, zap.NewNop(), service.Options{RequireCustomer: true})
	auth := NewAuthManager("test-secret-key", time.Hour, repo, zap.NewNop())

	return New(svc, auth, "*", zap.NewNop())
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON sends an authenticated request with a CSRF token and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" || body.Role != "admin" {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) != 6 {
		t.Fatalf("expected 6 seeded products, got %d", len(body.Products))
	}
}

func TestCashierCannotCreateProduct(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"name":  "Butter",
		"price": "3.10",
		"stock": 5,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	admin := loginAsAdmin(t, api)
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", admin, csrf, map[string]any{
		"name":  "Butter",
		"price": "3.10",
		"stock": 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestBillingSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)
	base := "/api/v1/billing/lane-1"

	rec := doJSON(t, handler, http.MethodPost, base+"/complete", token, csrf, nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "cart is empty") {
		t.Fatalf("expected empty cart 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/items", token, csrf, domain.AddToCartRequest{ProductID: 1, Quantity: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/items", token, csrf, domain.AddToCartRequest{ProductID: 1, Quantity: 48})
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "only 47 available") {
		t.Fatalf("expected 409 insufficient stock, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPut, base+"/discount", token, csrf, map[string]any{"discount": "1.00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set discount failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/complete", token, csrf, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected customer required 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPut, base+"/customer", token, csrf, domain.SelectCustomerRequest{CustomerID: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("select customer failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/complete", token, csrf, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("complete failed: %d %s", rec.Code, rec.Body.String())
	}
	var sale domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.Order.ID != 1 || sale.Order.Customer != "Jane Smith" {
		t.Fatalf("unexpected order %+v", sale.Order)
	}
	if !sale.Order.Total.Equal(decimal.RequireFromString("6.50")) {
		t.Fatalf("expected total 6.50, got %s", sale.Order.Total)
	}

	rec = doJSON(t, handler, http.MethodGet, base, token, "", nil)
	var view struct {
		Cart domain.CartView `json:"cart"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(view.Cart.Lines) != 0 || view.Cart.Customer != nil {
		t.Fatalf("expected reset cart, got %+v", view.Cart)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders?format=csv", token, "", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("csv export failed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "1,Jane Smith,6.50,Completed,") {
		t.Fatalf("unexpected csv body %q", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/1/receipt?format=html", token, "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Order #1") {
		t.Fatalf("html receipt failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/2", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}
}

func TestCartLineUpdateAndRemove(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)
	base := "/api/v1/billing/lane-2"

	// Apples 1kg has 4 in stock.
	if rec := doJSON(t, handler, http.MethodPost, base+"/items", token, csrf, domain.AddToCartRequest{ProductID: 5, Quantity: 3}); rec.Code != http.StatusOK {
		t.Fatalf("add failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodPatch, base+"/items/5", token, csrf, domain.UpdateQuantityRequest{Delta: 2}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on over-increment, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodPatch, base+"/items/5", token, csrf, domain.UpdateQuantityRequest{Delta: -10}); rec.Code != http.StatusOK {
		t.Fatalf("decrement failed: %d %s", rec.Code, rec.Body.String())
	}
	for i := 0; i < 2; i++ {
		rec := doJSON(t, handler, http.MethodDelete, base+"/items/5", token, csrf, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("remove %d failed: %d %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, handler, http.MethodGet, base+"/products?q=juice", token, "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "out_of_stock") {
		t.Fatalf("expected juice to be reported out of stock: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
