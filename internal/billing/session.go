package billing

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"marketcrm/backend/internal/cart"
	"marketcrm/backend/internal/domain"
)

const DefaultTerminal = "main-terminal"

// Session is one terminal's sale in progress: a cart, a discount and the
// selected customer. Only the owning terminal touches it.
type Session struct {
	mu         sync.Mutex
	terminalID string
	cart       *cart.Cart
	discount   decimal.Decimal
	customer   *domain.Customer
	inFlight   atomic.Bool
}

func NewSession(terminalID string) *Session {
	return &Session{
		terminalID: normalizeTerminal(terminalID),
		cart:       cart.New(),
		discount:   decimal.Zero,
	}
}

func (s *Session) TerminalID() string {
	return s.terminalID
}

func (s *Session) View() domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() domain.CartView {
	lines := s.cart.Lines()
	view := domain.CartView{
		TerminalID: s.terminalID,
		Lines:      lines,
		Totals:     cart.ComputeTotals(lines, s.discount),
		Processing: s.inFlight.Load(),
	}
	if s.customer != nil {
		customer := *s.customer
		view.Customer = &customer
	}
	return view
}

func (s *Session) Add(product domain.Product, qty int) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.Add(product, qty); err != nil {
		return domain.CartView{}, err
	}
	return s.viewLocked(), nil
}

func (s *Session) UpdateQuantity(product domain.Product, delta int) (domain.CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.UpdateQuantity(product, delta); err != nil {
		return domain.CartView{}, err
	}
	return s.viewLocked(), nil
}

func (s *Session) Remove(productID int64) domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Remove(productID)
	return s.viewLocked()
}

// SetDiscount stores the discount for the sale. Negative amounts count as
// zero.
func (s *Session) SetDiscount(amount decimal.Decimal) domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	s.discount = amount
	return s.viewLocked()
}

// SelectCustomer sets the customer for the sale; nil clears the selection.
func (s *Session) SelectCustomer(customer *domain.Customer) domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if customer == nil {
		s.customer = nil
	} else {
		selected := *customer
		s.customer = &selected
	}
	return s.viewLocked()
}

// Search filters the catalog against what this cart already holds.
func (s *Session) Search(products []domain.Product, term string) []domain.ProductAvailability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cart.FilterAvailable(products, s.cart, term)
}

func (s *Session) Clear() domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return s.viewLocked()
}

func (s *Session) resetLocked() {
	s.cart.Reset()
	s.discount = decimal.Zero
	s.customer = nil
}

func (s *Session) draftLocked() Draft {
	draft := Draft{
		Lines:    s.cart.Lines(),
		Discount: s.discount,
	}
	if s.customer != nil {
		draft.Customer = s.customer.Name
	}
	return draft
}

// Registry hands out one session per terminal.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Session(terminalID string) *Session {
	terminalID = normalizeTerminal(terminalID)

	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[terminalID]
	if !ok {
		session = NewSession(terminalID)
		r.sessions[terminalID] = session
	}
	return session
}

func normalizeTerminal(terminalID string) string {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return DefaultTerminal
	}
	return terminalID
}
