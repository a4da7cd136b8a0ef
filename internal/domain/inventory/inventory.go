package inventory

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultLowStockThreshold is used when no valid threshold is supplied.
const DefaultLowStockThreshold = 5

var (
	ErrInvalidItem      = errors.New("inventory: item name must be non-empty")
	ErrInvalidQuantity  = errors.New("inventory: quantity must be a positive integer")
	ErrInvalidThreshold = errors.New("inventory: threshold must be a non-negative integer")
	ErrNotFound         = errors.New("inventory: item not found")
	ErrDecode           = errors.New("inventory: stock data is malformed")
	ErrOverflow         = errors.New("inventory: quantity out of range")
)

// Entry is one item and its quantity.
type Entry struct {
	Item     string
	Quantity int
}

// Snapshot is an ordered copy of a Stock, oldest item first.
type Snapshot []Entry

// Validate checks that every entry would be accepted by a Stock.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, e := range s {
		if e.Item == "" {
			return fmt.Errorf("entry %d: %w", i, ErrInvalidItem)
		}
		if e.Quantity <= 0 {
			return fmt.Errorf("entry %q: %w", e.Item, ErrInvalidQuantity)
		}
		if _, dup := seen[e.Item]; dup {
			return fmt.Errorf("entry %q: duplicate item", e.Item)
		}
		seen[e.Item] = struct{}{}
	}
	return nil
}

// Stock maps item names to strictly positive quantities and remembers insertion order.
// An item removed and later re-added moves to the end.
type Stock struct {
	mu    sync.RWMutex
	qty   map[string]int
	order []string
}

func NewStock() *Stock {
	return &Stock{qty: make(map[string]int)}
}

// ValidateItem rejects empty item names.
func ValidateItem(item string) error {
	if item == "" {
		return ErrInvalidItem
	}
	return nil
}

// ParseQuantity converts textual input into a quantity, rejecting anything that is not an integer.
func ParseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidQuantity, s)
	}
	return n, nil
}

// ParseThreshold converts textual input into a low-stock threshold.
func ParseThreshold(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidThreshold, s)
	}
	return n, nil
}

// Add increases the quantity of item and returns the new total.
func (s *Stock) Add(item string, quantity int) (int, error) {
	if err := ValidateItem(item); err != nil {
		return 0, err
	}
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.qty[item]
	if quantity > math.MaxInt-cur {
		return cur, fmt.Errorf("%w: %d + %d", ErrOverflow, cur, quantity)
	}
	if !ok {
		s.order = append(s.order, item)
	}
	s.qty[item] = cur + quantity
	return s.qty[item], nil
}

// Remove decreases the quantity of item and returns what is left. The item is
// dropped entirely once its quantity reaches zero or below. A negative quantity
// grows the item and fails with ErrOverflow past math.MaxInt.
func (s *Stock) Remove(item string, quantity int) (remaining int, dropped bool, err error) {
	if err := ValidateItem(item); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.qty[item]
	if !ok {
		return 0, false, ErrNotFound
	}
	if quantity < 0 && -(quantity+1) >= math.MaxInt-cur {
		return cur, false, fmt.Errorf("%w: %d - (%d)", ErrOverflow, cur, quantity)
	}
	next := cur - quantity
	if next <= 0 {
		s.drop(item)
		return 0, true, nil
	}
	s.qty[item] = next
	return next, false, nil
}

// Quantity returns the stored quantity, or 0 when the item is unknown.
func (s *Stock) Quantity(item string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qty[item]
}

// Below lists items whose quantity is strictly less than threshold, in insertion order.
func (s *Stock) Below(threshold int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0)
	for _, item := range s.order {
		if s.qty[item] < threshold {
			out = append(out, item)
		}
	}
	return out
}

func (s *Stock) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot copies the current contents in insertion order.
func (s *Stock) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Snapshot, 0, len(s.order))
	for _, item := range s.order {
		out = append(out, Entry{Item: item, Quantity: s.qty[item]})
	}
	return out
}

// Replace swaps the whole contents for snap. Nothing changes if snap is invalid.
func (s *Stock) Replace(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	qty := make(map[string]int, len(snap))
	order := make([]string, 0, len(snap))
	for _, e := range snap {
		qty[e.Item] = e.Quantity
		order = append(order, e.Item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.qty = qty
	s.order = order
	return nil
}

// Reset empties the stock.
func (s *Stock) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qty = make(map[string]int)
	s.order = nil
}

func (s *Stock) drop(item string) {
	delete(s.qty, item)
	for i, name := range s.order {
		if name == item {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
