package inventory

import "time"

// StockChangedEvent is emitted after a successful add or remove.
type StockChangedEvent struct {
	Item string
	// Delta is positive for additions and negative for removals.
	Delta    int
	Quantity int
	// Dropped reports that the item left the stock because its quantity reached zero or below.
	Dropped    bool
	OccurredAt time.Time
}

func (StockChangedEvent) EventName() string { return "inventory.stock_changed" }

func NewStockChangedEvent(item string, delta, quantity int, dropped bool) StockChangedEvent {
	return StockChangedEvent{
		Item:       item,
		Delta:      delta,
		Quantity:   quantity,
		Dropped:    dropped,
		OccurredAt: time.Now().UTC(),
	}
}
