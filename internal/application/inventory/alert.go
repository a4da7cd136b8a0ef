package inventory

import (
	"context"
	"time"

	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability/logctx"
)

const useCaseLowStockAlert = "inventory.low_stock_alert"

// AlertLevel describes how urgent a stock change is.
type AlertLevel string

const (
	AlertNone       AlertLevel = ""
	AlertLowStock   AlertLevel = "low_stock"
	AlertOutOfStock AlertLevel = "out_of_stock"
)

// AlertResult exposes what the alert use case decided for one stock change.
type AlertResult struct {
	Level    AlertLevel
	Item     string
	Quantity int
}

// LowStockAlertUseCase turns stock changes into warnings when an item falls below the threshold.
type LowStockAlertUseCase struct {
	threshold    int
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

// NewLowStockAlertUseCase uses dominv.DefaultLowStockThreshold when threshold is negative.
func NewLowStockAlertUseCase(threshold int, tel observability.Observability) *LowStockAlertUseCase {
	if threshold < 0 {
		threshold = dominv.DefaultLowStockThreshold
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &LowStockAlertUseCase{
		threshold:    threshold,
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (uc *LowStockAlertUseCase) Execute(ctx context.Context, e dominv.StockChangedEvent) (*AlertResult, error) {
	start := time.Now()
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseLowStockAlert),
		observability.F("item", e.Item),
		observability.F("quantity", e.Quantity),
		observability.F("threshold", uc.threshold),
	)

	res := &AlertResult{Item: e.Item, Quantity: e.Quantity}
	switch {
	case e.Dropped:
		res.Level = AlertOutOfStock
		logger.Warn("out_of_stock_alert")
	case e.Quantity < uc.threshold:
		res.Level = AlertLowStock
		logger.Warn("low_stock_alert")
	}

	outcome := "quiet"
	if res.Level != AlertNone {
		outcome = string(res.Level)
	}
	uc.reqCounter.Add(1,
		observability.L("use_case", useCaseLowStockAlert),
		observability.L("outcome", outcome),
	)
	uc.durHistogram.Observe(time.Since(start).Seconds(),
		observability.L("use_case", useCaseLowStockAlert),
	)
	return res, nil
}
