package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/stockkeeper/internal/domain/outbox"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	inventoryService = "inventory-service"
	spanPrefix       = "UC."
	storagePeer      = "stockfile"
	publishTimeout   = 300 * time.Millisecond

	useCaseAdd      = "inventory.add"
	useCaseRemove   = "inventory.remove"
	useCaseQuantity = "inventory.quantity"
	useCaseLowStock = "inventory.low_stock"
	useCaseLoad     = "inventory.load"
	useCaseSave     = "inventory.save"
	useCaseReport   = "inventory.report"

	emptyReportLine = "No items in stock."
)

var errNoRepository = errors.New("inventory: no repository configured")

// Service owns one Stock and exposes every inventory operation.
// Rejections are logged as warnings and also returned to the caller.
type Service struct {
	stock     *dominv.Stock
	repo      dominv.Repository
	publisher domoutbox.Publisher
	ids       dominv.IDGenerator
	now       func() time.Time

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
	stockGauge   observability.Gauge
}

// NewService wires a service around stock. A nil stock starts empty; publisher and tel may be nil.
func NewService(stock *dominv.Stock, repo dominv.Repository, publisher domoutbox.Publisher, ids dominv.IDGenerator, tel observability.Observability) *Service {
	if stock == nil {
		stock = dominv.NewStock()
	}
	if tel == nil {
		tel = observability.Nop()
	}
	metricsProvider := tel.Metrics()

	return &Service{
		stock:        stock,
		repo:         repo,
		publisher:    publisher,
		ids:          ids,
		now:          func() time.Time { return time.Now().UTC() },
		log:          tel.Logger().With(observability.F("service", inventoryService)),
		tracer:       tel.Tracer(),
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:   metricsProvider.Counter(observability.MExternalRequests),
		extHistogram: metricsProvider.Histogram(observability.MExternalRequestDuration),
		stockGauge:   metricsProvider.Gauge(observability.MStockQuantity),
	}
}

// Add increases item by quantity and records the addition in activity when it is non-nil.
func (s *Service) Add(ctx context.Context, item string, quantity int, activity *dominv.ActivityLog) (err error) {
	ctx, logger, done := s.begin(ctx, useCaseAdd, "Add",
		[]attribute.KeyValue{attribute.String("inventory.item", item), attribute.Int("inventory.quantity", quantity)},
		observability.F("item", item), observability.F("quantity", quantity),
	)
	defer func() { done(err) }()

	total, err := s.stock.Add(item, quantity)
	if err != nil {
		logger.Warn("stock_add_rejected", observability.F("reason", err.Error()))
		return fmt.Errorf("inventory: add: %w", err)
	}

	if activity != nil {
		entry := activity.RecordAddition(s.newID(), s.now(), item, quantity)
		logger = logger.With(observability.F("activity_id", entry.ID))
	}
	s.stockGauge.Set(float64(total), observability.L("item", item))
	logger.Info("stock_added", observability.F("total", total))

	s.publish(ctx, logger, dominv.NewStockChangedEvent(item, quantity, total, false))
	return nil
}

// Remove decreases item by quantity, dropping it once nothing is left.
func (s *Service) Remove(ctx context.Context, item string, quantity int) (err error) {
	ctx, logger, done := s.begin(ctx, useCaseRemove, "Remove",
		[]attribute.KeyValue{attribute.String("inventory.item", item), attribute.Int("inventory.quantity", quantity)},
		observability.F("item", item), observability.F("quantity", quantity),
	)
	defer func() { done(err) }()

	remaining, dropped, err := s.stock.Remove(item, quantity)
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		logger.Warn("stock_item_not_found")
		return fmt.Errorf("inventory: remove %q: %w", item, err)
	case err != nil:
		logger.Warn("stock_remove_rejected", observability.F("reason", err.Error()))
		return fmt.Errorf("inventory: remove: %w", err)
	}

	if dropped {
		s.stockGauge.Delete(observability.L("item", item))
	} else {
		s.stockGauge.Set(float64(remaining), observability.L("item", item))
	}
	logger.Info("stock_removed",
		observability.F("remaining", remaining),
		observability.F("dropped", dropped),
	)

	s.publish(ctx, logger, dominv.NewStockChangedEvent(item, -quantity, remaining, dropped))
	return nil
}

// Quantity returns the stored quantity, or 0 for unknown or empty item names.
func (s *Service) Quantity(ctx context.Context, item string) int {
	_, logger, done := s.begin(ctx, useCaseQuantity, "Quantity",
		[]attribute.KeyValue{attribute.String("inventory.item", item)},
		observability.F("item", item),
	)
	if err := dominv.ValidateItem(item); err != nil {
		logger.Warn("invalid_item_name")
		done(err)
		return 0
	}
	done(nil)
	return s.stock.Quantity(item)
}

// LowStock lists items strictly below threshold. A negative threshold is replaced by
// dominv.DefaultLowStockThreshold.
func (s *Service) LowStock(ctx context.Context, threshold int) []string {
	_, logger, done := s.begin(ctx, useCaseLowStock, "LowStock",
		[]attribute.KeyValue{attribute.Int("inventory.threshold", threshold)},
		observability.F("threshold", threshold),
	)
	defer done(nil)

	if threshold < 0 {
		logger.Warn("invalid_threshold",
			observability.F("reason", dominv.ErrInvalidThreshold.Error()),
			observability.F("substituted", dominv.DefaultLowStockThreshold),
		)
		threshold = dominv.DefaultLowStockThreshold
	}
	return s.stock.Below(threshold)
}

// Load replaces the whole stock with what is stored at path. Nothing stored yet
// means an empty stock. Malformed data also empties the stock and the returned
// error wraps dominv.ErrDecode. Any other failure leaves the stock untouched.
func (s *Service) Load(ctx context.Context, path string) (err error) {
	ctx, logger, done := s.begin(ctx, useCaseLoad, "Load",
		[]attribute.KeyValue{attribute.String("inventory.path", path)},
		observability.F("path", path),
	)
	defer func() { done(err) }()

	if s.repo == nil {
		return errNoRepository
	}

	previous := s.stock.Snapshot()
	var snap dominv.Snapshot
	err = s.external(ctx, "load", func(ctx context.Context) error {
		var loadErr error
		snap, loadErr = s.repo.Load(ctx, path)
		return loadErr
	})
	if err == nil {
		if replaceErr := s.stock.Replace(snap); replaceErr != nil {
			err = fmt.Errorf("%w: %v", dominv.ErrDecode, replaceErr)
		}
	}

	switch {
	case errors.Is(err, dominv.ErrDecode):
		s.stock.Reset()
		s.refreshGauges(previous, nil)
		logger.Error("stock_decode_failed", observability.F("error", err))
		return fmt.Errorf("inventory: load: %w", err)
	case err != nil:
		logger.Error("stock_load_failed", observability.F("error", err))
		return fmt.Errorf("inventory: load: %w", err)
	}

	s.refreshGauges(previous, snap)
	logger.Info("stock_loaded", observability.F("items", len(snap)))
	return nil
}

// Save writes the current stock to path. Failures are logged and returned.
func (s *Service) Save(ctx context.Context, path string) (err error) {
	ctx, logger, done := s.begin(ctx, useCaseSave, "Save",
		[]attribute.KeyValue{attribute.String("inventory.path", path)},
		observability.F("path", path),
	)
	defer func() { done(err) }()

	if s.repo == nil {
		return errNoRepository
	}

	snap := s.stock.Snapshot()
	err = s.external(ctx, "save", func(ctx context.Context) error {
		return s.repo.Save(ctx, path, snap)
	})
	if err != nil {
		logger.Error("stock_save_failed", observability.F("error", err))
		return fmt.Errorf("inventory: save: %w", err)
	}
	logger.Info("stock_saved", observability.F("items", len(snap)))
	return nil
}

// Report writes "<item> -> <quantity>" per item to w, or a placeholder line when empty.
func (s *Service) Report(ctx context.Context, w io.Writer) (err error) {
	_, logger, done := s.begin(ctx, useCaseReport, "Report", nil)
	defer func() { done(err) }()

	snap := s.stock.Snapshot()
	logger.Info("items_report", observability.F("items", len(snap)))

	if len(snap) == 0 {
		_, err = fmt.Fprintln(w, emptyReportLine)
		return err
	}
	for _, e := range snap {
		if _, err = fmt.Fprintf(w, "%s -> %d\n", e.Item, e.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns an ordered copy of the current stock.
func (s *Service) Snapshot() dominv.Snapshot {
	return s.stock.Snapshot()
}

// begin starts the span, enriches the scoped logger and returns a completion func that
// records outcome metrics and the use_case_done line.
func (s *Service) begin(
	ctx context.Context,
	useCase, spanName string,
	attrs []attribute.KeyValue,
	fields ...observability.Field,
) (context.Context, observability.Logger, func(error)) {
	fields = append([]observability.Field{observability.F("use_case", useCase)}, fields...)
	ctx, logger := logctx.Enrich(ctx, s.log, fields...)

	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	start := time.Now()

	return ctx, logger, func(err error) {
		outcome, status := classify(err)
		if span != nil {
			if outcome == "error" {
				span.RecordError(err)
				span.SetStatus(codes.Error, status)
			} else {
				span.SetStatus(codes.Ok, status)
			}
			span.End()
		}

		latency := time.Since(start).Seconds()
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(latency,
			observability.L("use_case", useCase),
		)

		done := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", latency),
		}
		if err != nil {
			done = append(done, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", done...)
	}
}

// external times a call to the backing store and records it as an external request.
func (s *Service) external(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.extCounter.Add(1,
		observability.L("peer", storagePeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", storagePeer),
		observability.L("endpoint", endpoint),
	)
	return err
}

func (s *Service) publish(ctx context.Context, logger observability.Logger, event domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", event.EventName()),
			observability.F("error", err),
		)
	}
}

func (s *Service) refreshGauges(previous, current dominv.Snapshot) {
	for _, e := range previous {
		s.stockGauge.Delete(observability.L("item", e.Item))
	}
	for _, e := range current {
		s.stockGauge.Set(float64(e.Quantity), observability.L("item", e.Item))
	}
}

func (s *Service) newID() string {
	if s.ids == nil {
		return ""
	}
	return s.ids.NewID()
}

func classify(err error) (outcome, status string) {
	switch {
	case err == nil:
		return "success", "OK"
	case errors.Is(err, dominv.ErrInvalidItem), errors.Is(err, dominv.ErrInvalidQuantity):
		return "rejected", "INVALID_ARGUMENT"
	case errors.Is(err, dominv.ErrNotFound):
		return "rejected", "NOT_FOUND"
	case errors.Is(err, dominv.ErrOverflow):
		return "rejected", "OUT_OF_RANGE"
	case errors.Is(err, dominv.ErrDecode):
		return "error", "DECODE_FAILED"
	default:
		return "error", "INTERNAL"
	}
}
