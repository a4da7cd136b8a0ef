package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/stockkeeper/internal/application"
	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/stockkeeper/internal/domain/outbox"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	workerpresentation "github.com/Zhima-Mochi/stockkeeper/internal/presentation/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workerService = "inventory_worker"

// Worker feeds StockChangedEvents from the bus into the alert use case.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[dominv.StockChangedEvent, *AlertResult]
	tracer     observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[dominv.StockChangedEvent, *AlertResult],
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber:   subscriber,
		useCase:      useCase,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(dominv.StockChangedEvent{}.EventName(), w.handleStockChanged)
}

func (w *Worker) handleStockChanged(ctx context.Context, e domoutbox.Event) (err error) {
	const useCase = "inventory.worker.stock_changed"
	evt, ok := e.(dominv.StockChangedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, spanPrefix+"StockChanged",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("inventory.item", evt.Item),
	)
	ctx = workerpresentation.WithEventContext(ctx, w.log, map[string]string{
		"use_case": useCase,
		"event":    e.EventName(),
	})
	start := time.Now()

	defer func() {
		outcome, status := "success", "OK"
		if err != nil {
			outcome, status = "error", "ALERT_FAILED"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
		w.observe(useCase, outcome, time.Since(start).Seconds())
	}()

	if _, err = w.useCase.Execute(ctx, evt); err != nil {
		return fmt.Errorf("worker: low stock alert: %w", err)
	}
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *Worker) observe(useCase string, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
