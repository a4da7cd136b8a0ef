package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/stockkeeper/internal/domain/outbox"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/filestore"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	svc  *Service
	repo *memory.InventoryRepository
	pub  *recordingPublisher
	logs *observer.ObservedLogs
	reg  *prometrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometrics.New("", "")
	counters, histograms, gauges := reg.Instruments()
	tel := infraobs.New(nil, zaplogger.New(zap.New(core)), counters, histograms, gauges)

	repo := memory.NewInventoryRepository()
	pub := &recordingPublisher{}
	return &fixture{
		svc:  NewService(nil, repo, pub, &seqIDs{}, tel),
		repo: repo,
		pub:  pub,
		logs: logs,
		reg:  reg,
	}
}

func (f *fixture) requests(t *testing.T, useCase, outcome string) float64 {
	t.Helper()
	mfs, err := f.reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != string(observability.MUsecaseRequests) {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["use_case"] == useCase && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestService_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var activity dominv.ActivityLog

	if err := f.svc.Add(ctx, "apple", 10, &activity); err != nil {
		t.Fatalf("add apple: %v", err)
	}
	if err := f.svc.Add(ctx, "banana", -2, &activity); !errors.Is(err, dominv.ErrInvalidQuantity) {
		t.Fatalf("expected banana -2 rejected, got %v", err)
	}
	if err := f.svc.Add(ctx, "123", 10, &activity); err != nil {
		t.Fatalf("add 123: %v", err)
	}
	if err := f.svc.Remove(ctx, "apple", 3); err != nil {
		t.Fatalf("remove apple: %v", err)
	}
	if err := f.svc.Remove(ctx, "orange", 1); !errors.Is(err, dominv.ErrNotFound) {
		t.Fatalf("expected orange not found, got %v", err)
	}

	if got := f.svc.Quantity(ctx, "apple"); got != 7 {
		t.Fatalf("expected apple 7, got %d", got)
	}
	if got := f.svc.Quantity(ctx, "banana"); got != 0 {
		t.Fatalf("expected banana absent, got %d", got)
	}
	want := dominv.Snapshot{{Item: "apple", Quantity: 7}, {Item: "123", Quantity: 10}}
	if got := f.svc.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	entries := activity.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 activity entries, got %d", len(entries))
	}
	if entries[0].ID != "id-1" || entries[1].ID != "id-2" {
		t.Fatalf("unexpected activity ids: %+v", entries)
	}

	if n := f.logs.FilterMessage("stock_add_rejected").Len(); n != 1 {
		t.Fatalf("expected 1 stock_add_rejected warning, got %d", n)
	}
	if n := f.logs.FilterMessage("stock_item_not_found").FilterField(zap.String("item", "orange")).Len(); n != 1 {
		t.Fatalf("expected orange not-found warning, got %d", n)
	}
	if got := f.requests(t, useCaseAdd, "rejected"); got != 1 {
		t.Fatalf("expected 1 rejected add, got %v", got)
	}
	if got := f.requests(t, useCaseAdd, "success"); got != 2 {
		t.Fatalf("expected 2 successful adds, got %v", got)
	}
}

func TestService_AddRejectsEmptyItem(t *testing.T) {
	f := newFixture(t)
	var activity dominv.ActivityLog
	if err := f.svc.Add(context.Background(), "", 3, &activity); !errors.Is(err, dominv.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
	if len(f.svc.Snapshot()) != 0 || activity.Len() != 0 {
		t.Fatal("rejected add must not change stock or activity")
	}
	if len(f.pub.events) != 0 {
		t.Fatalf("rejected add must not publish, got %v", f.pub.events)
	}
}

func TestService_AddWithoutActivityLog(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Add(context.Background(), "apple", 1, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if f.svc.Quantity(context.Background(), "apple") != 1 {
		t.Fatal("expected apple 1")
	}
}

func TestService_RemoveDropsItemAndGauge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.svc.Add(ctx, "apple", 4, nil)
	_ = f.svc.Add(ctx, "pear", 2, nil)

	if err := f.svc.Remove(ctx, "apple", 10); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := f.svc.Quantity(ctx, "apple"); got != 0 {
		t.Fatalf("expected apple gone, got %d", got)
	}

	n, err := testutil.GatherAndCount(f.reg.Gatherer(), string(observability.MStockQuantity))
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only pear gauge left, got %d series", n)
	}

	last := f.pub.events[len(f.pub.events)-1].(dominv.StockChangedEvent)
	if !last.Dropped || last.Item != "apple" || last.Delta != -10 {
		t.Fatalf("unexpected event: %+v", last)
	}
}

func TestService_PublishFailureDoesNotFailAdd(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("bus down")
	if err := f.svc.Add(context.Background(), "apple", 1, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := f.logs.FilterMessage("event_publish_failed").Len(); n != 1 {
		t.Fatalf("expected publish failure warning, got %d", n)
	}
}

func TestService_QuantityOfEmptyName(t *testing.T) {
	f := newFixture(t)
	if got := f.svc.Quantity(context.Background(), ""); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if n := f.logs.FilterMessage("invalid_item_name").Len(); n != 1 {
		t.Fatalf("expected invalid_item_name warning, got %d", n)
	}
}

func TestService_LowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.svc.Add(ctx, "apple", 2, nil)
	_ = f.svc.Add(ctx, "banana", 5, nil)

	if got := f.svc.LowStock(ctx, 3); !reflect.DeepEqual(got, []string{"apple"}) {
		t.Fatalf("expected [apple], got %v", got)
	}
	if got := f.svc.LowStock(ctx, dominv.DefaultLowStockThreshold); !reflect.DeepEqual(got, []string{"apple"}) {
		t.Fatalf("expected [apple] at default, got %v", got)
	}
	if got := f.svc.LowStock(ctx, -1); !reflect.DeepEqual(got, []string{"apple"}) {
		t.Fatalf("expected default substituted, got %v", got)
	}
	if n := f.logs.FilterMessage("invalid_threshold").Len(); n != 1 {
		t.Fatalf("expected invalid_threshold warning, got %d", n)
	}
}

func TestService_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inventory.json")
	store := filestore.New(nil)

	src := NewService(nil, store, nil, nil, nil)
	_ = src.Add(ctx, "zucchini", 3, nil)
	_ = src.Add(ctx, "apple", 12, nil)
	_ = src.Add(ctx, "123", 1, nil)
	if err := src.Save(ctx, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := NewService(nil, store, nil, nil, nil)
	_ = dst.Add(ctx, "stale", 9, nil)
	if err := dst.Load(ctx, path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(dst.Snapshot(), src.Snapshot()) {
		t.Fatalf("round trip mismatch: %v vs %v", dst.Snapshot(), src.Snapshot())
	}
}

func TestService_OverflowingAddKeepsFileLoadable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inventory.json")
	f.svc.repo = filestore.New(nil)

	_ = f.svc.Add(ctx, "keep", 3, nil)
	if err := f.svc.Add(ctx, "x", math.MaxInt, nil); err != nil {
		t.Fatalf("Add max: %v", err)
	}
	if err := f.svc.Add(ctx, "x", 1, nil); !errors.Is(err, dominv.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if err := f.svc.Remove(ctx, "keep", -math.MaxInt); !errors.Is(err, dominv.ErrOverflow) {
		t.Fatalf("expected ErrOverflow on remove, got %v", err)
	}
	if got := f.requests(t, useCaseAdd, "rejected"); got != 1 {
		t.Fatalf("expected one rejected add, got %v", got)
	}

	want := dominv.Snapshot{{Item: "keep", Quantity: 3}, {Item: "x", Quantity: math.MaxInt}}
	if err := f.svc.Save(ctx, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := f.svc.Load(ctx, path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(f.svc.Snapshot(), want) {
		t.Fatalf("expected %v after reload, got %v", want, f.svc.Snapshot())
	}
}

func TestService_LoadMissingResetsToEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.svc.Add(ctx, "apple", 1, nil)

	if err := f.svc.Load(ctx, "never-saved.json"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.svc.Snapshot()) != 0 {
		t.Fatalf("expected empty stock, got %v", f.svc.Snapshot())
	}
	n, _ := testutil.GatherAndCount(f.reg.Gatherer(), string(observability.MStockQuantity))
	if n != 0 {
		t.Fatalf("expected stale gauges cleared, got %d", n)
	}
}

func TestService_LoadInvalidDataResetsAndReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.svc.Add(ctx, "apple", 1, nil)
	f.repo.Put("bad.json", dominv.Snapshot{{Item: "pear", Quantity: -4}})

	err := f.svc.Load(ctx, "bad.json")
	if !errors.Is(err, dominv.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if len(f.svc.Snapshot()) != 0 {
		t.Fatalf("expected stock reset, got %v", f.svc.Snapshot())
	}
	if n := f.logs.FilterMessage("stock_decode_failed").FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Fatalf("expected one decode error log, got %d", n)
	}
}

type failingRepo struct{ err error }

func (r failingRepo) Load(context.Context, string) (dominv.Snapshot, error) { return nil, r.err }
func (r failingRepo) Save(context.Context, string, dominv.Snapshot) error  { return r.err }

func TestService_IOFailuresKeepStockAndAreReturned(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	reg := prometrics.New("", "")
	counters, histograms, gauges := reg.Instruments()
	tel := infraobs.New(nil, zaplogger.New(zap.New(core)), counters, histograms, gauges)

	ioErr := errors.New("disk on fire")
	svc := NewService(nil, failingRepo{err: ioErr}, nil, nil, tel)
	ctx := context.Background()
	_ = svc.Add(ctx, "apple", 2, nil)

	if err := svc.Load(ctx, "x.json"); !errors.Is(err, ioErr) {
		t.Fatalf("expected io error from Load, got %v", err)
	}
	if svc.Quantity(ctx, "apple") != 2 {
		t.Fatal("failed load must leave stock untouched")
	}
	if err := svc.Save(ctx, "x.json"); !errors.Is(err, ioErr) {
		t.Fatalf("expected io error from Save, got %v", err)
	}
	if n := logs.FilterMessage("stock_save_failed").Len(); n != 1 {
		t.Fatalf("expected stock_save_failed log, got %d", n)
	}

	got, err := testutil.GatherAndCount(reg.Gatherer(), string(observability.MExternalRequests))
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected load and save external series, got %d", got)
	}
}

func TestService_Report(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, nil, nil, nil, nil)

	var buf bytes.Buffer
	if err := svc.Report(ctx, &buf); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if buf.String() != "No items in stock.\n" {
		t.Fatalf("unexpected empty report: %q", buf.String())
	}

	_ = svc.Add(ctx, "apple", 7, nil)
	_ = svc.Add(ctx, "123", 10, nil)
	buf.Reset()
	if err := svc.Report(ctx, &buf); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if buf.String() != "apple -> 7\n123 -> 10\n" {
		t.Fatalf("unexpected report: %q", buf.String())
	}
}

func TestService_NoRepository(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil)
	if err := svc.Save(context.Background(), "x.json"); err == nil {
		t.Fatal("expected error without repository")
	}
}

func TestService_SpansCarryOutcome(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tel := infraobs.New(oteltrace.FromProvider(tp, "test"), nil, nil, nil, nil)
	svc := NewService(nil, failingRepo{err: errors.New("disk on fire")}, nil, nil, tel)
	ctx := context.Background()

	_ = svc.Add(ctx, "apple", 1, nil)
	_ = svc.Save(ctx, "x.json")

	ended := sr.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "UC.Add" || ended[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected add span: %s %v", ended[0].Name(), ended[0].Status())
	}
	if ended[1].Name() != "UC.Save" || ended[1].Status().Code != codes.Error {
		t.Fatalf("unexpected save span: %s %v", ended[1].Name(), ended[1].Status())
	}
}
