package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	appinv "github.com/Zhima-Mochi/stockkeeper/internal/application/inventory"
	"github.com/Zhima-Mochi/stockkeeper/internal/config"
	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/filestore"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/id"
	infraobs "github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	"github.com/Zhima-Mochi/stockkeeper/internal/pkg/logging"
)

const (
	componentCLI    = "cli"
	shutdownTimeout = 5 * time.Second
)

// runtime is everything a command needs, built once flags are parsed.
type runtime struct {
	cfg      *config.Config
	dataFile string
	svc      *appinv.Service
	bus      *outbox.Bus
	metrics  *prometrics.Registry
	logger   *zaplogger.Logger
	log      observability.Logger
}

func (rt *runtime) init(ctx context.Context, flags *globalFlags, opts Options) error {
	cfg, err := config.Load(config.Options{ConfigFile: flags.configFile, EnvFile: flags.envFile})
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.dataFile = cfg.DataFile
	if flags.dataFile != "" {
		rt.dataFile = flags.dataFile
	}

	base := opts.BaseLogger
	if base == nil {
		base, err = logging.NewLogger(logging.Options{
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Level:   cfg.Log.Level,
			File:    cfg.Log.File,
		})
		if err != nil {
			return fmt.Errorf("cli: build logger: %w", err)
		}
	}
	rt.logger = zaplogger.New(base)
	rt.log = rt.logger.With(observability.F("component", componentCLI))

	rt.metrics = prometrics.New("", "")
	counters, histograms, gauges := rt.metrics.Instruments()
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), rt.logger, counters, histograms, gauges)

	rt.bus = outbox.NewBus(rt.logger, outbox.Options{})
	appinv.NewWorker(rt.bus, appinv.NewLowStockAlertUseCase(cfg.LowStockThreshold, tel), tel).Start()
	rt.bus.Start(ctx)

	rt.svc = appinv.NewService(dominv.NewStock(), filestore.New(rt.logger), rt.bus, id.NewUUIDGenerator(), tel)
	return nil
}

// close drains pending events, optionally dumps metrics and flushes logs.
func (rt *runtime) close(ctx context.Context, errOut io.Writer, dumpMetrics bool) error {
	if rt.bus == nil {
		return nil
	}

	var errs []error
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := rt.bus.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("cli: stop event bus: %w", err))
	}
	if dumpMetrics {
		if err := rt.metrics.WriteText(errOut); err != nil {
			errs = append(errs, err)
		}
	}
	// Sync on a terminal stderr reports EINVAL on some platforms; nothing useful to do about it.
	_ = rt.logger.Sync()
	return errors.Join(errs...)
}

// loadStock reads the data file; any failure aborts so a corrupt file is never overwritten.
func (rt *runtime) loadStock(ctx context.Context) error {
	return rt.svc.Load(ctx, rt.dataFile)
}
