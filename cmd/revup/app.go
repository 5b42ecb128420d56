package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Devdesai111/RevUp-sub000/internal/cache"
	"github.com/Devdesai111/RevUp-sub000/internal/config"
	"github.com/Devdesai111/RevUp-sub000/internal/health"
	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/kv"
	"github.com/Devdesai111/RevUp-sub000/internal/lock"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/recalc"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// app holds the components every command shares. Close releases them in
// reverse order of creation.
type app struct {
	cfg      *config.Config
	store    store.Store
	kv       kv.Store
	queue    jobs.Queue
	hub      *notify.Hub
	notifier notify.Notifier
	counters *cache.Counters
	engine   *recalc.Engine

	closers []func() error
}

func openApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, hub: notify.NewHub()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	var redisKV *kv.RedisStore
	switch cfg.KV.Driver {
	case config.BackendRedis:
		redisKV, err = kv.DialRedis(ctx, cfg.KV.URL)
		if err != nil {
			return nil, err
		}
		a.kv = redisKV
	default:
		a.kv = kv.NewMemoryStore()
	}
	a.closers = append(a.closers, a.kv.Close)

	switch cfg.Queue.Driver {
	case config.BackendRedis:
		rq := jobs.NewRedisQueue(redisKV.Client(), cfg.Queue.Key, cfg.Queue.MaxAttempts)
		n, err := rq.Recover(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover in-flight jobs: %w", err)
		}
		if n > 0 {
			logging.WithComponent("queue").Info("requeued in-flight jobs", slog.Int("count", n))
		}
		a.queue = rq
	default:
		a.queue = jobs.NewMemoryQueue(cfg.Queue.Buffer, cfg.Queue.MaxAttempts)
	}
	a.closers = append(a.closers, a.queue.Close)

	a.notifier = notify.Multi{notify.NewLogNotifier(nil), a.hub}
	a.counters = cache.NewCounters(a.kv)

	a.engine, err = recalc.NewEngine(recalc.Deps{
		Executions:  a.store,
		Metrics:     a.store,
		Reflections: a.store,
		Caches:      cache.NewInvalidator(a.kv),
		Notifier:    a.notifier,
		Locker:      lock.New(a.kv, lock.WithLogger(logging.WithComponent("lock"))),
		Markers:     cache.NewMarkers(a.kv),
		Counters:    a.counters,
	}, cfg.EngineConfig(), logging.WithComponent("recalc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return a, nil
}

func openStore(ctx context.Context, cfg *config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		pg, err := store.DialPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return store.NewSQLiteStore(cfg.Path, cfg.Driver)
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// probes lists the dependencies /health and 'revup doctor' ping.
func (a *app) probes() []health.Probe {
	kvFix := "kv.driver memory needs no setup"
	if a.cfg.KV.Driver == config.BackendRedis {
		kvFix = "check kv.url and that redis is running"
	}
	return []health.Probe{
		{Name: "store (" + a.cfg.Store.Driver + ")", Target: a.store, Fix: "check store.path or store.dsn"},
		{Name: "kv (" + a.cfg.KV.Driver + ")", Target: a.kv, Fix: kvFix},
	}
}

// drain runs queued jobs inline. One-shot commands use it with the memory
// queue so jobs enqueued during the command are not lost on exit.
func (a *app) drain(ctx context.Context) (processed, failed int) {
	mq, ok := a.queue.(*jobs.MemoryQueue)
	if !ok {
		return 0, 0
	}
	for mq.Len() > 0 {
		d, err := mq.Dequeue(ctx)
		if err != nil {
			return processed, failed
		}
		if err := a.engine.Handle(ctx, d.Job()); err != nil {
			failed++
			_ = d.Nack(ctx, err)
			continue
		}
		processed++
		_ = d.Ack(ctx)
	}
	return processed, failed
}
