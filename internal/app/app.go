package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/campusgo/internal/auth"
	"github.com/kirinyoku/campusgo/internal/config"
	"github.com/kirinyoku/campusgo/internal/dispatch"
	"github.com/kirinyoku/campusgo/internal/live"
	"github.com/kirinyoku/campusgo/internal/notify"
	"github.com/kirinyoku/campusgo/internal/postgres"
	"github.com/kirinyoku/campusgo/internal/redis"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/campusgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/service"
	"github.com/kirinyoku/campusgo/internal/service/checkin"
	"github.com/kirinyoku/campusgo/internal/service/query"
	"github.com/kirinyoku/campusgo/internal/service/reminder"
	httpgin "github.com/kirinyoku/campusgo/internal/transport/http/gin"
	"github.com/kirinyoku/campusgo/internal/uow"
	"golang.org/x/sync/errgroup"
)

const relayRetryDelay = 2 * time.Second

type Options struct {
	// Migrate applies the embedded schema before serving.
	Migrate bool
	// Reminders runs the reminder sweep on this replica.
	Reminders bool
}

type App struct {
	cfg        *config.Config
	opts       Options
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	dispatcher *dispatch.Dispatcher
	broker     *live.Broker
	pubsub     *redisrepo.EventsPubSub
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{cfg: cfg, opts: opts, logger: logger}

	runner, repos, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache     *redisrepo.Cache
		idem      *redisrepo.IdempotencyStore
		claimer   reminder.Claimer = reminder.NewLocalClaimer()
		routeDeps httpgin.Deps
	)

	redisCfg := redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	if redisCfg.Enabled() {
		rdb, err := redis.New(ctx, redisCfg)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.NewCache(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Registration.IdempotencyTTL)
		claimer = idem
		a.pubsub = redisrepo.NewEventsPubSub(rdb)

		if n := cfg.RateLimit.PerMinute; n > 0 {
			routeDeps.RegisterLimiter = redisrepo.NewSlidingWindowLimiter(rdb, "register", n, time.Minute)
			routeDeps.CheckInLimiter = redisrepo.NewSlidingWindowLimiter(rdb, "checkin", n, time.Minute)
		}
	} else {
		logger.Warn("redis disabled: no cache, rate limits or idempotency keys; live feed is local to this replica")
	}

	a.services = service.NewServices(runner, cache, claimer, service.Config{
		CheckIn: checkin.Config{
			OpensBefore: cfg.CheckIn.OpensBefore,
			ClosesAfter: cfg.CheckIn.ClosesAfter,
		},
		Query: query.Config{EventSummaryTTL: 15 * time.Second},
	})

	a.broker = live.NewBroker(32)

	deps := dispatch.Deps{
		Repos: repos,
		Mailer: notify.NewMailer(notify.Config{
			Provider:    cfg.Mail.Provider,
			FromAddress: cfg.Mail.FromAddress,
			FromName:    cfg.Mail.FromName,
			SES: notify.SESConfig{
				Region:          cfg.Mail.AWSRegion,
				AccessKeyID:     cfg.Mail.AWSAccessKeyID,
				SecretAccessKey: cfg.Mail.AWSSecretAccessKey,
				Endpoint:        cfg.Mail.SESEndpoint,
			},
		}, logger),
		Publisher: a.broker,
	}
	if cache != nil {
		deps.Cache = cache
	}
	if a.pubsub != nil {
		// The relay feeds the local broker from every replica.
		deps.Publisher = a.pubsub
	}
	a.dispatcher = dispatch.New(logger, deps, dispatch.Config{})

	routeDeps.Services = a.services
	routeDeps.Effects = a.dispatcher
	routeDeps.Verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
	routeDeps.Feed = a.broker
	routeDeps.Idempotency = idem
	routeDeps.RequestTimeout = cfg.Server.RequestTimeout

	router := httpgin.NewRouter(routeDeps, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.httpServer.RegisterOnShutdown(a.broker.Close)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (uow.Runner, repository.Repos, error) {
	if a.cfg.StoreDriver == config.DriverMemory {
		a.logger.Warn("using in-memory store; data is lost on exit")
		store := memory.New()
		return store, store.Repos(), nil
	}

	pool, err := postgres.New(ctx, postgres.Config{
		DSN:      a.cfg.Postgres.DSN(),
		MaxConns: a.cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if a.opts.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		a.logger.Info("schema applied")
	}

	store := postgresrepo.NewStore(pool)
	return uow.NewUoW(store), store.Repos(), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// The dispatcher outlives the HTTP server so effects of requests that
	// finish during shutdown are still drained.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g.Go(func() error {
		return a.dispatcher.Run(dispatchCtx)
	})

	if a.pubsub != nil {
		g.Go(func() error {
			a.relay(gCtx)
			return nil
		})
	}

	if a.opts.Reminders {
		g.Go(func() error {
			a.sweepReminders(gCtx)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		defer stopDispatch()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// relay forwards redis pub/sub messages to the local live broker,
// resubscribing after connection errors.
func (a *App) relay(ctx context.Context) {
	for {
		err := a.pubsub.Subscribe(ctx, nil, func(_ context.Context, msg redisrepo.Message) {
			a.broker.Publish(live.Update{
				Type:        msg.Type,
				EventID:     msg.EventID,
				UserID:      msg.UserID,
				Method:      msg.Method,
				CheckedInAt: msg.CheckedInAt,
			})
		})
		if ctx.Err() != nil {
			return
		}

		a.logger.Warn("pubsub relay stopped, retrying", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(relayRetryDelay):
		}
	}
}

func (a *App) sweepReminders(ctx context.Context) {
	interval := a.cfg.Reminder.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		effects, err := a.services.Reminder.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("reminder sweep failed", "err", err)
		}
		if len(effects) > 0 {
			a.logger.Info("reminders due", "count", len(effects))
			a.dispatcher.Enqueue(effects)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
