package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/config"
	"github.com/aphabeta/ADLLinks/internal/dispatcher"
	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/feature/membership"
	"github.com/aphabeta/ADLLinks/internal/feature/operator"
	"github.com/aphabeta/ADLLinks/internal/feature/user"
	"github.com/aphabeta/ADLLinks/internal/logging"
	"github.com/aphabeta/ADLLinks/internal/scheduler"
	"github.com/aphabeta/ADLLinks/internal/server"
	"github.com/aphabeta/ADLLinks/internal/store"
	"github.com/aphabeta/ADLLinks/internal/store/filestore"
	"github.com/aphabeta/ADLLinks/internal/telegram"
	"github.com/aphabeta/ADLLinks/internal/webhook"
)

const (
	mongoConnectTimeout       = 10 * time.Second
	mongoIndexTimeout         = 5 * time.Second
	storeCloseTimeout         = 5 * time.Second
	operatorBootstrapTimeout  = 5 * time.Second
	webhookDeregisterTimeout  = 5 * time.Second
	httpShutdownTimeout       = 5 * time.Second
	telegramShutdownTimeout   = 10 * time.Second
	webhookRegistrationBudget = 2 * time.Minute
	getMeTimeout              = 10 * time.Second
)

// backend bundles the stores of one persistence choice.
type backend struct {
	content   domain.ContentStore
	users     domain.UserRegistrar
	operators domain.OperatorStore
	health    server.StoreChecker
	close     func(ctx context.Context) error
}

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"store_backend": cfg.StoreBackend,
		"update_mode":   cfg.UpdateMode,
	}).Info("configuration loaded")

	stores, err := openBackend(cfg, logger)
	if err != nil {
		exit(logger, "store setup error", err)
	}

	operatorCtx, cancelOperators := context.WithTimeout(context.Background(), operatorBootstrapTimeout)
	err = operator.NewRegistrar(stores.operators, logger).EnsureConfigured(operatorCtx, cfg.SudoUsers)
	cancelOperators()
	if err != nil {
		exit(logger, "operator bootstrap error", err)
	}

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		exit(logger, "telegram client setup error", err)
	}

	meCtx, cancelMe := context.WithTimeout(context.Background(), getMeTimeout)
	botUsername, err := tgClient.Username(meCtx)
	cancelMe()
	if err != nil {
		logger.WithField("event", "get_me_failed").WithError(err).Warn("bot username unknown; accepting commands addressed to any bot")
	}

	d, err := dispatcher.New(dispatcher.Deps{
		Store:     stores.content,
		Users:     stores.users,
		Operators: operator.NewChecker(stores.operators),
		Gate:      membership.NewGate(tgClient, logger),
		Messenger: tgClient,
	},
		dispatcher.WithLogger(logger),
		dispatcher.WithPendingTTL(cfg.PendingTTL),
		dispatcher.WithThrottle(cfg.RateLimitPerMinute),
		dispatcher.WithBotUsername(botUsername),
	)
	if err != nil {
		exit(logger, "dispatcher setup error", err)
	}
	tgClient.SetHandler(d)

	logger.WithFields(logging.Fields{
		"event":        "telegram_ready",
		"bot_username": botUsername,
	}).Info("telegram client initialized")

	sched := scheduler.New(logger)
	if err := sched.AddSweep("pending_sweep", scheduler.EveryMinute, d.Pending().Sweep); err != nil {
		exit(logger, "scheduler setup error", err)
	}
	if err := sched.AddSweep("throttle_sweep", scheduler.EveryMinute, func() int {
		return d.Throttle().Sweep(dispatcher.DefaultThrottleIdle)
	}); err != nil {
		exit(logger, "scheduler setup error", err)
	}
	sched.Start()

	httpServer := server.NewServer(cfg.HTTPPort, stores.health, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())
	done := make(chan struct{})

	var registrar *webhook.Registrar
	if cfg.UpdateMode == config.ModeWebhook {
		httpServer.Handle(cfg.WebhookPath, webhook.NewHandler(tgClient, cfg.WebhookSecret, logger))
		registrar = webhook.NewRegistrar(tgClient, cfg.WebhookEndpoint(), cfg.WebhookSecret, logger)

		go func() {
			regCtx, cancelReg := context.WithTimeout(runCtx, webhookRegistrationBudget)
			defer cancelReg()
			// Failure is logged by the registrar; serving continues.
			_ = registrar.Register(regCtx)
		}()
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("http server error")
		}
		if cfg.UpdateMode == config.ModeWebhook {
			close(done)
		}
	}()

	if cfg.UpdateMode == config.ModePolling {
		if err := tgClient.DeleteWebhook(runCtx); err != nil {
			logger.WithField("event", "webhook_cleanup_failed").WithError(err).Warn("failed to clear webhook before polling")
		}
		go func() {
			tgClient.Start(runCtx)
			close(done)
		}()
	}

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, shutting down")
	case <-done:
		logger.WithField("event", "stopped_early").Warn("update receiver stopped before shutdown signal")
	}

	cancelRun()
	sched.Stop()

	if registrar != nil {
		deregCtx, cancelDereg := context.WithTimeout(context.Background(), webhookDeregisterTimeout)
		if err := registrar.Deregister(deregCtx); err != nil {
			logger.WithError(err).Warn("webhook deregistration error")
		}
		cancelDereg()
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}
	cancelHTTP()

	if cfg.UpdateMode == config.ModePolling {
		waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
		select {
		case <-done:
		case <-waitCtx.Done():
			logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
		}
		cancelWait()
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), storeCloseTimeout)
	if err := stores.close(closeCtx); err != nil {
		logger.WithError(err).Error("store close error")
	} else {
		logger.WithField("event", "store_closed").Info("store closed")
	}
	cancelClose()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func openBackend(cfg config.Config, logger *logrus.Entry) (backend, error) {
	if cfg.StoreBackend == config.BackendFile {
		fs, err := filestore.Open(cfg.DataFile)
		if err != nil {
			return backend{}, fmt.Errorf("open data file: %w", err)
		}

		logger.WithFields(logging.Fields{
			"event": "filestore_open",
			"path":  cfg.DataFile,
		}).Info("opened data file")

		return backend{content: fs, users: fs, operators: fs, health: fs, close: fs.Close}, nil
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		return backend{}, fmt.Errorf("mongo connection: %w", err)
	}

	logger.WithFields(logging.Fields{
		"event":    "mongo_connect",
		"mongo_db": cfg.MongoDB,
	}).Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = manager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		return backend{}, fmt.Errorf("mongo index setup: %w", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	return backend{
		content:   store.NewContentStore(manager),
		users:     user.NewRegistrar(manager.Users(), logger),
		operators: store.NewOperatorStore(manager.Operators()),
		health:    manager,
		close:     manager.Close,
	}, nil
}

func exit(logger *logrus.Entry, msg string, err error) {
	logger.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
