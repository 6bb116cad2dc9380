package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/minishop-cart/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/config"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/breaker"
	httptransport "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/http"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/orders"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/payment"
	recoveryworker "github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/recovery/worker"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	registry := prometrics.New(prometheus.DefaultRegisterer, "", "")
	counters, histograms := prometrics.Standard(registry)
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), zaplogger.New(baseLogger), counters, histograms)
	systemLogger := tel.Logger().With(observability.F("component", "main"))

	health := map[string]httppresentation.HealthCheck{}

	var storage domcart.Storage
	switch cfg.StorageBackend {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = client.Close() }()
		kv := redisstore.NewKVStore(client, redisstore.DefaultPrefix)
		storage = kv
		health["storage"] = kv.Ping
	default:
		storage = memory.NewKVStore()
	}
	systemLogger.Info("storage_selected", observability.F("backend", cfg.StorageBackend))

	storeOpts := appcart.Options{PersistTimeout: cfg.StorageTimeout}
	cartStore := appcart.NewCartStore(storage, tel, storeOpts)
	favouritesStore := appcart.NewFavouritesStore(storage, tel, storeOpts)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), cfg.StorageTimeout)
	cartStore.Load(loadCtx)
	favouritesStore.Load(loadCtx)
	cancelLoad()

	bus := outbox.NewBus(tel, outbox.Options{})
	bus.Start(context.Background())

	ledger := memory.NewRecoveryLedger()
	recoveryworker.New(ledger, bus, tel).Start()

	breakerSettings := breaker.Settings{
		Failures:    uint32(cfg.BreakerFailures),
		OpenTimeout: cfg.BreakerOpenTimeout,
	}
	intentBreaker := breaker.New[string]("payment-api", breakerSettings, tel.Logger())
	health["payment-api"] = breakerHealth(intentBreaker.State)

	intents := payment.NewIntentClient(cfg.PaymentAPIURL, httptransport.NewClient(cfg.IntentTimeout), intentBreaker)
	sheet := payment.NewSimulatedSheet(payment.SheetOptions{
		SuccessRate: cfg.PaymentSuccessRate,
		Delay:       cfg.PaymentDelay,
	})
	systemLogger.Info("payment_sheet_simulated", observability.F("success_rate", sheet.SuccessRate()))

	var orderClient appcheckout.OrderClient
	if cfg.UsesLocalOrderBook() {
		orderClient = orders.NewBook(memory.NewOrderRepository(), id.NewUUIDGenerator("ord_"), bus, tel.Logger())
		systemLogger.Info("order_backend_selected", observability.F("backend", "local"))
	} else {
		orderBreaker := breaker.New[appcheckout.OrderReceipt]("order-api", breakerSettings, tel.Logger())
		health["order-api"] = breakerHealth(orderBreaker.State)
		orderClient = orders.NewClient(cfg.OrderAPIURL, httptransport.NewClient(cfg.OrderTimeout), orderBreaker)
		systemLogger.Info("order_backend_selected", observability.F("backend", "http"))
	}

	orchestrator := appcheckout.NewOrchestrator(appcheckout.Deps{
		Cart:      cartStore,
		Intents:   intents,
		Payments:  sheet,
		Orders:    orderClient,
		Publisher: bus,
		IDs:       id.NewUUIDGenerator(""),
		Telemetry: tel,
	}, appcheckout.Options{
		MerchantLabel:  cfg.MerchantLabel,
		IntentTimeout:  cfg.IntentTimeout,
		PaymentTimeout: cfg.PaymentTimeout,
		OrderTimeout:   cfg.OrderTimeout,
	})

	handler := httppresentation.NewHandler(httppresentation.Deps{
		Cart:       cartStore,
		Favourites: favouritesStore,
		Checkout:   orchestrator,
		Recovery:   ledger,
		Health:     health,
		Metrics:    promhttp.Handler(),
		Telemetry:  tel,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	for _, s := range []*appcart.Store{cartStore, favouritesStore} {
		if err := s.Flush(shutdownCtx); err != nil {
			systemLogger.Warn("store_flush_error", observability.F("store", s.Name()), observability.F("error", err))
		}
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("outbox_stop_error", observability.F("error", err))
	}
}

// breakerHealth reports an open circuit as unhealthy.
func breakerHealth(state func() string) httppresentation.HealthCheck {
	return func(context.Context) error {
		if s := state(); s == "open" {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}
}
