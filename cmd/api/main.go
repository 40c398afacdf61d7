package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	_ "settlement/api/swagger" // swagger docs
	"settlement/internal/config"
	"settlement/internal/database"
	"settlement/internal/handler"
	"settlement/internal/live"
	"settlement/internal/logger"
	"settlement/internal/middleware"
	"settlement/internal/repository"
	"settlement/internal/repository/memory"
	"settlement/internal/service"
	"settlement/internal/worker"
)

// storage is the backing store picked by DB_DRIVER.
type storage struct {
	stores   service.Stores
	products repository.ProductRepository
	profiles repository.VatProfileRepository
	ping     handler.Pinger
}

func openStorage(cfg config.DatabaseConfig, log logrus.FieldLogger) (*storage, error) {
	if cfg.Driver == "memory" {
		log.Warn("Using in-memory storage, data is lost on restart")
		repos := memory.New()
		return &storage{
			stores: service.Stores{
				Tx:            repos.Store,
				Products:      repos.Products,
				Tabs:          repos.Tabs,
				Orders:        repos.Orders,
				Payments:      repos.Payments,
				Counters:      repos.Counters,
				Carts:         repos.Carts,
				Subscriptions: repos.Subscriptions,
				Sessions:      repos.Sessions,
				VatProfiles:   repos.VatProfiles,
				Rates:         repos.Rates,
				Audit:         repos.Audit,
			},
			products: repos.Products,
			profiles: repos.VatProfiles,
		}, nil
	}

	db, err := database.NewConnection(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to PostgreSQL successfully.")

	products := repository.NewProductRepository(db)
	profiles := repository.NewVatProfileRepository(db)
	return &storage{
		stores: service.Stores{
			Tx:            repository.NewTransactionManager(db),
			Products:      products,
			Tabs:          repository.NewOrderTabRepository(db),
			Orders:        repository.NewOrderRepository(db),
			Payments:      repository.NewPaymentRepository(db),
			Counters:      repository.NewCounterRepository(db),
			Carts:         repository.NewCartRepository(db),
			Subscriptions: repository.NewSubscriptionRepository(db),
			Sessions:      repository.NewPosSessionRepository(db),
			VatProfiles:   profiles,
			Rates:         repository.NewExchangeRateRepository(db),
			Audit:         repository.NewAuditRepository(db),
		},
		products: products,
		profiles: profiles,
		ping:     database.Ping(db),
	}, nil
}

// @title           Settlement API
// @version         1.0
// @description     Order tabs, payments and cash-drawer sessions for a point of sale and web shop.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Logger setup failed: %v", err)
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
		if cfg.JWT.Secret == "default_super_secret_key" {
			log.Fatal("JWT_SECRET must be set in production")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Database connection failed")
	}
	if cfg.Database.Seed {
		if err := database.Seed(ctx, store.products, store.profiles, log); err != nil {
			log.WithError(err).Fatal("Seeding failed")
		}
	}

	broker := live.NewBroker(cfg.Live.Debounce, log)
	processor := service.LocalProcessor{Name: cfg.Processor.Name}
	notifier := service.LogNotifier{Log: log}
	settlement := cfg.Settlement

	rates := service.NewRateService(store.stores.Rates, store.stores.VatProfiles, log)
	payments := service.NewPaymentService(store.stores, rates, processor, notifier, broker, settlement, log)
	services := handler.Services{
		Tabs:     service.NewOrderTabService(store.stores, rates, broker, settlement, log),
		Orders:   service.NewOrderService(store.stores, rates, processor, notifier, broker, settlement, log),
		Payments: payments,
		Sessions: service.NewPosSessionService(store.stores, rates, settlement, log),
		Rates:    rates,
		Carts:    service.NewCartService(store.stores, broker, log),
		Revenue:  service.NewRevenueService(store.stores, rates, settlement),
		Audit:    service.NewAuditService(store.stores.Audit),
		Catalog:  service.NewCatalogService(store.products, store.profiles, store.stores.Audit, store.stores.Tx),
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	router := handler.NewRouter(handler.RouterConfig{
		Services:       services,
		Broker:         broker,
		Limiter:        limiter,
		JWTSecret:      []byte(cfg.JWT.Secret),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		KeepAlive:      cfg.Live.KeepAlive,
		WebhookToken:   cfg.Processor.WebhookToken,
		Ping:           store.ping,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Server listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		worker.NewPaymentExpiryWorker(payments, cfg.Worker.PaymentSweepInterval, log).Start(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, 5*time.Minute)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
	log.Info("Server stopped")
}
