package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/montebay/storefront/internal/domain/cart"
	"github.com/montebay/storefront/internal/domain/order"
	"github.com/montebay/storefront/internal/domain/promotion"
	"github.com/montebay/storefront/internal/handler"
	"github.com/montebay/storefront/internal/identity"
	"github.com/montebay/storefront/internal/notify"
	"github.com/montebay/storefront/internal/payment"
	"github.com/montebay/storefront/internal/repository"
	"github.com/montebay/storefront/internal/shipping"
	"github.com/montebay/storefront/pkg/health"
	"github.com/montebay/storefront/pkg/httpmiddleware"
)

// pricingConfig parses the string-typed pricing knobs into checkout amounts.
// LoadConfig validates them too, but Run also accepts hand-built configs, so
// a bad value must fail here rather than silently price everything at zero.
func pricingConfig(cfg PricingConfig) (order.Config, error) {
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "parse tax rate %q", cfg.TaxRate)
	}
	defaultShipping, err := decimal.NewFromString(cfg.DefaultShipping)
	if err != nil {
		return order.Config{}, errors.Wrapf(err, "parse default shipping %q", cfg.DefaultShipping)
	}
	return order.Config{
		Currency:        cfg.Currency,
		TaxRate:         taxRate,
		DefaultShipping: defaultShipping,
		OriginZip:       cfg.OriginZip,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	promoRepo := repository.NewPromotionRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// External collaborators. Each one degrades to a local implementation
	// when its endpoint is not configured.
	var processor payment.Processor
	if cfg.Payment.URL != "" {
		processor = payment.NewClient(cfg.Payment.URL, cfg.Payment.APIKey)
	} else {
		lg.Warn("No payment processor configured, charges are log-only")
		processor = payment.NewLogProcessor(lg.Named("payment"))
	}

	var rates shipping.RateClient
	if cfg.Shipping.RateURL != "" {
		rates = shipping.NewClient(cfg.Shipping.RateURL)
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return errors.Wrap(err, "parse redis URL")
			}
			rdb := redis.NewClient(opts)
			defer func() { _ = rdb.Close() }()
			rates = shipping.NewCachedClient(rates, rdb, lg.Named("shipcache"))
		}
	}

	var notifier notify.Notifier
	if cfg.Notify.URL != "" {
		notifier = notify.NewHTTPNotifier(cfg.Notify.URL, cfg.Notify.APIKey)
	} else {
		notifier = notify.NewLogNotifier(lg.Named("notify"))
	}

	var idp identity.Provider
	if cfg.Identity.URL != "" {
		idp = identity.NewHTTPProvider(cfg.Identity.URL)
	} else {
		lg.Warn("No identity provider configured, bearer tokens are treated as customer IDs")
		idp = identity.TokenProvider{}
	}

	// Domain services.
	promoValidator := promotion.NewRepoValidator(promoRepo)
	cartService := cart.NewService(cartRepo, productRepo, ledgerRepo, ledgerRepo, promoValidator, lg.Named("cart"))
	reconciler := order.NewReconciler(orderRepo, ledgerRepo, promoRepo, lg.Named("reconcile"))

	pricing, err := pricingConfig(cfg.Pricing)
	if err != nil {
		return err
	}
	checkoutService, err := order.NewCheckoutService(
		cartService,
		orderRepo,
		processor,
		rates,
		notifier,
		reconciler,
		pricing,
		m.TracerProvider().Tracer("storefront"),
		m.MeterProvider().Meter("storefront"),
		lg.Named("checkout"),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	// HTTP handlers.
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(productRepo, cartService, checkoutService, idp, securityHandler)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Router()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
