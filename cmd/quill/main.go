package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/quillforum/quill/pkg/api"
	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/config"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/mail"
	"github.com/quillforum/quill/pkg/oauth"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/presence"
	"github.com/quillforum/quill/pkg/storage/postgres"
)

const (
	userCacheSize = 1024
	userCacheTTL  = 5 * time.Minute

	maxRequestBody = 1 << 20
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("loading configuration failed")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	db, err := postgres.Connect(ctx, postgres.ConnectionConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.WithError(err).Error("connecting to database failed")
		os.Exit(1)
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		logger.WithError(err).Error("running migrations failed")
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	store := postgres.NewStore(db)
	users, err := postgres.NewCachedUserStore(store, userCacheSize, userCacheTTL, metrics)
	if err != nil {
		logger.WithError(err).Error("building user cache failed")
		os.Exit(1)
	}

	registry := presence.NewRegistry()
	codec := auth.NewCodec([]byte(cfg.Session.Secret), cfg.Session.TokenTTLMinutes)
	hasher := auth.NewHasher(auth.DefaultHashParams())
	mailer := mail.NewLogMailer(nil, cfg.Mail.From)

	broker := buildBroker(ctx, cfg, users, codec, registry, metrics, logger)

	server := api.NewServer(api.Options{
		Users:                users,
		Forum:                store,
		Codec:                codec,
		Hasher:               hasher,
		Registry:             registry,
		Mailer:               mailer,
		Metrics:              metrics,
		Logger:               logger,
		Broker:               broker,
		PublicURL:            cfg.Server.PublicURL,
		VerificationRequired: cfg.Mail.VerificationEnabled,
		SecureCookies:        cfg.Session.SecureCookies,
	})

	router := server.Router()
	health := observability.NewHealthChecker(db)
	router.HandleFunc("/health/live", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", health.Readiness).Methods(http.MethodGet)
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(promRegistry)).Methods(http.MethodGet)
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		observability.HTTPMetricsMiddleware(metrics),
		httputil.MaxBytesMiddleware(maxRequestBody),
	)(router)

	janitor := startJanitor(users, registry, metrics, logger)
	stopPoolStats := postgres.StartPoolStatsReporter(db, metrics, 15*time.Second)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		<-janitor.Stop().Done()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		stopPoolStats()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	go func() {
		logger.Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// buildBroker wires the configured federated login providers. The
// broker is always mounted; an unconfigured provider's endpoints answer
// 501 rather than 404.
func buildBroker(ctx context.Context, cfg *config.Config, users *postgres.CachedUserStore, codec *auth.Codec, registry *presence.Registry, metrics *observability.Metrics, logger *observability.Logger) *oauth.Broker {
	var providers []*oauth.Provider

	if cfg.OAuth.Google.Enabled() {
		var verifier oauth.IDTokenVerifier
		if v, err := oauth.NewGoogleVerifier(ctx, cfg.OAuth.Google.ClientID); err != nil {
			logger.WithError(err).Warn("Google id_token verification disabled")
		} else {
			verifier = v
		}
		providers = append(providers, oauth.NewGoogle(credentials(cfg.OAuth.Google), verifier))
	}
	if cfg.OAuth.Facebook.Enabled() {
		providers = append(providers, oauth.NewFacebook(credentials(cfg.OAuth.Facebook)))
	}
	if cfg.OAuth.Discord.Enabled() {
		providers = append(providers, oauth.NewDiscord(credentials(cfg.OAuth.Discord)))
	}

	if len(providers) == 0 {
		logger.Info("No OAuth providers configured, federated login disabled")
	}

	return oauth.NewBroker(providers, oauth.NewReconciler(users), codec, registry, metrics, logger, cfg.Session.SecureCookies)
}

func credentials(p config.ProviderCredentials) oauth.Credentials {
	return oauth.Credentials{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
	}
}

// startJanitor schedules the background cleanup jobs: expired
// verification and reset tokens, stale presence entries, and the active
// session gauge.
func startJanitor(users *postgres.CachedUserStore, registry *presence.Registry, metrics *observability.Metrics, logger *observability.Logger) *cron.Cron {
	c := cron.New()

	c.AddFunc("@every 1h", func() {
		defer observability.RecoverPanic(logger, "token janitor")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		removed, err := users.ClearExpiredTokens(ctx)
		if err != nil {
			logger.WithError(err).Error("clearing expired tokens failed")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("Cleared expired tokens")
		}
	})

	c.AddFunc("@every 10m", func() {
		defer observability.RecoverPanic(logger, "presence janitor")
		if removed := registry.Prune(24 * time.Hour); removed > 0 {
			logger.WithField("removed", removed).Info("Pruned stale sessions")
		}
	})

	c.AddFunc("@every 1m", func() {
		defer observability.RecoverPanic(logger, "session gauge")
		metrics.ActiveSessions.Set(float64(registry.ActiveCount()))
	})

	c.Start()
	return c
}
