package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaiin-app/authcore/internal/api"
	"github.com/kaiin-app/authcore/internal/cache"
	"github.com/kaiin-app/authcore/internal/core/service"
	"github.com/kaiin-app/authcore/internal/infrastructure/config"
	mongodb "github.com/kaiin-app/authcore/internal/infrastructure/db/mongo"
	redisdb "github.com/kaiin-app/authcore/internal/infrastructure/db/redis"
	"github.com/kaiin-app/authcore/internal/infrastructure/identity"
	"github.com/kaiin-app/authcore/internal/infrastructure/profilestore"
	"github.com/kaiin-app/authcore/internal/infrastructure/queue"
	"github.com/kaiin-app/authcore/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	// Mongo and Redis back the best-effort hooks and the readiness probe.
	// The gateway still serves logins without them, so failures degrade
	// instead of aborting startup.
	var deps api.RouterDeps
	deps.InternalKeyHash = cfg.InternalKeyHash
	deps.Log = log

	mongoClient, mongoDB, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Warn().Err(err).Msg("mongo unavailable, audit trail disabled")
	} else {
		deps.MongoDB = mongoDB
		deps.Audit = mongodb.NewAuditRepository(mongoDB)
		defer func() {
			_ = mongoClient.Disconnect(context.Background())
		}()
	}

	redisClient, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, last-seen tracking disabled")
	} else {
		deps.Redis = redisClient
		defer redisClient.Close()
	}

	provider := identity.NewClient(identity.Config{
		URL:       cfg.Provider.URL,
		APIKey:    cfg.Provider.APIKey,
		JWTSecret: cfg.Provider.JWTSecret,
		Timeout:   cfg.Provider.Timeout,
	}, log)

	store := profilestore.NewClient(profilestore.Config{
		BaseURL:        cfg.Store.URL,
		Timeout:        cfg.Store.Timeout,
		RetryAttempts:  cfg.Store.RetryAttempts,
		InitialBackoff: cfg.Store.InitialBackoff,
	}, log)

	dispatcher := queue.NewDispatcher(0, log)
	if deps.Audit != nil {
		dispatcher.Register("audit", deps.Audit)
	}
	if redisClient != nil {
		dispatcher.Register("last_seen", redisdb.NewLastSeenRecorder(redisClient))
	}
	dispatcher.Start(ctx)

	provisioner := service.NewProvisionService(store, log)
	sessions := service.NewSessionService(provider, provisioner, cache.NewCurrentUser(), dispatcher, log)
	defer sessions.Close()
	deps.Sessions = sessions

	e := api.NewRouter(deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("auth gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}
