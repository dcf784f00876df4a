package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/config"
	"schooladmin.org/internal/httpapi"
	"schooladmin.org/internal/media"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/school"
	"schooladmin.org/internal/session"
	"schooladmin.org/internal/store/memstore"
	"schooladmin.org/internal/store/pg"
	"schooladmin.org/internal/store/redisstore"
	"schooladmin.org/internal/throttle"
	"schooladmin.org/internal/token"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := obs.InitLogger(cfg.Production(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.Database.URL, pg.Pool{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: store.DB()}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("open gorm", zap.Error(err))
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	sessionStore, err := sessionBackend(cfg, store, rdb)
	if err != nil {
		logger.Fatal("session store", zap.Error(err))
	}
	limiter, err := loginLimiter(rdb)
	if err != nil {
		logger.Fatal("login limiter", zap.Error(err))
	}
	// CSRF tokens outlive one idle window and are reissued after one.
	csrf, err := auth.NewCSRF([]byte(cfg.AppKey), 2*cfg.Session.Lifetime)
	if err != nil {
		logger.Fatal("csrf", zap.Error(err))
	}
	urls, err := media.New(cfg.StorageURL)
	if err != nil {
		logger.Fatal("storage url", zap.Error(err))
	}

	activityLog := activity.NewGormStore(gdb)
	recorder := activity.NewRecorder(activityLog)
	sessions := session.NewManager(sessionStore, store, csrf, session.WithLifetime(cfg.Session.Lifetime))

	api := httpapi.New(httpapi.Deps{
		Version:  version,
		Ready:    httpapi.ReadyProbe{DB: store.DB(), Redis: rdb},
		Accounts: account.NewService(store, recorder),
		Tenants:  store,
		Sessions: sessions,
		Tokens:   token.NewManager(store, store, recorder, token.WithTTL(cfg.Token.TTL, cfg.Token.RememberTTL)),
		Students: school.NewService(gdb, recorder),
		Activity: activityLog,
		Media:    urls,
		Cookie: httpapi.CookieConfig{
			Name:   cfg.Session.Cookie,
			Domain: cfg.Session.Domain,
			Secure: cfg.Session.Secure,
		},
		Throttle: httpapi.LoginThrottle{
			Limiter:     limiter,
			MaxAttempts: cfg.Login.MaxAttempts,
			Decay:       cfg.Login.Decay,
		},
		RateBurst:   cfg.Login.RateBurst,
		RatePerSec:  cfg.Login.RatePerSec,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		MaxBody:     cfg.HTTP.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Session.Driver == config.SessionDriverDatabase {
		go purgeSessions(ctx, store, cfg.Session.Lifetime)
	}

	logger.Info("starting schooladmin-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("session_driver", cfg.Session.Driver))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = store.Close()
	logger.Info("stopped")
}

func sessionBackend(cfg config.Config, store *pg.Store, rdb redis.UniversalClient) (session.Store, error) {
	switch cfg.Session.Driver {
	case config.SessionDriverRedis:
		return redisstore.NewSessionStore(rdb, cfg.Session.Lifetime)
	case config.SessionDriverMemory:
		return memstore.New(), nil
	default:
		return store, nil
	}
}

// loginLimiter shares attempt counters across instances when redis is configured.
func loginLimiter(rdb redis.UniversalClient) (throttle.Limiter, error) {
	if rdb == nil {
		return throttle.NewMemory(throttle.MemoryConfig{}), nil
	}
	return throttle.NewRedis(rdb, time.Now)
}

// purgeSessions deletes idle database sessions the way a session GC would.
func purgeSessions(ctx context.Context, store *pg.Store, lifetime time.Duration) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeSessions(ctx, time.Now().UTC().Add(-lifetime))
			if err != nil {
				obs.Logger().Warn("purge sessions failed", zap.Error(err))
				continue
			}
			if n > 0 {
				obs.Logger().Info("purged idle sessions", zap.Int64("count", n))
			}
		}
	}
}
