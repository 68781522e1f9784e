package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/docuvault/docuvault/handlers"
	"github.com/docuvault/docuvault/internal/backup"
	"github.com/docuvault/docuvault/internal/config"
	"github.com/docuvault/docuvault/internal/database"
	"github.com/docuvault/docuvault/internal/document/service"
	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/internal/eventlog"
	"github.com/docuvault/docuvault/internal/index"
	"github.com/docuvault/docuvault/internal/oidc"
	"github.com/docuvault/docuvault/internal/storage"
	"github.com/docuvault/docuvault/internal/tokens"
	"github.com/docuvault/docuvault/pkg/logger"
	"github.com/docuvault/docuvault/pkg/metrics"
	"github.com/docuvault/docuvault/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v oidc=%v index_dir=%q",
		cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.OIDC.IssuerURL != "", cfg.Index.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- persistence -------------------------------------------------------

	var st store.Store
	if cfg.MongoDB.URI != "" {
		// retry with backoff to tolerate container startup races
		const maxAttempts = 5
		backoff := time.Second
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				defer func() { _ = client.Disconnect(context.Background()) }()
				st = store.NewMongoStore(client, cfg.MongoDB.Database)
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
	}
	if st == nil {
		logger.Warn("no MongoDB connection, using the in-memory store (data is volatile)")
		st = store.NewMemoryStore()
	}

	var redisClient *redis.Client
	var cache *service.Cache
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			cache = service.NewCache(redisClient, cfg.Redis.CacheTTL)
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// ---- index and services ------------------------------------------------

	schema := index.NewSchema(index.SchemaConfig{
		Fields:          cfg.Index.Fields,
		FieldsAnalyze:   cfg.Index.FieldsAnalyze,
		FieldsNoAnalyze: cfg.Index.FieldsNoAnalyze,
		FieldsStore:     cfg.Index.FieldsStore,
	})
	var idx *index.Index
	if cfg.Index.Dir != "" {
		idx, err = index.Open(cfg.Index.Dir, schema)
	} else {
		idx, err = index.OpenInMemory(schema)
	}
	if err != nil {
		logger.Fatalf("failed to open index: %v", err)
	}
	defer idx.Close()

	log := eventlog.NewService(st)
	syncer := index.NewSyncer(st, log, idx, cfg.Index.SyncInterval, cfg.Index.FlushTimeout)
	docs := service.New(st, log, idx, syncer, cache)

	var archive backup.Archive
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		mio, err := storage.NewMinIOStorage(mcfg)
		if err != nil {
			logger.Warnf("failed to initialize archive storage: %v", err)
		} else {
			archive = mio
		}
	}
	bak := backup.New(docs, archive)

	// a volatile index starts empty, rebuild it from the committed store
	if cfg.Index.Dir == "" {
		if total, err := syncer.Rebuild(ctx); err != nil {
			logger.Warnf("startup index rebuild failed: %v", err)
		} else {
			logger.Infof("startup index rebuild: %d documents", total)
		}
	}

	go syncer.Run(ctx)
	go releaseDeadLocksLoop(ctx, log)

	// ---- auth --------------------------------------------------------------

	var verifier middleware.Verifier
	if cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID != "" {
		ver, err := oidc.NewVerifier(ctx, strings.TrimRight(cfg.OIDC.IssuerURL, "/"), cfg.OIDC.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil && cfg.JWT.Secret != "" {
		verifier = tokens.NewVerifier(cfg.JWT.Secret)
		logger.Info("using locally signed JWT verification")
	}
	if verifier == nil {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
			logger.Warn("enabling insecure token verifier (integration mode)")
			verifier = oidc.NewInsecureVerifier()
		} else {
			logger.Fatalf("no verifier configured: set OIDC_ISSUER_URL or JWT_SECRET")
		}
	}

	// ---- http --------------------------------------------------------------

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"store": st != nil,
			"index": idx != nil,
			"redis": cfg.Redis.Host == "" || redisClient != nil,
		}
		for _, ok := range deps {
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", middleware.AuthMiddleware(verifier))
	if cfg.Server.RateLimitRPS > 0 {
		rps := float64(cfg.Server.RateLimitRPS)
		burst := cfg.Server.RateLimitRPS * 2
		if redisClient != nil {
			api.Use(middleware.RedisRateLimitMiddleware(redisClient, rps, burst, time.Second))
		} else {
			api.Use(middleware.RateLimitMiddleware(rps, burst))
		}
	}
	handlers.NewDocumentAPI(docs).RegisterRoutes(api)
	handlers.NewAdminAPI(syncer, log, bak).RegisterRoutes(api)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting document store on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown failed: %v", err)
	}
}

// releaseDeadLocksLoop periodically unlocks event-log entries whose consumer
// died mid-flight.
func releaseDeadLocksLoop(ctx context.Context, log *eventlog.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := log.ReleaseDeadLocks(ctx, time.Minute, eventlog.TopicIndexAdd, eventlog.TopicIndexRemove); err != nil {
				logger.Warnf("dead lock release failed: %v", err)
			}
		}
	}
}

// corsMiddleware is a permissive CORS policy for dev/test deployments.
// Production should sit behind a stricter gateway policy.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
