package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/inkwave/inkwave/sync-engine/handlers"
	"github.com/inkwave/inkwave/sync-engine/internal/activity"
	"github.com/inkwave/inkwave/sync-engine/internal/archive"
	"github.com/inkwave/inkwave/sync-engine/internal/config"
	"github.com/inkwave/inkwave/sync-engine/internal/database"
	"github.com/inkwave/inkwave/sync-engine/internal/docstore"
	"github.com/inkwave/inkwave/sync-engine/internal/feed"
	"github.com/inkwave/inkwave/sync-engine/internal/hub"
	"github.com/inkwave/inkwave/sync-engine/internal/identity"
	"github.com/inkwave/inkwave/sync-engine/internal/invite"
	"github.com/inkwave/inkwave/sync-engine/internal/permission"
	"github.com/inkwave/inkwave/sync-engine/internal/presence"
	"github.com/inkwave/inkwave/sync-engine/pkg/logger"
	"github.com/inkwave/inkwave/sync-engine/pkg/metrics"
	"github.com/inkwave/inkwave/sync-engine/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level is controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v oidc=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Auth.OIDCIssuer != "")

	ctx := context.Background()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS for dev/test; production fronts this with a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	// Redis backs the change feed, presence, and optionally the rate limiter.
	// Without it every component falls back to its in-process implementation,
	// which is fine for a single instance and for tests.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v; falling back to in-process feed and presence", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// MongoDB backs documents, grants, invites, and the activity trail. With
	// retry/backoff to tolerate startup races, and in-memory fallbacks so the
	// engine still runs without it.
	var mongoClient *mongo.Client
	var mongoDB *mongo.Database
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, mongoDB, errConn = database.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
			mongoClient = nil
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
		}
	}

	var store docstore.Store
	var inviteRepo invite.Repo
	var recorder activity.Recorder
	if mongoClient != nil {
		store = docstore.NewMongoStore(mongoDB)
		inviteRepo = invite.NewMongoRepo(mongoDB)
		recorder = activity.NewMongoLog(mongoDB)
	} else {
		store = docstore.NewMemoryStore()
		inviteRepo = invite.NewMemoryRepo()
		recorder = activity.NewMemoryLog()
		logger.Warnf("MongoDB unavailable; documents, invites, and activity are in-memory only")
	}

	var changeFeed feed.Feed
	var tracker presence.Tracker
	if redisClient != nil {
		changeFeed = feed.NewRedisFeed(redisClient, "feed:", cfg.Feed.BackoffInitial, cfg.Feed.BackoffMax)
		tracker = presence.NewRedisTracker(redisClient, "presence:", cfg.Presence.LivenessTimeout)
	} else {
		changeFeed = feed.NewMemoryFeed()
		tracker = presence.NewMemoryTracker(cfg.Presence.LivenessTimeout)
	}

	// Token verification: OIDC when an issuer is configured, HMAC when a
	// shared secret is, and the signature-skipping verifier only when
	// explicitly enabled for integration tests.
	var verifier middleware.Verifier
	switch {
	case cfg.Auth.OIDCIssuer != "" && cfg.Auth.OIDCClientID != "":
		ver, err := identity.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	case cfg.Auth.JWTSecret != "":
		verifier = identity.NewHMACVerifier(cfg.Auth.JWTSecret)
	}
	if verifier == nil && cfg.Auth.InsecureTokens {
		logger.Warnf("enabling insecure token verifier (integration mode)")
		verifier = identity.NewInsecureVerifier()
	}

	// Draft archive is optional; conflict resolution keeps working without
	// it, discarded drafts are just not preserved.
	var draftArchive *archive.DraftArchive
	if mc := archive.LoadConfig(); mc.Enabled() {
		draftArchive, err = archive.NewDraftArchive(mc)
		if err != nil {
			logger.Warnf("failed to initialize draft archive: %v", err)
		} else {
			logger.Infof("draft archive enabled on bucket %q", mc.Bucket)
		}
	}

	resolver := permission.NewResolver(store)
	manager := permission.NewManager(store, resolver)
	inviteSvc := invite.NewService(inviteRepo, store, resolver, recorder)
	sessionHub := hub.New(store, changeFeed, tracker, resolver, hub.Options{
		Recorder:          recorder,
		Archive:           draftArchive,
		ConnectTimeout:    cfg.Hub.ConnectTimeout,
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"auth":  verifier != nil,
			"redis": redisClient != nil || cfg.Redis.Host == "",
			"mongo": mongoClient != nil || cfg.MongoDB.URI == "",
		}
		for _, ok := range deps {
			if !ok {
				ready = false
			}
		}
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	if verifier != nil {
		auth := middleware.AuthMiddleware(verifier)
		handlers.RegisterDocumentRoutes(r, handlers.DocumentDeps{
			Store:    store,
			Resolver: resolver,
			Manager:  manager,
			Presence: tracker,
			Activity: recorder,
		}, auth)
		handlers.RegisterInviteRoutes(r, inviteSvc, auth)
		handlers.RegisterSyncRoutes(r, sessionHub, auth)
	} else {
		logger.Warnf("no token verifier configured; API routes not registered")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting sync engine on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
