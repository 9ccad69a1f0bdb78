package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "neuralsalvage/docs"
	"neuralsalvage/pkg/analysis"
	"neuralsalvage/pkg/arweave"
	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/beta"
	"neuralsalvage/pkg/cache"
	"neuralsalvage/pkg/collections"
	"neuralsalvage/pkg/config"
	"neuralsalvage/pkg/db"
	"neuralsalvage/pkg/jobs"
	"neuralsalvage/pkg/locks"
	"neuralsalvage/pkg/logging"
	"neuralsalvage/pkg/marketplace"
	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/metrics"
	"neuralsalvage/pkg/moderation"
	"neuralsalvage/pkg/nft"
	"neuralsalvage/pkg/notifications"
	"neuralsalvage/pkg/otp"
	"neuralsalvage/pkg/payments"
	"neuralsalvage/pkg/polygon"
	"neuralsalvage/pkg/ratelimit"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/search"
	"neuralsalvage/pkg/sendemail"
	"neuralsalvage/pkg/storage"
	"neuralsalvage/pkg/users"
)

const rateLimitIdle = 10 * time.Minute

// app holds everything serve needs to run and shut down.
type app struct {
	router    *gin.Engine
	scheduler *jobs.Scheduler
	pool      *pgxpool.Pool
	redis     *redis.Client
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.pool.Close()
}

// providers are the optional AI backends picked by AI_PROVIDER.
type providers struct {
	describer   analysis.Describer
	transcriber analysis.Transcriber
	artist      analysis.CoverArtist
	embedder    analysis.Embedder
	text        moderation.TextModerator
}

func newProviders(ctx context.Context, cfg *config.Config) (providers, error) {
	var p providers
	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(cfg.OpenAIAPIKey)
		p.text = moderation.NewOpenAIModerator(client)
		if cfg.AIProvider == "openai" {
			oa := analysis.NewOpenAIProvider(client, cfg.OpenAIModel, cfg.EmbeddingDim)
			p.describer, p.transcriber, p.artist, p.embedder = oa, oa, oa, oa
		}
	}
	if cfg.AIProvider == "gemini" && cfg.GeminiAPIKey != "" {
		gp, err := analysis.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingDim)
		if err != nil {
			return providers{}, fmt.Errorf("gemini: %w", err)
		}
		p.describer, p.transcriber, p.embedder = gp, gp, gp
	}
	return p, nil
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
	}
	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := db.ConnectRedis(ctx, cfg.RedisURL, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a := &app{pool: pool, redis: rdb}
	if err := a.wire(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	store, err := storage.NewDiskStore(cfg.StorageRoot)
	if err != nil {
		return err
	}
	betaChecker := beta.NewChecker(cfg.BetaAllowlist, cfg.BetaOpenFeatures)
	emailService := sendemail.NewEmailService(cfg.SendGridAPIKey, cfg.SendGridSenderEmail, cfg.SendGridSenderName, log)
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, log)

	usersRepo := users.NewPostgresUserRepository(a.pool)
	usersService := users.NewUserService(usersRepo)

	otpService := otp.NewOTPService(otp.NewPostgresOTPRepository(a.pool), usersRepo, emailService, log)

	hub := notifications.NewHub()
	notificationService := notifications.NewNotificationService(
		notifications.NewPostgresNotificationRepository(a.pool), hub, usersService, emailService, cfg.PublicURL, log)

	ai, err := newProviders(ctx, cfg)
	if err != nil {
		return err
	}

	var qdrant *search.Qdrant
	if cfg.QdrantURL != "" {
		qdrant = search.NewQdrant(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingDim, log)
		if err := qdrant.EnsureCollection(ctx); err != nil {
			log.Warn("qdrant collection unavailable, semantic search degraded", zap.Error(err))
		}
	}

	analysisDeps := analysis.Deps{
		Describer:   ai.describer,
		Transcriber: ai.transcriber,
		Artist:      ai.artist,
		Embedder:    ai.embedder,
		Log:         log,
	}
	if cfg.DaytonaAPIKey != "" {
		analysisDeps.Sandbox = analysis.NewDaytonaSandbox(cfg.DaytonaAPIURL, cfg.DaytonaAPIKey, log)
	}
	if qdrant != nil {
		analysisDeps.Index = qdrant
	}

	mediaRepo := media.NewPostgresMediaRepository(a.pool)
	mediaDeps := media.Deps{
		Repo:      mediaRepo,
		Store:     store,
		Moderator: moderation.NewService(cfg.MaxUploadBytes, ai.text, log),
		Users:     usersService,
		Beta:      betaChecker,
		Log:       log,
	}
	if ai.describer != nil {
		mediaDeps.Analyzer = analysis.NewService(analysisDeps)
	}
	if qdrant != nil {
		mediaDeps.Index = qdrant
	}
	mediaService := media.NewMediaService(mediaDeps)

	collectionService := collections.NewCollectionService(collections.NewPostgresCollectionRepository(a.pool), mediaRepo)

	var (
		embedder search.Embedder
		vectors  search.VectorSearcher
	)
	if ai.embedder != nil && qdrant != nil {
		embedder, vectors = ai.embedder, qdrant
	}
	searchService := search.NewSearchService(embedder, vectors, mediaRepo, log)

	marketDeps := marketplace.Deps{
		Repo:      marketplace.NewPostgresMarketplaceRepository(a.pool),
		Assets:    mediaRepo,
		Users:     usersService,
		Gateway:   gateway,
		Notifier:  notificationService,
		FeeBps:    cfg.PlatformFeeBps,
		PublicURL: cfg.PublicURL,
		Log:       log,
	}
	if qdrant != nil {
		marketDeps.Index = qdrant
	}
	marketService := marketplace.NewMarketplaceService(marketDeps)

	uploader, err := arweave.NewUploader(cfg.ArweaveWalletJWK, cfg.ArweaveWalletPath, cfg.ArweaveGateway, log)
	if err != nil {
		return err
	}
	minter, err := polygon.Dial(ctx, polygon.Config{
		RPCURL:         cfg.PolygonRPCURL,
		ChainID:        cfg.PolygonChainID,
		PrivateKey:     cfg.PolygonPrivateKey,
		Contract:       cfg.PolygonContract,
		OpenSeaBaseURL: cfg.OpenSeaBaseURL,
	}, log)
	if err != nil {
		return err
	}
	nftService := nft.NewNFTService(nft.Deps{
		Repo:          nft.NewPostgresNFTRepository(a.pool),
		Assets:        mediaRepo,
		Store:         store,
		Users:         usersService,
		Beta:          betaChecker,
		Locker:        locks.New(a.redis),
		Uploader:      uploader,
		Gateway:       arweave.NewGateway(cfg.ArweaveGateway, cache.New(a.redis, "neuralsalvage:"), log),
		Minter:        minter,
		Payments:      gateway,
		Notifier:      notificationService,
		PublicURL:     cfg.PublicURL,
		MessageMaxAge: cfg.MintMessageMaxAge,
		Log:           log,
	})

	events := payments.NewEventRouter(marketService, nftService, usersService, log)
	subscriptions := payments.NewSubscriptionService(gateway, usersService, cfg.StripeProPriceID, cfg.PublicURL)

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	a.scheduler, err = jobs.Default(usersService, nftService, log)
	if err != nil {
		return err
	}
	err = a.scheduler.Add(jobs.Job{
		Name: "sweep-rate-limits",
		Spec: "@every 5m",
		Run: func(context.Context) error {
			limiter.Sweep(rateLimitIdle)
			return nil
		},
	})
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(logging.GinMiddleware(log), gin.Recovery(), metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.CORSAllowCreds,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		if err := a.pool.Ping(c.Request.Context()); err != nil {
			response.SendAPIResponse(c, http.StatusServiceUnavailable, false, "database unreachable", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusOK, true, "ok", gin.H{
			"arweave_wallet": uploader.Address(),
			"polygon_bridge": minter.Enabled(),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	requireAuth := auth.RequireAuth(tokens)
	requireAdmin := auth.RequireAdmin(cfg.AdminEmails)

	api := router.Group("/", limiter.Middleware())
	users.NewUserHandler(usersService, tokens).RegisterRoutes(api, requireAuth, requireAdmin)
	otp.NewOTPHandler(otpService).RegisterRoutes(api)
	media.NewMediaHandler(mediaService, cfg.MaxUploadBytes).RegisterRoutes(api, requireAuth)
	collections.NewCollectionHandler(collectionService).RegisterRoutes(api, requireAuth)
	search.NewSearchHandler(searchService).RegisterRoutes(api, requireAuth)
	marketplace.NewMarketplaceHandler(marketService).RegisterRoutes(api, requireAuth)
	nft.NewNFTHandler(nftService).RegisterRoutes(api, requireAuth)
	notifications.NewNotificationHandler(notificationService, hub, cfg.Origins(), log).RegisterRoutes(router, requireAuth)
	payments.NewPaymentsHandler(gateway, events, subscriptions, log).RegisterRoutes(router, requireAuth)

	a.router = router
	return nil
}
