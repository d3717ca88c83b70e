// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	chromaClient "astrobot-service/internal/client/chroma"
	lagoClient "astrobot-service/internal/client/lago"
	openaiClient "astrobot-service/internal/client/openai"
	waClient "astrobot-service/internal/client/whatsapp"
	workerClient "astrobot-service/internal/client/worker"
	"astrobot-service/internal/config"
	"astrobot-service/internal/db"
	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/conversation"
	"astrobot-service/internal/domain/user"
	opsHandler "astrobot-service/internal/handlers/ops"
	webhookHandler "astrobot-service/internal/handlers/webhook"
	"astrobot-service/internal/jobs"
	"astrobot-service/internal/middleware"
	"astrobot-service/internal/pkg/dedup"
	"astrobot-service/internal/pkg/jwt"
	"astrobot-service/internal/pkg/metrics"
	"astrobot-service/internal/pkg/session"
	"astrobot-service/internal/repository/d1"
	"astrobot-service/internal/repository/postgres"
	convUsecase "astrobot-service/internal/service/conversation"
	paymentUsecase "astrobot-service/internal/service/payment"
	"astrobot-service/internal/service/quota"
	subscriptionUsecase "astrobot-service/internal/service/subscription"
)

type Server struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	mu       sync.Mutex
	http     *http.Server
	whatsapp *webhookHandler.WhatsAppHandler
	jobs     *jobs.Scheduler
	closers  []func()
}

// stores groups the persistence collaborators of one STORE_DRIVER.
type stores struct {
	usage    billing.UsageStore
	users    user.Repository
	readings astro.Repository
	payments billing.PaymentRepository
	activity billing.ActivityLogger
}

func NewServer(cfg *config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		metrics.Middleware(),
	)
	return &Server{cfg: cfg, engine: engine, logger: logger}
}

// Start wires every component and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Usage store -----
	st, err := s.openStores(ctx)
	if err != nil {
		return err
	}

	// ----- Shared state -----
	var (
		sessions conversation.SessionStore
		filter   dedup.Filter
		sweeper  jobs.SessionSweeper
	)
	if s.cfg.Redis.Enabled {
		redisClient, err := db.NewRedis(db.RedisConfig{
			ClusterMode: s.cfg.Redis.ClusterMode,
			Addresses:   s.cfg.Redis.Addresses,
			Password:    s.cfg.Redis.Password,
			DB:          s.cfg.Redis.DB,
			PoolSize:    s.cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		s.onClose(func() { redisClient.Close() })
		s.logger.Info("redis connected", zap.Strings("addresses", s.cfg.Redis.Addresses))

		sessions = session.NewRedisStore(redisClient, s.cfg.SessionTTL)
		filter = dedup.NewRedisFilter(redisClient, s.cfg.DedupTTL)
	} else {
		mem := session.NewMemoryStore(s.cfg.SessionTTL)
		sessions = mem
		sweeper = mem
		filter = dedup.NewRingFilter(s.cfg.DedupCapacity)
	}

	// ----- External clients -----
	catalog := billing.NewCatalog(s.cfg.PlanCodeDaily, s.cfg.PlanCodeWeekly, s.cfg.FreeTierQuestions)
	lago := lagoClient.NewClient(lagoClient.Config{BaseURL: s.cfg.LagoURL, APIKey: s.cfg.LagoAPIKey})
	messenger := waClient.NewClient(waClient.Config{
		GraphURL:             s.cfg.WhatsApp.GraphURL,
		PhoneNumberID:        s.cfg.WhatsApp.PhoneNumberID,
		AccessToken:          s.cfg.WhatsApp.AccessToken,
		PaymentConfiguration: s.cfg.WhatsApp.PaymentConfig,
		SendRate:             s.cfg.WhatsApp.SendRate,
		SendBurst:            s.cfg.WhatsApp.SendBurst,
	}, s.logger)
	worker := workerClient.NewClient(workerClient.Config{BaseURL: s.cfg.WorkerURL, Token: s.cfg.WorkerToken})

	var oracle astro.Oracle = worker
	if s.cfg.AIProvider == config.ProviderOpenAI {
		oracle = openaiClient.NewOracle(openaiClient.Config{APIKey: s.cfg.OpenAIKey, Model: s.cfg.OpenAIModel})
	}

	var passages astro.PassageRetriever
	if s.cfg.ChromaURL != "" {
		passages = chromaClient.NewClient(chromaClient.Config{
			BaseURL:    s.cfg.ChromaURL,
			Collection: s.cfg.ChromaCollection,
			APIKey:     s.cfg.ChromaAPIKey,
		})
	}

	// ----- Services (Usecases) -----
	quotaEngine := quota.NewEngine(st.usage, catalog, st.activity, s.logger)
	lifecycle := subscriptionUsecase.NewLifecycleService(st.usage, lago, catalog, st.activity, s.logger)
	payments := paymentUsecase.NewPaymentService(st.payments, st.activity, lifecycle, messenger, sessions, catalog, s.logger)
	conv := convUsecase.NewService(convUsecase.Dependencies{
		Sessions:      sessions,
		Dedup:         filter,
		Users:         st.users,
		Readings:      st.readings,
		Quota:         quotaEngine,
		Subscriptions: lifecycle,
		Payments:      payments,
		Messenger:     messenger,
		Charts:        worker,
		Oracle:        oracle,
		Advisor:       worker,
		Passages:      passages,
		Compatibility: worker,
		Catalog:       catalog,
		Logger:        s.logger,
	})

	// ----- Handlers -----
	waHandler := webhookHandler.NewWhatsAppHandler(conv, webhookHandler.Config{
		VerifyToken:    s.cfg.WhatsApp.VerifyToken,
		AppSecret:      s.cfg.WhatsApp.AppSecret,
		ProcessTimeout: s.cfg.ProcessTimeout,
	}, s.logger)

	var verifier webhookHandler.BodyVerifier
	if v := s.lagoVerifier(ctx, lago); v != nil {
		verifier = v
	}

	SetupRouter(s.engine, s.logger, &Handlers{
		WhatsAppHandler: waHandler,
		LagoHandler:     webhookHandler.NewLagoHandler(verifier, lifecycle, s.logger),
		OpsHandler:      opsHandler.NewOpsHandler(quotaEngine, lifecycle, s.logger),
		AuthMiddleware:  middleware.NewAuthMiddleware(s.cfg.OpsAPIKey),
	})

	// ----- Jobs -----
	scheduler := jobs.NewScheduler(sweeper, lifecycle, s.logger)
	if err := scheduler.Start(); err != nil {
		return err
	}
	go scheduler.SyncPlans()

	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.whatsapp = waHandler
	s.jobs = scheduler
	s.mu.Unlock()

	s.logger.Info("server listening",
		zap.String("addr", srv.Addr),
		zap.String("store", s.cfg.StoreDriver),
		zap.String("ai_provider", s.cfg.AIProvider),
		zap.Bool("redis", s.cfg.Redis.Enabled),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, drains in-flight message processing and
// releases store connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.whatsapp != nil {
		if err := s.whatsapp.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("message drain: %w", err))
		}
	}
	if s.jobs != nil {
		s.jobs.Stop(ctx)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) onClose(fn func()) {
	s.mu.Lock()
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

func (s *Server) openStores(ctx context.Context) (*stores, error) {
	switch s.cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPostgresPool(ctx, s.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.onClose(pool.Close)
		if err := postgres.NewDB(pool).Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		s.logger.Info("postgres connected")
		return &stores{
			usage:    postgres.NewUsageStore(pool),
			users:    postgres.NewUserRepository(pool),
			readings: postgres.NewAstroRepository(pool),
			payments: postgres.NewPaymentRepository(pool),
			activity: postgres.NewActivityRepository(pool),
		}, nil

	case config.StoreSQLite:
		local, err := d1.OpenLocal(s.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.onClose(func() { local.Close() })
		if err := d1.Migrate(ctx, local); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		s.logger.Info("sqlite opened", zap.String("path", s.cfg.SQLitePath))
		return d1Stores(local), nil

	default:
		client := d1.NewClient(d1.ClientConfig{
			AccountID:  s.cfg.CFAccountID,
			DatabaseID: s.cfg.CFDatabaseID,
			APIToken:   s.cfg.CFAPIToken,
			Timeout:    s.cfg.StoreTimeout,
		})
		if err := d1.Migrate(ctx, client); err != nil {
			return nil, fmt.Errorf("failed to migrate d1: %w", err)
		}
		return d1Stores(client), nil
	}
}

func d1Stores(exec d1.Executor) *stores {
	return &stores{
		usage:    d1.NewUsageStore(exec),
		users:    d1.NewUserRepository(exec),
		readings: d1.NewAstroRepository(exec),
		payments: d1.NewPaymentRepository(exec),
		activity: d1.NewActivityRepository(exec),
	}
}

// lagoVerifier builds the webhook verifier from LAGO_WEBHOOK_PUBLIC_KEY or,
// when unset, from the key Lago publishes. Nil means deliveries are unsigned.
func (s *Server) lagoVerifier(ctx context.Context, lago *lagoClient.Client) *jwt.Verifier {
	raw := s.cfg.LagoWebhookPublicKey
	if raw == "" {
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		key, err := lago.WebhookPublicKey(fetchCtx)
		if err != nil {
			s.logger.Warn("lago webhook key unavailable, signatures will not be checked", zap.Error(err))
			return nil
		}
		raw = string(key)
	}

	pub, err := jwt.ParseRSAPublicKey(raw)
	if err != nil {
		s.logger.Warn("invalid lago webhook key, signatures will not be checked", zap.Error(err))
		return nil
	}
	return jwt.NewVerifier(pub, strings.TrimRight(s.cfg.LagoURL, "/"))
}
