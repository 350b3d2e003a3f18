package bootstrap

import (
	"context"
	"log"
	"os"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/config"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/controller"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/handler"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/mailer"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/memory"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/unitofwork"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/service"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/websocket"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/apiclient"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/engine"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/hazardctx"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/llm/factory"
	pktNats "github.com/Ibar-Aki/solar-aldrin-sub001/pkg/nats"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ratelimit"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController
	KyController   controller.IKyController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// Session stream
	StreamHandler *handler.SessionStreamHandler
	WebSocketHub  *websocket.Hub

	closers []func()
}

// Close releases connections opened by NewContainer.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.Email,
		cfg.SMTP.SenderName,
	)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	// NATS
	var eventPub service.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPub = natsPub
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	streamLogger := logger.NewIsolatedLogger(cfg.App.StreamLogFilePath)
	wsHub := websocket.NewHub(rdb, instanceName(), streamLogger)
	go wsHub.Run(ctx)

	// 4. Model API
	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider:       cfg.Ai.LLMProvider,
		Model:          cfg.Ai.LLMModel,
		BaseURL:        providerBaseURL(cfg),
		APIKey:         cfg.Ai.HuggingFaceKey,
		RequestTimeout: cfg.Ai.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	limiter := ratelimit.New(rdb, cfg.Ky.RateLimitPerMinute, 0)
	chatService := service.NewChatService(llmProvider, limiter, cfg.Ai.RequestTimeout, sysLogger)

	// 5. KY sessions
	siteLocation := cfg.Ky.SiteLocation()
	sessionRepo := memory.NewSessionRepository(cfg.Ky.SessionTTL)
	historyStore := service.NewHistoryStore(uowFactory, cfg.Ky.RecentDays)
	injector := hazardctx.NewInjector(historyStore, hazardctx.Options{
		RecentDays:    cfg.Ky.RecentDays,
		PastLimit:     cfg.Ky.PastLimit,
		NearMissLimit: cfg.Ky.NearMissLimit,
		MaxChars:      cfg.Ky.ContextMaxChars,
		Location:      siteLocation,
	}, sysLogger)
	chatClient := apiclient.NewClient(cfg.Ky.ChatAPIBaseURL, cfg.App.ServiceToken, cfg.Ky.RequestTimeout)
	turnEngine := engine.New(chatClient, injector, sysLogger)

	publisherService := service.NewPublisherService(cfg.Ky.CompletionTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Ky.CompletionTopic,
		uowFactory,
		eventPub,
		emailService,
		service.ConsumerOptions{
			RetentionCap:    cfg.Ky.RetentionCap,
			SupervisorEmail: cfg.SMTP.SupervisorEmail,
		},
		sysLogger,
	)

	kyService := service.NewKySessionService(
		sessionRepo,
		turnEngine,
		historyStore,
		publisherService,
		wsHub,
		siteLocation,
		sysLogger,
	)

	container := &Container{
		ChatController:  controller.NewChatController(chatService, cfg.App.ServiceToken),
		KyController:    controller.NewKyController(kyService),
		ConsumerService: consumerService,
		StreamHandler:   handler.NewSessionStreamHandler(kyService, wsHub, streamLogger),
		WebSocketHub:    wsHub,
	}
	container.closers = append(container.closers,
		func() { _ = pubSub.Close() },
		func() { _ = rdb.Close() },
		func() { _ = sysLogger.Sync() },
	)
	if natsPub != nil {
		container.closers = append(container.closers, natsPub.Close)
	}
	return container
}

func providerBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMProvider == "huggingface" {
		return cfg.Ai.HuggingFaceBaseURL
	}
	return cfg.Ai.OllamaBaseURL
}

// instanceName tags hub messages so an instance skips its own publishes.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ky"
	}
	return host + "-" + uuid.NewString()[:8]
}
