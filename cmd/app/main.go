package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crazygift/internal/bot"
	"crazygift/internal/config"
	"crazygift/internal/db"
	httpServer "crazygift/internal/http"
	"crazygift/internal/http/handlers"
	"crazygift/internal/http/middleware"
	"crazygift/internal/logger"
	"crazygift/internal/service"
	"crazygift/internal/telegram"
	"crazygift/internal/ton"
	"crazygift/internal/ws"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
)

// Version устанавливается при сборке
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid config", "error", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(cfg.Database.URL); err != nil {
			logger.Fatal("migrations failed", "error", err)
		}
	}

	dbPool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("db connect failed", "error", err)
	}
	defer dbPool.Close()

	network := ton.ParseNetwork(cfg.TON.Network)
	if cfg.TON.WalletAddress != "" {
		if err := ton.ValidateAddress(cfg.TON.WalletAddress); err != nil {
			logger.Fatal("invalid TON_WALLET_ADDRESS", "error", err)
		}
	} else {
		log.Warn("TON_WALLET_ADDRESS не настроен, депозиты TON не пройдут проверку")
	}

	tonClient := ton.NewClient(network, cfg.TON.APIURL, cfg.TON.APIKey, cfg.TON.WalletAddress, cfg.TON.RequestTimeout)
	var verifier service.Verifier = tonClient
	if strings.EqualFold(cfg.TON.Verifier, "liteclient") {
		lite, err := ton.NewLiteVerifier(network, cfg.TON.WalletAddress)
		if err != nil {
			logger.Fatal("liteclient verifier", "error", err)
		}
		verifier = lite
	}
	log.Info("TON verifier", "type", cfg.TON.Verifier, "network", network)

	// один клиент Bot API на токен, его делят счета Stars и цикл бота
	var botAPI *tgbotapi.BotAPI
	var requester telegram.Requester
	if cfg.Telegram.BotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal("telegram bot api", "error", err)
		}
		botAPI.Client = &http.Client{Timeout: 75 * time.Second}
		requester = botAPI
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN не задан: счета Stars и уведомления отключены")
	}

	balance := service.NewBalanceService(dbPool)
	audit := service.NewAuditService(dbPool)
	tokens := service.NewTokenManager(cfg.Server.JWTSecret, cfg.Server.JWTTTL)
	deposits := ton.NewBuilder(cfg.TON.WalletAddress)
	admin := service.NewAdminService(dbPool)

	hub := ws.NewHub()

	// бот создается до сервисов: он доставляет их уведомления, а зависимости получает ниже
	var tgBot *bot.Bot
	var notifier service.Notifier
	if botAPI != nil && cfg.Telegram.BotEnabled {
		tgBot = bot.New(botAPI, cfg.Telegram.AdminIDs)
		notifier = tgBot
	}
	notify := service.NewNotificationQueue(notifier, cfg.Payments.NotifyQueueSize)

	reconciler := service.NewReconciler(dbPool, balance, audit, verifier, deposits, notify, service.ReconcilerConfig{
		Workers:   cfg.Payments.Workers,
		QueueSize: cfg.Payments.QueueSize,
		Timeout:   cfg.Payments.ReconcileTimeout,
	})
	payments := service.NewPaymentService(dbPool, deposits, telegram.NewStarsGateway(requester), reconciler)
	inventory := service.NewInventoryService(dbPool, balance, audit, notify)

	if tgBot != nil {
		inventory.SetAdminNotifier(tgBot)
		tgBot.SetDeps(bot.Deps{
			Payments:    payments,
			Withdrawals: inventory,
			Platform:    admin,
			Wallet:      tonClient,
		})
	}

	sweeper := service.NewSweeper(dbPool, notify, cfg.Payments.StuckAfter)

	h := &handlers.Handler{
		Auth:           service.NewAuthService(dbPool, balance, audit, tokens, cfg.Telegram.BotToken, cfg.Telegram.InitDataMaxAge),
		Users:          service.NewUserService(dbPool, cfg.Telegram.BotUsername),
		Cases:          service.NewCaseService(dbPool, balance, audit, hub),
		Inventory:      inventory,
		Payments:       payments,
		Tokens:         tokens,
		Hub:            hub,
		DB:             dbPool,
		Version:        Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewRateLimiter(
		middleware.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
		cfg.Redis.OpenPerMin, httpServer.OpenLimitWindow, cfg.Redis.KeyPrefix,
	)
	r := httpServer.NewRouter(h, httpServer.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AdminToken:     cfg.Server.AdminToken,
		WebhookSecret:  cfg.Server.WebhookSecret,
		OpenLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	notify.Start(2)
	reconciler.Start()
	if err := sweeper.Start(cfg.Payments.SweepSchedule); err != nil {
		logger.Fatal("sweeper", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if tgBot != nil {
		g.Go(func() error {
			tgBot.Start()
			return nil
		})
		log.Info("bot started", "admin_ids", cfg.Telegram.AdminIDs)
	}

	g.Go(func() error {
		log.Info("server started", "port", cfg.Server.Port, "version", Version, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// порядок остановки: http и бот, затем сверка, sweeper и уведомления.
	// новые webhook не должны попадать в уже закрытую очередь сверки
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", "error", err)
		}

		if tgBot != nil {
			tgBot.Stop()
		}
		reconciler.Stop()
		sweeper.Stop()
		notify.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		dbPool.Close()
		logger.Fatal("server exited with error", "error", err)
	}
	log.Info("server exited")
}
