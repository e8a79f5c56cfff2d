package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-bridge/internal/client"
	"order-bridge/internal/config"
	"order-bridge/internal/event"
	"order-bridge/internal/handler"
	"order-bridge/internal/logger"
	"order-bridge/internal/realtime"
	"order-bridge/internal/repository"
	"order-bridge/internal/server"
	"order-bridge/internal/service"
	"order-bridge/internal/token"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log = log.With(zap.String("env", cfg.Environment.Name))

	if err := run(cfg, log); err != nil {
		log.Fatal("order bridge stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := client.InitDB(cfg.Database)
	if err != nil {
		return err
	}

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)

	if cfg.Database.Seed {
		if err := productRepo.Seed(context.Background()); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
	}

	discord, err := client.NewDiscordClient(cfg.Discord, log.With(zap.String("component", "discord")))
	if err != nil {
		return err
	}

	bus := event.NewBus(log.With(zap.String("component", "events")))
	tokens := token.New(cfg.Verification.TokenTTL)
	hub := realtime.NewHub(log.With(zap.String("component", "realtime")))
	notifier := service.NewNotifier(discord, cfg.Discord.OperatorChannelID)

	orderService := service.NewOrderService(orderRepo, productRepo, bus, log.With(zap.String("component", "orders")))
	channelService := service.NewChannelService(discord, notifier, orderRepo, productRepo, service.ChannelOptions{
		AdminRoleID:      cfg.Discord.AdminRoleID,
		TicketCategoryID: cfg.Discord.TicketCategoryID,
		DeleteDelay:      cfg.Channel.DeleteDelay,
	}, log.With(zap.String("component", "channels")))
	bridgeService := service.NewBridgeService(orderRepo, discord, hub, bus, log.With(zap.String("component", "bridge")))
	verificationService := service.NewVerificationService(tokens, notifier, orderService, channelService, cfg.VerifyURL, log.With(zap.String("component", "verification")))

	service.Subscribe(bus, channelService, bridgeService, verificationService)

	var sink *event.KafkaSink
	if cfg.Kafka.Enabled() {
		sink = event.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.With(zap.String("component", "kafka")))
		bus.SubscribeAll("kafka.sink", sink.Handle)
		log.Info("publishing order events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	discordHandler := handler.NewDiscordHandler(discord, bridgeService, channelService, verificationService, log.With(zap.String("component", "discord_handler")))
	discord.Session().AddHandler(discordHandler.MessageCreate)
	discord.Session().AddHandler(discordHandler.InteractionCreate)

	if err := discord.Open(); err != nil {
		return err
	}

	srv := server.NewServer(
		handler.NewOrderHandler(orderService),
		handler.NewChatHandler(bridgeService, hub, cfg.Chat, log.With(zap.String("component", "chat"))),
		handler.NewVerifyHandler(verificationService),
		log.With(zap.String("component", "http")),
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	log.Info("starting HTTP server", zap.String("addr", serverAddr))
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigChan:
		log.Info("signal received, starting graceful shutdown")
	case err := <-serverErr:
		log.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// pending verification links die with the process
	tokens.Close()
	channelService.Close()

	if err := discord.Close(); err != nil {
		log.Error("discord close error", zap.Error(err))
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Error("kafka sink close error", zap.Error(err))
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("shutdown complete")
	return nil
}
