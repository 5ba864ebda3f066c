package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wheelsync/config"
	"wheelsync/log"
	"wheelsync/models"
	"wheelsync/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const cleanupTimeout = 5 * time.Second

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if loc, err := time.LoadLocation(cfg.Timezone); err != nil {
		logger.Warn("Failed to load timezone, keeping local time", zap.String("timezone", cfg.Timezone), zap.Error(err))
	} else {
		time.Local = loc
	}

	sessionID := uuid.NewString()
	logger = logger.With(zap.String("session_id", sessionID))
	clock := services.RealClock()

	// Build presenters; every integration except the log is optional
	presenters := services.MultiPresenter{services.NewLogPresenter(logger)}
	var runners []func(ctx context.Context)
	var alerter services.LinkAlerter

	var telegramService *services.TelegramService
	if cfg.TelegramBotToken != "" {
		telegramService, err = services.NewTelegramService(cfg, clock, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		presenters = append(presenters, telegramService)
		alerter = telegramService
		runners = append(runners, telegramService.Start)
	}

	var mqttService *services.MQTTService
	if cfg.MQTTBroker != "" {
		mqttService, err = services.NewMQTTService(cfg, sessionID, clock, logger)
		if err != nil {
			logger.Fatal("Failed to initialize MQTT service", zap.Error(err))
		}
		presenters = append(presenters, mqttService)
		runners = append(runners, mqttService.Start)
	}

	var rabbitMQService *services.RabbitMQService
	if cfg.RabbitMQURL != "" {
		rabbitMQService, err = services.NewRabbitMQService(cfg, sessionID, clock, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
		}
		presenters = append(presenters, rabbitMQService)
		runners = append(runners, rabbitMQService.Start)
	}

	var firebaseService *services.FirebaseService
	var historyWriter *services.HistoryWriter
	if cfg.FirebaseDbUrl != "" {
		firebaseService, err = services.NewFirebaseService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
		}
		historyWriter = services.NewHistoryWriter(cfg, firebaseService, logger)
		presenters = append(presenters, historyWriter)
		runners = append(runners, historyWriter.Start)
	}

	// Core: store, backend client, dispatcher, scheduler
	classifier := services.NewObstacleClassifier(cfg)
	store := services.NewStateStore(
		models.NewDeviceState(sessionID, cfg.DefaultSpeed),
		services.NewReconciler(classifier),
		presenters,
		clock,
		logger,
	)
	backend := services.NewBackendClient(cfg, logger)
	dispatcher := services.NewCommandDispatcher(backend, store, cfg.DefaultSpeed, logger)

	monitor := services.NewLinkMonitor(cfg, alerter, clock, logger)
	scheduler := services.NewPollScheduler(cfg, clock, store, monitor, logger)
	if err := scheduler.Register(services.DefaultTasks(cfg, backend, store, clock)...); err != nil {
		logger.Fatal("Failed to register poll tasks", zap.Error(err))
	}

	if mqttService != nil {
		err := mqttService.SubscribeCommands(func(ctx context.Context, cmd models.Command) error {
			_, err := dispatcher.SendCommand(ctx, cmd)
			return err
		})
		if err != nil {
			logger.Fatal("Failed to subscribe to commands", zap.Error(err))
		}
	}

	if telegramService != nil {
		if err := telegramService.SendStartupMessage(sessionID); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	thresholds := classifier.Thresholds()
	logger.Info("Wheelchair sync service started",
		zap.String("backend_url", cfg.BackendURL),
		zap.Duration("request_timeout", cfg.RequestTimeout()),
		zap.Int("default_speed", cfg.DefaultSpeed),
		zap.Float64("danger_cm", thresholds.Danger),
		zap.Float64("warning_cm", thresholds.Warning),
		zap.Float64("caution_cm", thresholds.Caution),
		zap.Int("presenters", len(presenters)),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when cleanup is complete
	cleanupDone := make(chan bool, 1)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping services")

		// Cancel context to stop all goroutines
		cancel()

		// Wait for cleanup to complete or timeout
		select {
		case <-cleanupDone:
		case <-time.After(cleanupTimeout):
			logger.Warn("Cleanup timeout, forcing exit")
			os.Exit(1)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error {
		monitor.Start(gctx)
		return nil
	})
	for _, run := range runners {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}

	// Perform cleanup
	logger.Info("Starting cleanup")

	if historyWriter != nil && historyWriter.WaitForShutdown(cleanupTimeout) {
		logger.Info("History flushed")
	}
	if mqttService != nil {
		mqttService.Close()
	}
	if rabbitMQService != nil {
		if err := rabbitMQService.Close(); err != nil {
			logger.Error("Error closing RabbitMQ service", zap.Error(err))
		}
	}
	if firebaseService != nil {
		if err := firebaseService.Close(); err != nil {
			logger.Error("Error closing Firebase service", zap.Error(err))
		}
	}

	final := store.Snapshot()
	logger.Info("Wheelchair sync service stopped",
		zap.Bool("motor_running", final.Motor.Running),
		zap.Uint64("last_command_seq", final.LastCommand.Seq))

	// Signal cleanup completion
	cleanupDone <- true
}
