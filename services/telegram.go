package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// messageSender is the part of tgbotapi.BotAPI the service uses
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramAlert struct {
	key  string
	text string
}

var errOutboxFull = errors.New("telegram outbox full")

// TelegramService turns state transitions into chat alerts. Presenter callbacks only queue
// messages; Start delivers them.
type TelegramService struct {
	sender         messageSender
	chatID         int64
	throttle       time.Duration
	clock          Clock
	logger         *zap.Logger
	outbox         chan telegramAlert
	lastAlertTimes map[string]time.Time // Track last alert time per alert key
	lastObstacle   models.ObstacleLevel
	mu             sync.Mutex
}

func NewTelegramService(cfg *config.Config, clock Clock, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	// Test Telegram connection with retry
	if err := testConnection(bot, logger); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	throttle := time.Duration(cfg.AlertThrottleSeconds) * time.Second
	return newTelegramService(bot, chatID, throttle, clock, logger), nil
}

func newTelegramService(sender messageSender, chatID int64, throttle time.Duration, clock Clock, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		sender:         sender,
		chatID:         chatID,
		throttle:       throttle,
		clock:          clock,
		logger:         logger,
		outbox:         make(chan telegramAlert, 32),
		lastAlertTimes: make(map[string]time.Time),
		lastObstacle:   models.ObstacleClear,
	}
}

// testConnection tests Telegram connection with retry logic
func testConnection(bot *tgbotapi.BotAPI, logger *zap.Logger) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		// Try to get bot info to test connection
		_, err := bot.GetMe()
		if err == nil {
			logger.Info("Telegram connection successful")
			return nil
		}

		logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second) // Linear backoff
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// Start delivers queued alerts until ctx is cancelled, then flushes what is still queued
func (ts *TelegramService) Start(ctx context.Context) {
	ts.logger.Info("Telegram alert delivery started")
	for {
		select {
		case <-ctx.Done():
			ts.sendPending()
			ts.logger.Info("Telegram alert delivery stopped")
			return
		case alert := <-ts.outbox:
			ts.deliver(alert)
		}
	}
}

// sendPending delivers everything currently queued
func (ts *TelegramService) sendPending() {
	for {
		select {
		case alert := <-ts.outbox:
			ts.deliver(alert)
		default:
			return
		}
	}
}

func (ts *TelegramService) deliver(alert telegramAlert) {
	msg := tgbotapi.NewMessage(ts.chatID, alert.text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := ts.sender.Send(msg); err != nil {
		ts.logger.Error("Failed to send telegram alert",
			zap.String("alert", alert.key),
			zap.Error(err))
		return
	}
	ts.logger.Info("Sent telegram alert", zap.String("alert", alert.key))
}

// enqueue queues an alert unless the same key fired within the throttle window
func (ts *TelegramService) enqueue(key, text string, throttled bool) error {
	ts.mu.Lock()
	now := ts.clock.Now()
	if throttled {
		if last, exists := ts.lastAlertTimes[key]; exists && now.Sub(last) < ts.throttle {
			ts.mu.Unlock()
			ts.logger.Debug("Throttling alert", zap.String("alert", key))
			return nil
		}
	}
	ts.lastAlertTimes[key] = now
	ts.mu.Unlock()

	select {
	case ts.outbox <- telegramAlert{key: key, text: text}:
		return nil
	default:
		ts.logger.Warn("Telegram outbox full, dropping alert", zap.String("alert", key))
		return errOutboxFull
	}
}

func (ts *TelegramService) OnStateChanged(state models.DeviceState) {
	ts.mu.Lock()
	entered := state.Obstacle.Level == models.ObstacleDanger && ts.lastObstacle != models.ObstacleDanger
	ts.lastObstacle = state.Obstacle.Level
	ts.mu.Unlock()

	if entered {
		_ = ts.enqueue("obstacle", formatObstacleMessage(state), true)
	}
}

func (ts *TelegramService) OnCommandFailed(reason string) {
	message := "⚠️ <b>COMMAND FAILED</b>\n\n" +
		fmt.Sprintf("🕐 <b>Time:</b> %s\n", ts.clock.Now().Format("2006-01-02 15:04:05")) +
		fmt.Sprintf("❌ <b>Reason:</b> %s", escapeHTML(reason))
	_ = ts.enqueue("command", message, true)
}

func (ts *TelegramService) OnCameraUnavailable() {
	_ = ts.enqueue("camera_lost", "📷 <b>CAMERA OFFLINE</b>\n\nThe live feed is hidden until the camera answers again.", true)
}

func (ts *TelegramService) OnCameraAvailable() {
	_ = ts.enqueue("camera_back", "📷 <b>CAMERA ONLINE</b>\n\nThe live feed is back.", true)
}

func formatObstacleMessage(state models.DeviceState) string {
	var sb strings.Builder

	sb.WriteString("🚨 <b>OBSTACLE DANGER</b> 🚨\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Session:</b> %s\n", state.SessionID))
	sb.WriteString(fmt.Sprintf("📏 <b>Distance:</b> %.1f cm\n", state.Obstacle.DistanceCm))
	sb.WriteString(fmt.Sprintf("⚙️ <b>Motors:</b> %s at %d%%\n", state.Motor.Direction.Badge(), state.Motor.Speed))
	if state.Obstacle.AutoStopTriggered {
		sb.WriteString("\n🛑 Auto-stop triggered")
	}
	return sb.String()
}

// SendLinkTimeoutAlert queues an alert when a poll task stops reaching the backend
func (ts *TelegramService) SendLinkTimeoutAlert(task string, lastSuccess time.Time, since time.Duration, lastError string) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>BACKEND LINK LOST</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("🔗 <b>Poll:</b> %s\n", task))
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Success:</b> %s\n", lastSuccess.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Time Since Last Success:</b> %s\n", formatDuration(since)))
	if lastError != "" {
		sb.WriteString(fmt.Sprintf("❌ <b>Last Error:</b> %s\n", escapeHTML(lastError)))
	}
	sb.WriteString("\n🔴 <b>Status:</b> LINK TIMEOUT")

	return ts.enqueue("link:"+task, sb.String(), false)
}

// SendLinkRecoveryAlert queues an alert when a timed out poll task succeeds again
func (ts *TelegramService) SendLinkRecoveryAlert(task string, downtime time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>BACKEND LINK RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("🔗 <b>Poll:</b> %s\n", task))
	sb.WriteString(fmt.Sprintf("🕐 <b>Recovery Time:</b> %s\n", ts.clock.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downtime)))
	sb.WriteString("🟢 <b>Status:</b> LINK ONLINE")

	return ts.enqueue("link:"+task, sb.String(), false)
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage(sessionID string) error {
	message := "🟢 <b>Wheelchair Sync Started</b>\n\n" +
		fmt.Sprintf("📱 Session <code>%s</code>\n", sessionID) +
		"👀 Watching motors, obstacles, GPS and camera...\n\n" +
		"✅ System is ready and operational!"

	msg := tgbotapi.NewMessage(ts.chatID, message)
	msg.ParseMode = "HTML"
	_, err := ts.sender.Send(msg)
	return err
}

func escapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
