package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Timezone string `yaml:"timezone"`

	// Wheelchair backend
	BackendURL       string `yaml:"backend_url"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	DefaultSpeed     int    `yaml:"default_speed"`
	CameraFramePath  string `yaml:"camera_frame_path"`

	// Poll cadences
	MotorPollMs    int `yaml:"motor_poll_ms"`
	SensorPollMs   int `yaml:"sensor_poll_ms"`
	GPSPollMs      int `yaml:"gps_poll_ms"`
	CameraPollMs   int `yaml:"camera_poll_ms"`
	FrameRefreshMs int `yaml:"frame_refresh_ms"`

	// Thresholds for obstacle classification, in cm
	ObstacleDangerCm  float64 `yaml:"obstacle_danger_cm"`
	ObstacleWarningCm float64 `yaml:"obstacle_warning_cm"`
	ObstacleCautionCm float64 `yaml:"obstacle_caution_cm"`

	// Link monitoring
	LinkTimeout      int `yaml:"link_timeout_seconds"`
	LinkCheckSeconds int `yaml:"link_check_seconds"`

	// Telegram alerts (optional)
	TelegramBotToken     string `yaml:"-"`
	TelegramChatID       string `yaml:"telegram_chat_id"`
	AlertThrottleSeconds int    `yaml:"alert_throttle_seconds"`

	// MQTT state fan-out and command intake (optional)
	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTUsername    string `yaml:"mqtt_username"`
	MQTTPassword    string `yaml:"-"`
	MQTTClientID    string `yaml:"mqtt_client_id"`
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`

	// RabbitMQ event bus (optional)
	RabbitMQURL      string `yaml:"-"`
	RabbitMQExchange string `yaml:"rabbitmq_exchange"`

	// Firebase state history (optional)
	FirebaseDbUrl              string `yaml:"firebase_db_url"`
	FirebaseServiceAccountJSON string `yaml:"-"`
	HistoryPath                string `yaml:"history_path"`
	HistoryBatchSize           int    `yaml:"history_batch_size"`
	HistoryBatchTimeout        int    `yaml:"history_batch_timeout_seconds"`
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Timezone: getEnv("TIMEZONE", "Asia/Bangkok"),

		BackendURL:       getEnv("BACKEND_URL", "http://127.0.0.1:5000"),
		RequestTimeoutMs: getEnvInt("REQUEST_TIMEOUT_MS", 3000),
		DefaultSpeed:     getEnvInt("DEFAULT_SPEED", 50),
		CameraFramePath:  getEnv("CAMERA_FRAME_PATH", "/shot.jpg"),

		MotorPollMs:    getEnvInt("MOTOR_POLL_MS", 1000),
		SensorPollMs:   getEnvInt("SENSOR_POLL_MS", 1000),
		GPSPollMs:      getEnvInt("GPS_POLL_MS", 5000),
		CameraPollMs:   getEnvInt("CAMERA_POLL_MS", 5000),
		FrameRefreshMs: getEnvInt("FRAME_REFRESH_MS", 500),

		// Default thresholds - can be overridden by env vars or the config file
		ObstacleDangerCm:  getEnvFloat("OBSTACLE_DANGER_CM", 15.0),
		ObstacleWarningCm: getEnvFloat("OBSTACLE_WARNING_CM", 30.0),
		ObstacleCautionCm: getEnvFloat("OBSTACLE_CAUTION_CM", 50.0),

		LinkTimeout:      getEnvInt("LINK_TIMEOUT_SECONDS", 10),
		LinkCheckSeconds: getEnvInt("LINK_CHECK_SECONDS", 2),

		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:       getEnv("TELEGRAM_CHAT_ID", ""),
		AlertThrottleSeconds: getEnvInt("ALERT_THROTTLE_SECONDS", 15),

		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "wheelsync"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "wheelchair"),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "wheelchair.events"),

		FirebaseDbUrl:              getEnv("FIREBASE_DB_URL", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		HistoryPath:                getEnv("HISTORY_PATH", "device-state"),
		HistoryBatchSize:           getEnvInt("HISTORY_BATCH_SIZE", 20),
		HistoryBatchTimeout:        getEnvInt("HISTORY_BATCH_TIMEOUT_SECONDS", 10),
	}

	// Optional YAML overlay for tuning cadences and thresholds per chair
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
	}

	config.BackendURL = strings.TrimRight(config.BackendURL, "/")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyFile overlays the fields present in a YAML file onto the config
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the scheduler and classifier cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.RequestTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %d ms", c.RequestTimeoutMs))
	}
	for name, ms := range map[string]int{
		"motor poll":    c.MotorPollMs,
		"sensor poll":   c.SensorPollMs,
		"gps poll":      c.GPSPollMs,
		"camera poll":   c.CameraPollMs,
		"frame refresh": c.FrameRefreshMs,
	} {
		if ms <= 0 {
			errs = append(errs, fmt.Errorf("%s interval must be positive, got %d ms", name, ms))
		}
	}
	if c.ObstacleDangerCm > c.ObstacleWarningCm || c.ObstacleWarningCm > c.ObstacleCautionCm {
		errs = append(errs, fmt.Errorf("obstacle thresholds must satisfy danger <= warning <= caution, got %.1f/%.1f/%.1f",
			c.ObstacleDangerCm, c.ObstacleWarningCm, c.ObstacleCautionCm))
	}
	if c.DefaultSpeed < 0 || c.DefaultSpeed > 100 {
		errs = append(errs, fmt.Errorf("default speed must be within 0-100, got %d", c.DefaultSpeed))
	}
	if c.LinkTimeout <= 0 || c.LinkCheckSeconds <= 0 {
		errs = append(errs, errors.New("link timeout and check interval must be positive"))
	}
	if c.HistoryBatchSize <= 0 || c.HistoryBatchTimeout <= 0 {
		errs = append(errs, errors.New("history batch size and timeout must be positive"))
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if (c.FirebaseDbUrl == "") != (c.FirebaseServiceAccountJSON == "") {
		errs = append(errs, errors.New("FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON must be set together"))
	}

	return errors.Join(errs...)
}

// RequestTimeout is the bound applied to every backend call
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
