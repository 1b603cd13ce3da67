package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for fleetmon.
type Config struct {
	LogLevel   string           `yaml:"log_level" json:"log_level"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Rabbit     RabbitConfig     `yaml:"rabbit" json:"rabbit"`
	Pinger     PingerConfig     `yaml:"pinger" json:"pinger"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" json:"dispatcher"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Email      EmailConfig      `yaml:"email" json:"email"`
	Clickhouse ClickhouseConfig `yaml:"clickhouse" json:"clickhouse"`
	Telegram   TelegramConfig   `yaml:"telegram" json:"telegram"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
}

type BackendConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type DatabaseConfig struct {
	MainURL string `yaml:"main_url" json:"main_url"`
	WALMode bool   `yaml:"wal_mode" json:"wal_mode"`
}

type RabbitConfig struct {
	URL                  string `yaml:"url" json:"url"`
	PingerExchange       string `yaml:"pinger_exchange" json:"pinger_exchange"`
	LLMExchange          string `yaml:"llm_exchange" json:"llm_exchange"`
	PingerRoutingKey     string `yaml:"pinger_routing_key" json:"pinger_routing_key"`
	LLMRoutingKey        string `yaml:"llm_routing_key" json:"llm_routing_key"`
	PingerToLLMQueue     string `yaml:"pinger_to_llm_queue" json:"pinger_to_llm_queue"`
	PingerToWebQueue     string `yaml:"pinger_to_web_queue" json:"pinger_to_web_queue"`
	LLMToDispatcherQueue string `yaml:"llm_to_dispatcher_queue" json:"llm_to_dispatcher_queue"`
	LLMToSenderQueue     string `yaml:"llm_to_sender_queue" json:"llm_to_sender_queue"`
	LLMToWebQueue        string `yaml:"llm_to_web_queue" json:"llm_to_web_queue"`
}

type PingerConfig struct {
	IntervalSec         int    `yaml:"interval_sec" json:"interval_sec"`
	InputDatabaseURL    string `yaml:"input_database_url" json:"input_database_url"`
	NotifyAlways        bool   `yaml:"notify_always" json:"notify_always"`
	ReconcileIntervalMs int    `yaml:"reconcile_interval_ms" json:"reconcile_interval_ms"`
	Port                int    `yaml:"port" json:"port"`
}

type DispatcherConfig struct {
	GroupingWindowSec int  `yaml:"grouping_window_sec" json:"grouping_window_sec"`
	AutocreateSites   bool `yaml:"autocreate_sites" json:"autocreate_sites"`
	Port              int  `yaml:"port" json:"port"`
}

type LLMConfig struct {
	APIKey              string `yaml:"api_key" json:"-"`
	Model               string `yaml:"model" json:"model"`
	BaseURL             string `yaml:"base_url" json:"base_url"`
	UseSkipNotification bool   `yaml:"use_skip_notification" json:"use_skip_notification"`
	Port                int    `yaml:"port" json:"port"`
}

type EmailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	TLS      bool   `yaml:"tls" json:"tls"`
	SSL      bool   `yaml:"ssl" json:"ssl"`
	FromAddr string `yaml:"from_addr" json:"from_addr"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

type ClickhouseConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database"`
	Table    string `yaml:"table" json:"table"`
}

type TelegramConfig struct {
	Token    string  `yaml:"token" json:"-"`
	AdminIDs []int64 `yaml:"admin_ids" json:"admin_ids"`
}

type RedisConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	DB   int    `yaml:"db" json:"db"`
}

// globalConfig holds the process-wide loaded configuration.
var globalConfig *Config

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	environment := os.Getenv("FLEETMON_ENV")
	if environment == "" {
		environment = "development"
	}

	configPath := fmt.Sprintf("./configs/%s.yaml", environment)

	config := &Config{}

	if fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	applyLegacyEnvAliases(config)
	applyDefaults(config)
	overrideWithEnv(config)

	if err := validate(config, environment); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration instance.
func Get() *Config {
	if globalConfig == nil {
		panic("configuration not loaded, call Load() first")
	}
	return globalConfig
}

func applyDefaults(c *Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.MainURL == "" {
		c.Database.MainURL = "./data/fleetmon.db"
	}
	if c.Rabbit.PingerExchange == "" {
		c.Rabbit.PingerExchange = "pinger.events"
	}
	if c.Rabbit.LLMExchange == "" {
		c.Rabbit.LLMExchange = "llm.events"
	}
	if c.Rabbit.PingerRoutingKey == "" {
		c.Rabbit.PingerRoutingKey = "pinger.group"
	}
	if c.Rabbit.LLMRoutingKey == "" {
		c.Rabbit.LLMRoutingKey = "llm.group"
	}
	if c.Rabbit.PingerToLLMQueue == "" {
		c.Rabbit.PingerToLLMQueue = "pinger-to-llm-queue"
	}
	if c.Rabbit.PingerToWebQueue == "" {
		c.Rabbit.PingerToWebQueue = "pinger-to-web-queue"
	}
	if c.Rabbit.LLMToDispatcherQueue == "" {
		c.Rabbit.LLMToDispatcherQueue = "llm-to-dispatcher-queue"
	}
	if c.Rabbit.LLMToSenderQueue == "" {
		c.Rabbit.LLMToSenderQueue = "llm-to-sender-queue"
	}
	if c.Rabbit.LLMToWebQueue == "" {
		c.Rabbit.LLMToWebQueue = "llm-to-web-queue"
	}
	if c.Pinger.IntervalSec == 0 {
		c.Pinger.IntervalSec = 30
	}
	if c.Pinger.ReconcileIntervalMs == 0 {
		c.Pinger.ReconcileIntervalMs = 1000
	}
	if c.Pinger.Port == 0 {
		c.Pinger.Port = 8081
	}
	if c.Dispatcher.GroupingWindowSec == 0 {
		c.Dispatcher.GroupingWindowSec = 60
	}
	if c.Dispatcher.Port == 0 {
		c.Dispatcher.Port = 8082
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Port == 0 {
		c.LLM.Port = 8083
	}
}

// overrideWithEnv overrides configuration with FLEETMON_* environment variables.
func overrideWithEnv(config *Config) {
	if val := os.Getenv("FLEETMON_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}
	if val := os.Getenv("FLEETMON_BACKEND_HOST"); val != "" {
		config.Backend.Host = val
	}
	if val := os.Getenv("FLEETMON_BACKEND_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Backend.Port = port
		}
	}
	if val := os.Getenv("FLEETMON_DB_MAIN_URL"); val != "" {
		config.Database.MainURL = val
	}
	if val := os.Getenv("FLEETMON_RABBIT_URL"); val != "" {
		config.Rabbit.URL = val
	}
	if val := os.Getenv("FLEETMON_PINGER_INTERVAL_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Pinger.IntervalSec = n
		}
	}
	if val := os.Getenv("FLEETMON_PINGER_NOTIFY_ALWAYS"); val != "" {
		config.Pinger.NotifyAlways = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("FLEETMON_DISPATCHER_GROUPING_WINDOW_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Dispatcher.GroupingWindowSec = n
		}
	}
	if val := os.Getenv("FLEETMON_DISPATCHER_AUTOCREATE_SITES"); val != "" {
		config.Dispatcher.AutocreateSites = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("FLEETMON_LLM_API_KEY"); val != "" {
		config.LLM.APIKey = val
	}
	if val := os.Getenv("FLEETMON_LLM_MODEL"); val != "" {
		config.LLM.Model = val
	}
	if val := os.Getenv("FLEETMON_LLM_BASE_URL"); val != "" {
		config.LLM.BaseURL = val
	}
	if val := os.Getenv("FLEETMON_EMAIL_HOST"); val != "" {
		config.Email.Host = val
	}
	if val := os.Getenv("FLEETMON_EMAIL_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Email.Port = n
		}
	}
	if val := os.Getenv("FLEETMON_EMAIL_USER"); val != "" {
		config.Email.User = val
	}
	if val := os.Getenv("FLEETMON_EMAIL_PASSWORD"); val != "" {
		config.Email.Password = val
	}
	if val := os.Getenv("FLEETMON_CLICKHOUSE_HOST"); val != "" {
		config.Clickhouse.Host = val
	}
	if val := os.Getenv("FLEETMON_TELEGRAM_TOKEN"); val != "" {
		config.Telegram.Token = val
	}
	if val := os.Getenv("FLEETMON_REDIS_HOST"); val != "" {
		config.Redis.Host = val
	}
}

// applyLegacyEnvAliases recognizes the flat environment variable names used by the
// previous generation of this system, so existing deployments keep working.
func applyLegacyEnvAliases(config *Config) {
	if config.Rabbit.URL == "" {
		if val := os.Getenv("RABBIT_URL"); val != "" {
			config.Rabbit.URL = val
		}
	}
	if config.Telegram.Token == "" {
		if val := os.Getenv("TG_TOKEN"); val != "" {
			config.Telegram.Token = val
		}
	}
	if config.LLM.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			config.LLM.APIKey = val
		}
	}
	if config.Database.MainURL == "" {
		if val := os.Getenv("DATABASE_URL"); val != "" {
			config.Database.MainURL = val
		}
	}
	if config.Email.Host == "" {
		if val := os.Getenv("SMTP_HOST"); val != "" {
			config.Email.Host = val
		}
	}
}

// validate validates the configuration.
func validate(config *Config, environment string) error {
	if config.Pinger.IntervalSec <= 0 {
		return fmt.Errorf("pinger.interval_sec must be positive")
	}
	if config.Pinger.Port <= 0 || config.Pinger.Port > 65535 {
		return fmt.Errorf("invalid pinger.port: %d", config.Pinger.Port)
	}
	if config.Dispatcher.Port <= 0 || config.Dispatcher.Port > 65535 {
		return fmt.Errorf("invalid dispatcher.port: %d", config.Dispatcher.Port)
	}
	if config.LLM.Port <= 0 || config.LLM.Port > 65535 {
		return fmt.Errorf("invalid llm.port: %d", config.LLM.Port)
	}
	if config.Database.MainURL == "" {
		return fmt.Errorf("database.main_url cannot be empty")
	}

	if environment == "production" && config.Rabbit.URL == "" {
		return fmt.Errorf("rabbit.url is required in production environment")
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
